package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/pegabatch/am"
	"github.com/teranos/pegabatch/cmd/pegabatch/commands"
	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/logger"
)

var rootCmd = &cobra.Command{
	Use:   "pegabatch",
	Short: "pegabatch - resumable bot-score enrichment for uploaded spreadsheets",
	Long: `pegabatch - resumable bot-score enrichment for uploaded spreadsheets.

Uploads dropped in the inbox are scored row by row against the Pegabot API.
Progress is checkpointed after every row, so quota pauses, crashes and
restarts resume where they stopped.

Available commands:
  pulse    - Run the daemon (scheduled passes, inbox watcher, status server)
  run      - Run a single pass and exit
  jobs     - List, inspect, add and update analysis requests
  cache    - Inspect or purge the response cache
  cooldown - Show or clear the global quota cooldown
  am       - Show or initialise configuration
  db       - Manage the database schema

Examples:
  pegabatch pulse start          # Start the daemon
  pegabatch jobs ls -v           # List requests with info logging
  pegabatch cooldown show        # When may the API be called again?`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if err := logger.Initialize(jsonOutput, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		if cfg, err := am.Load(); err == nil {
			logger.SetTheme(cfg.GetServerLogTheme())
		}
		return nil
	},
}

func init() {
	commands.AddGlobalFlags(rootCmd)

	rootCmd.AddCommand(commands.PulseCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.CacheCmd)
	rootCmd.AddCommand(commands.CooldownCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, commands.FormatError(err))
		os.Exit(1)
	}
}

package commands

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/pegabatch/am"
	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Manage pegabatch configuration",
	Long: sym.AM + ` am - pegabatch configuration.

Configuration sources (in order of precedence):
1. Environment variables (PEGABATCH_* prefix, e.g. PEGABATCH_QUOTA_THRESHOLD)
2. Project config (am.toml in the working directory or a parent)
3. User config (~/.pegabatch/am.toml)
4. System config (/etc/pegabatch/am.toml)
5. Default values

Examples:
  pegabatch am show                 # Effective settings and where they came from
  pegabatch am show --format toml   # Effective settings as TOML
  pegabatch am init                 # Write ~/.pegabatch/am.toml with defaults`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with every default",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := am.UserConfigPath()
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if err := am.WriteDefault(path, force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", sym.AM, path)
		return nil
	},
}

func init() {
	amShowCmd.Flags().String("format", "sources", "Output format: sources, toml, yaml")
	amInitCmd.Flags().Bool("force", false, "Overwrite an existing file (the old one is kept as .back1)")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amInitCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	if _, err := am.Load(); err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	settings := am.Settings()
	if jsonOutput(cmd) {
		return printJSON(cmd, settings)
	}

	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()
	switch format {
	case "sources":
		for _, path := range am.ConfigFiles() {
			fmt.Fprintf(out, "# loaded %s\n", path)
		}
		for _, s := range settings {
			src := string(s.Source)
			if s.SourcePath != "" && s.Source != am.SourceDefault {
				src += " " + s.SourcePath
			}
			fmt.Fprintf(out, "%-28s = %-40v # %s\n", s.Key, s.Value, src)
		}
	case "toml", "yaml":
		values := nestSettings(settings)
		var (
			data []byte
			err  error
		)
		if format == "toml" {
			data, err = toml.Marshal(values)
		} else {
			data, err = yaml.Marshal(values)
		}
		if err != nil {
			return errors.Wrapf(err, "failed to marshal config to %s", format)
		}
		fmt.Fprintf(out, "# pegabatch configuration\n%s", data)
	default:
		return errors.WithHint(
			errors.Wrapf(errors.ErrInvalidRequest, "unsupported format %q", format),
			"supported: sources, toml, yaml")
	}
	return nil
}

// nestSettings turns dotted keys back into sections, keeping masked secrets.
func nestSettings(settings []am.SettingInfo) map[string]any {
	root := make(map[string]any)
	for _, s := range settings {
		parts := strings.Split(s.Key, ".")
		m := root
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = s.Value
	}
	return root
}

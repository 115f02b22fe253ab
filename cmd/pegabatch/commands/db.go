package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/pegabatch/db"
	"github.com/teranos/pegabatch/sym"
)

// DbCmd groups database commands.
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long:  "Apply pending migrations. Every command also migrates on open; this one only reports the result.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		v, err := db.SchemaVersion(database)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s at schema version %s\n", sym.DB, cfg.GetDatabasePath(), v)
		return nil
	},
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
}

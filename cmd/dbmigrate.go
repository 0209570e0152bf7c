package cmd

import (
	"github.com/spf13/cobra"
)

// dbMigrateCmd moves the database schema to a target version.
var dbMigrateCmd = &cobra.Command{
	Use:   "dbmigrate",
	Short: "Migrate the database schema.",
	Long: `Dbmigrate applies schema migrations for the configured backend.
The default target of -1 migrates to the latest version; an explicit target
migrates up or down to that version. Opening the store already migrates to
the latest, so this command mostly serves controlled downgrades and
inspecting the current version.`,
	PreRunE:  sharedSetup,
	PostRunE: sharedTeardown,
	RunE: func(cmd *cobra.Command, _ []string) error {
		target, _ := cmd.Flags().GetInt("target-version")
		if err := db.Migrate(target); err != nil {
			return err
		}
		version, dirty, err := db.MigrationVersion()
		if err != nil {
			return err
		}
		cmd.Printf("Schema version: %d (dirty: %t)\n", version, dirty)
		return nil
	},
}

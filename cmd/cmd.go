// Package cmd defines the command-line interface for repoflux.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(addOrgCmd)
	rootCmd.AddCommand(addRepoCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(dbMigrateCmd)
	rootCmd.AddCommand(versionCmd)

	// Bind all persistent flags of rootCmd to Viper
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("db-backend", DefaultDBBackend, "Database backend: sqlite or postgres or mysql")
	rootCmd.PersistentFlags().String("db-connect", "", "Database connection string (file path for sqlite)")
	rootCmd.PersistentFlags().String("checkout-root", "", "Directory for repository clones")
	rootCmd.PersistentFlags().String("lock-path", "", "Path of the scan lock file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fatal("Error binding root flags", err)
	}

	scanCmd.Flags().String("org", "", "Restrict the scan to one organization")
	scanCmd.Flags().Int("workers", DefaultWorkers, "Number of concurrent repository workers")
	scanCmd.Flags().Bool("force", false, "Pull every repository even if recently pulled")
	scanCmd.Flags().Bool("rescan", false, "Wipe ingested history and statistics first (destructive)")
	scanCmd.Flags().Int("pull-threshold-minutes", DefaultPullThresholdMinutes, "Skip repositories pulled within this many minutes")
	if err := viper.BindPFlags(scanCmd.Flags()); err != nil {
		fatal("Error binding scan flags", err)
	}

	addOrgCmd.Flags().String("checkout-path", "", "Override the checkout root for this organization")
	addOrgCmd.Flags().String("username", "", "Login username for the organization's repositories")
	addOrgCmd.Flags().String("ssh-key-file", "", "Path to an SSH private key for clones")
	addOrgCmd.Flags().String("dir-allow", "", "Newline-separated directory allow list")
	addOrgCmd.Flags().String("dir-deny", "", "Newline-separated directory deny list")
	addOrgCmd.Flags().String("ext-allow", "", "Newline-separated extension allow list")
	addOrgCmd.Flags().String("ext-deny", "", "Newline-separated extension deny list")

	addRepoCmd.Flags().String("org", "", "Owning organization (required)")
	addRepoCmd.Flags().Bool("disabled", false, "Register the repository without scanning it")
	addRepoCmd.Flags().String("dir-allow", "", "Newline-separated directory allow list (overrides the org list)")
	addRepoCmd.Flags().String("dir-deny", "", "Newline-separated directory deny list (overrides the org list)")
	addRepoCmd.Flags().String("ext-allow", "", "Newline-separated extension allow list (overrides the org list)")
	addRepoCmd.Flags().String("ext-deny", "", "Newline-separated extension deny list (overrides the org list)")
	if err := addRepoCmd.MarkFlagRequired("org"); err != nil {
		fatal("Error marking addrepo flags", err)
	}

	statCmd.Flags().String("org", "", "Organization of the repository (required)")
	statCmd.Flags().String("repo", "", "Repository to report on (required)")
	statCmd.Flags().String("interval", "day", "Interval: day, week, month, or lifetime")
	statCmd.Flags().String("author", "", "Author email; omit for the team series")
	statCmd.Flags().String("start", "", "Start date (YYYY-MM-DD)")
	statCmd.Flags().String("end", "", "End date (YYYY-MM-DD)")
	statCmd.Flags().String("format", "table", "Output format: table, csv, json, or parquet")
	statCmd.Flags().String("output-file", "", "Write output to this file (required for parquet)")
	for _, name := range []string{"org", "repo"} {
		if err := statCmd.MarkFlagRequired(name); err != nil {
			fatal("Error marking stat flags", err)
		}
	}

	dbMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest)")
}

// fatal reports an unrecoverable CLI wiring error and exits.
func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

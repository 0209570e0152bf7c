package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/repoflux/repoflux/internal/store"
)

// All linker flags will be set by release infra at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCtx is the root context for all operations.
var rootCtx = context.Background()

// cfg holds the validated, final configuration.
var cfg = &Config{}

// input holds the raw, unvalidated configuration from all sources (file,
// env, flags). Viper unmarshals into this struct.
var input = &ConfigRawInput{}

// db is the shared store handle, opened by sharedSetup.
var db *store.Store

// logger is the process-wide structured logger, leveled by config.
var logger *slog.Logger

// rootCmd is the command-line entrypoint for all other commands.
var rootCmd = &cobra.Command{
	Use:                "repoflux",
	Short:              "Scan git repositories and roll their history up into contributor statistics.",
	Long:               `Repoflux clones and scans git repositories, ingests their full history, and aggregates per-day, per-week, per-month, and lifetime statistics for teams and individual authors.`,
	Version:            version,
	SilenceErrors:      true,
	SilenceUsage:       true,
	DisableSuggestions: true,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName(".repoflux")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
	}

	viper.SetEnvPrefix("REPOFLUX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("db-backend", DefaultDBBackend)
	viper.SetDefault("db-connect", "")
	viper.SetDefault("checkout-root", "")
	viper.SetDefault("lock-path", "")
	viper.SetDefault("workers", DefaultWorkers)
	viper.SetDefault("pull-threshold-minutes", DefaultPullThresholdMinutes)
	viper.SetDefault("log-level", "info")
}

// sharedSetup merges and validates configuration, then opens the store.
// Every data-touching command runs through here as its PreRunE.
func sharedSetup(_ *cobra.Command, _ []string) error {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults, env, and flags cover it.
	}

	if err := viper.Unmarshal(input); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}
	if err := processAndValidate(input, cfg); err != nil {
		return err
	}

	logger = newLogger(cfg.LogLevel)

	var err error
	db, err = store.Open(cfg.DBBackend, cfg.DBConnect)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.DBBackend, err)
	}
	return nil
}

// sharedTeardown closes the store after a command finishes.
func sharedTeardown(_ *cobra.Command, _ []string) error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// newLogger builds the process logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

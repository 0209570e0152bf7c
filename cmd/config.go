package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/repoflux/repoflux/internal/store"
)

// Defaults for everything the config file, env, and flags can override.
const (
	DefaultWorkers              = 4
	DefaultPullThresholdMinutes = 60
	DefaultDBBackend            = string(store.SQLiteBackend)
	DefaultDBPath               = ".repoflux.db"
)

// ConfigRawInput holds the raw, unvalidated configuration merged from file,
// environment, and flags. Viper unmarshals into this struct; validation
// produces a Config.
type ConfigRawInput struct {
	DBBackend            string            `mapstructure:"db-backend"`
	DBConnect            string            `mapstructure:"db-connect"`
	CheckoutRoot         string            `mapstructure:"checkout-root"`
	LockPath             string            `mapstructure:"lock-path"`
	Workers              int               `mapstructure:"workers"`
	PullThresholdMinutes int               `mapstructure:"pull-threshold-minutes"`
	LogLevel             string            `mapstructure:"log-level"`
	Aliases              map[string]string `mapstructure:"aliases"`
}

// Config is the validated, final configuration.
type Config struct {
	DBBackend     store.Backend
	DBConnect     string
	CheckoutRoot  string
	LockPath      string
	Workers       int
	PullThreshold time.Duration
	LogLevel      string
	Aliases       map[string]string
}

// processAndValidate turns raw input into a validated Config.
func processAndValidate(input *ConfigRawInput, cfg *Config) error {
	backend := store.Backend(input.DBBackend)
	if _, ok := store.ValidBackends[backend]; !ok {
		return fmt.Errorf("invalid db-backend %q: must be sqlite, postgres, or mysql", input.DBBackend)
	}
	cfg.DBBackend = backend

	cfg.DBConnect = input.DBConnect
	if cfg.DBConnect == "" {
		if backend != store.SQLiteBackend {
			return fmt.Errorf("db-connect is required for the %s backend", backend)
		}
		cfg.DBConnect = DefaultDBPath
	}

	cfg.CheckoutRoot = input.CheckoutRoot
	if cfg.CheckoutRoot == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory for checkout root: %w", err)
		}
		cfg.CheckoutRoot = filepath.Join(home, ".repoflux", "checkouts")
	}

	cfg.LockPath = input.LockPath
	if cfg.LockPath == "" {
		cfg.LockPath = filepath.Join(os.TempDir(), "repoflux-scan.lock")
	}

	if input.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", input.Workers)
	}
	cfg.Workers = input.Workers

	if input.PullThresholdMinutes < 0 {
		return fmt.Errorf("pull-threshold-minutes must not be negative, got %d", input.PullThresholdMinutes)
	}
	cfg.PullThreshold = time.Duration(input.PullThresholdMinutes) * time.Minute

	cfg.LogLevel = input.LogLevel
	cfg.Aliases = input.Aliases
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/repoflux/repoflux/core/scan"
	"github.com/repoflux/repoflux/internal/gitcmd"
)

// scanCmd runs the full pipeline: pull, ingest, roll up.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Pull, ingest, and roll up every enabled repository.",
	Long: `Scan clones or pulls each enabled repository, ingests its full git
history, and rolls the statistics up by day, week, month, and lifetime for
the team and each author. One scan process runs at a time per installation;
a second invocation exits immediately.

Per-repository failures do not stop the run. The command exits nonzero when
any repository failed.`,
	PreRunE:  sharedSetup,
	PostRunE: sharedTeardown,
	RunE: func(_ *cobra.Command, _ []string) error {
		scanCfg := scan.Config{
			Workers:       cfg.Workers,
			CheckoutRoot:  cfg.CheckoutRoot,
			LockPath:      cfg.LockPath,
			PullThreshold: cfg.PullThreshold,
			Force:         viper.GetBool("force"),
			Rescan:        viper.GetBool("rescan"),
			Aliases:       cfg.Aliases,
		}

		git := gitcmd.NewLocalClient(gitcmd.DefaultOptions())
		processor := scan.NewProcessor(db, git, logger, scanCfg)
		results, err := processor.Run(rootCtx, viper.GetString("org"))
		if err != nil {
			return err
		}

		var failed int
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d repositories failed", failed, len(results))
		}
		return nil
	},
}

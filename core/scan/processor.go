// Package scan drives the pipeline end to end: list the repositories due
// for work, bring their clones current, ingest their history, and roll the
// statistics up. One scan process runs at a time per installation.
package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/repoflux/repoflux/core/ingest"
	"github.com/repoflux/repoflux/core/rollup"
	"github.com/repoflux/repoflux/internal/gitcmd"
	"github.com/repoflux/repoflux/internal/lockrun"
	"github.com/repoflux/repoflux/internal/store"
	"github.com/repoflux/repoflux/schema"
)

// Config carries the scan run's knobs, resolved by the CLI layer.
type Config struct {
	// Workers sizes the repository worker pool; 1 scans sequentially.
	Workers int

	// CheckoutRoot is where clones live unless an organization overrides it.
	CheckoutRoot string

	// LockPath is the advisory lock file serializing scan processes.
	LockPath string

	// PullThreshold skips repositories pulled more recently than this,
	// unless forced.
	PullThreshold time.Duration

	// Force pulls every repository regardless of the threshold.
	Force bool

	// Rescan wipes each repository's ingested history and statistics before
	// scanning. Destructive.
	Rescan bool

	// Aliases maps alternate author emails to canonical ones.
	Aliases map[string]string
}

// Result is the outcome for one repository.
type Result struct {
	Repo    string
	Org     string
	Skipped bool
	Err     error
}

// Processor owns one scan run.
type Processor struct {
	store *store.Store
	git   gitcmd.Client
	log   *slog.Logger
	cfg   Config
}

// NewProcessor wires a scan run over the store and a git client.
func NewProcessor(st *store.Store, git gitcmd.Client, log *slog.Logger, cfg Config) *Processor {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Processor{store: st, git: git, log: log, cfg: cfg}
}

// Run scans every enabled repository, optionally restricted to one
// organization. Per-repository failures are isolated: the run continues and
// the error count comes back in the summary. The returned error covers only
// run-level failures such as a held lock.
func (p *Processor) Run(ctx context.Context, orgFilter string) ([]Result, error) {
	lock, err := lockrun.Acquire(p.cfg.LockPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	targets, err := p.store.ScanTargets(ctx, orgFilter)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		p.log.Info("no repositories to scan", "org", orgFilter)
		return nil, nil
	}

	targetCh := make(chan store.ScanTarget, len(targets))
	resultCh := make(chan Result, len(targets))
	var wg sync.WaitGroup
	for range p.cfg.Workers {
		wg.Go(func() {
			for target := range targetCh {
				resultCh <- p.processTarget(ctx, target)
			}
		})
	}
	for _, target := range targets {
		targetCh <- target
	}
	close(targetCh)
	wg.Wait()
	close(resultCh)

	results := make([]Result, 0, len(targets))
	for r := range resultCh {
		results = append(results, r)
	}
	p.printSummary(results)
	return results, nil
}

// processTarget runs the full pipeline for one repository.
func (p *Processor) processTarget(ctx context.Context, target store.ScanTarget) Result {
	repo := target.Repo
	res := Result{Repo: repo.Name, Org: target.Org.Name}

	if p.cfg.Rescan || repo.ForceNuclearRescan {
		p.log.Warn("nuclear rescan: deleting all ingested history and statistics",
			"org", target.Org.Name, "repo", repo.Name)
		if err := p.store.NuclearReset(ctx, repo.ID); err != nil {
			res.Err = err
			return res
		}
		repo.LastScanned = nil
		repo.LastPulled = nil
	}

	if p.skipFresh(&repo) {
		p.log.Debug("repository pulled recently, skipping",
			"repo", repo.Name, "last_pulled", repo.LastPulled)
		res.Skipped = true
		return res
	}

	workDir := p.workDir(&target)
	if err := p.git.CloneOrPull(ctx, &repo, target.Cred, workDir); err != nil {
		res.Err = fmt.Errorf("update clone: %w", err)
		return res
	}
	if err := p.store.SetLastPulled(ctx, repo.ID, time.Now().UTC()); err != nil {
		res.Err = err
		return res
	}

	history, err := p.git.FullHistoryLog(ctx, workDir)
	if err != nil && !errors.Is(err, gitcmd.ErrNoCommits) {
		res.Err = fmt.Errorf("read history: %w", err)
		return res
	}

	engine := ingest.NewEngine(p.store, p.log, p.cfg.Aliases)
	if _, err := engine.Ingest(ctx, &target.Org, &repo, bytes.NewReader(history)); err != nil {
		res.Err = err
		return res
	}

	if err := rollup.NewEngine(p.store, p.log).RollupRepo(ctx, &repo); err != nil {
		res.Err = err
		return res
	}
	return res
}

// skipFresh applies the pull threshold.
func (p *Processor) skipFresh(repo *schema.Repository) bool {
	if p.cfg.Force || repo.ForceNextPull || p.cfg.PullThreshold <= 0 {
		return false
	}
	return repo.LastPulled != nil && time.Since(*repo.LastPulled) < p.cfg.PullThreshold
}

// workDir places each clone under <root>/<org>/<repo>; an organization's
// checkout path overrides the configured root.
func (p *Processor) workDir(target *store.ScanTarget) string {
	root := p.cfg.CheckoutRoot
	if target.Org.CheckoutPath != "" {
		root = target.Org.CheckoutPath
	}
	return filepath.Join(root, target.Org.Name, target.Repo.Name)
}

// printSummary writes the operator-facing status lines.
func (p *Processor) printSummary(results []Result) {
	var ok, skipped, failed int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			color.Red("FAIL %s/%s: %v", r.Org, r.Repo, r.Err)
		case r.Skipped:
			skipped++
		default:
			ok++
			color.Green("OK   %s/%s", r.Org, r.Repo)
		}
	}
	p.log.Info("scan run finished", "ok", ok, "skipped", skipped, "failed", failed)
}

// Package rollup aggregates ingested commits and file changes into
// statistic rows: Day first, Week and Month built from the day rows, then
// Lifetime. Team rollups run before per-author ones, and periods closed
// before the previous scan are never recomputed, which is what makes
// incremental scans cheap.
package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/repoflux/repoflux/internal/store"
	"github.com/repoflux/repoflux/schema"
)

// flushBatchSize is how many pending statistic rows accumulate before a
// batched insert.
const flushBatchSize = 2000

// Engine computes and persists rollup rows.
type Engine struct {
	store *store.Store
	log   *slog.Logger

	// now is replaceable so tests can pin the scan time and the cutoff it
	// becomes on the next run.
	now func() time.Time
}

// NewEngine builds a rollup engine over the store.
func NewEngine(st *store.Store, log *slog.Logger) *Engine {
	return &Engine{store: st, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// RollupRepo recomputes statistics for one repository: the team series for
// each interval, then each author's series, then the lifetime rows. A team
// failure aborts the repository; a single author's failure is logged and
// skipped so one bad series cannot starve the rest.
func (e *Engine) RollupRepo(ctx context.Context, repo *schema.Repository) error {
	now := e.now()

	commitCount, err := e.store.CommitCount(ctx, repo.ID)
	if err != nil {
		return err
	}
	if commitCount == 0 {
		e.log.Info("rollup skipped, no commits", "repo", repo.Name)
		return e.store.SetLastScanned(ctx, repo.ID, now)
	}

	cache := NewCache(e.store)
	run := &rollupRun{e: e, repo: repo, cache: cache, now: now}

	if err := run.rollupScope(ctx, nil); err != nil {
		return fmt.Errorf("rollup team for repo %s: %w", repo.Name, err)
	}

	authors, err := e.store.AuthorsForRepo(ctx, repo.ID)
	if err != nil {
		return err
	}
	for i := range authors {
		author := &authors[i]
		if err := run.rollupScope(ctx, &author.ID); err != nil {
			e.log.Error("rollup failed for author, skipping",
				"repo", repo.Name, "author", author.Email, "error", err)
		}
	}

	if err := e.store.SetLastScanned(ctx, repo.ID, now); err != nil {
		return err
	}
	e.log.Info("rollup complete", "repo", repo.Name, "authors", len(authors))
	return nil
}

// rollupRun carries the per-repository state one rollup pass needs.
type rollupRun struct {
	e     *Engine
	repo  *schema.Repository
	cache *Cache
	now   time.Time

	pending []*schema.Statistic
}

// rollupScope computes the full series for one scope: the team when authorID
// is nil, otherwise one author.
func (r *rollupRun) rollupScope(ctx context.Context, authorID *int64) error {
	days, err := r.e.store.CommitDays(ctx, r.repo.ID, authorID)
	if err != nil {
		return err
	}
	if len(days) == 0 {
		return nil
	}

	if err := r.computeDays(ctx, authorID, days); err != nil {
		return err
	}
	// Week and Month read the Day rows back, so those must be on disk first.
	if err := r.flush(ctx); err != nil {
		return err
	}
	for _, interval := range []schema.Interval{schema.IntervalWeek, schema.IntervalMonth} {
		if err := r.computeInterval(ctx, authorID, interval, days); err != nil {
			return err
		}
	}
	if err := r.flush(ctx); err != nil {
		return err
	}
	return r.computeLifetime(ctx, authorID, days)
}

// cutoff returns the day before which rollups are already on record. The
// last scanned day itself recomputes because it may have been open when the
// previous scan wrote it.
func (r *rollupRun) cutoff() (time.Time, bool) {
	if r.repo.LastScanned == nil {
		return time.Time{}, false
	}
	return schema.DayStart(r.repo.LastScanned.UTC()), true
}

// computeDays builds the Day row for each active day from the raw file
// changes.
func (r *rollupRun) computeDays(ctx context.Context, authorID *int64, days []time.Time) error {
	cut, hasCut := r.cutoff()
	for _, day := range days {
		if hasCut && day.Before(cut) {
			continue
		}
		dayEnd := schema.IntervalDay.PeriodEnd(day)
		w, err := r.e.store.FileChangeWindow(ctx, r.repo.ID, authorID, day, dayEnd)
		if err != nil {
			return err
		}
		if w.CommitCount == 0 && w.LinesAdded == 0 && w.LinesRemoved == 0 {
			// Commits with no surviving file changes, usually merges.
			r.e.log.Debug("skipping day with no changes",
				"repo", r.repo.Name, "day", day.Format("2006-01-02"))
			continue
		}

		sums := schema.StatSums{
			LinesAdded:   w.LinesAdded,
			LinesRemoved: w.LinesRemoved,
			LinesChanged: w.LinesAdded + w.LinesRemoved,
			CommitTotal:  w.CommitCount,
			FilesChanged: w.FileCount,
			AuthorTotal:  w.AuthorCount,
			DaysActive:   1,
			Creates:      w.Creates,
			Edits:        w.Edits,
			Moves:        w.Moves,
		}
		if err := r.record(ctx, authorID, schema.IntervalDay, day, sums); err != nil {
			return err
		}
	}
	return nil
}

// computeInterval builds Week or Month rows by summing the Day rows inside
// each period. Author and file counts cannot be summed across days without
// double counting, so those recompute from the raw tables through the cache.
func (r *rollupRun) computeInterval(ctx context.Context, authorID *int64, interval schema.Interval, days []time.Time) error {
	cut, hasCut := r.cutoff()
	cutStart := interval.PeriodStart(cut)

	seen := map[time.Time]struct{}{}
	for _, day := range days {
		start := interval.PeriodStart(day)
		if _, done := seen[start]; done {
			continue
		}
		seen[start] = struct{}{}
		if hasCut && start.Before(cutStart) {
			continue
		}
		end := interval.PeriodEnd(start)

		sums, err := r.e.store.DayStatSums(ctx, r.repo.ID, authorID, start, end)
		if err != nil {
			return err
		}
		if sums.CommitTotal == 0 && sums.LinesChanged == 0 {
			continue
		}

		if sums.FilesChanged, err = r.cache.FileCount(ctx, r.repo.ID, authorID, &start, &end); err != nil {
			return err
		}
		if authorID != nil {
			sums.AuthorTotal = 1
		} else if sums.AuthorTotal, err = r.cache.AuthorCount(ctx, r.repo.ID, &start, &end); err != nil {
			return err
		}

		if err := r.record(ctx, authorID, interval, start, sums); err != nil {
			return err
		}
	}
	return nil
}

// computeLifetime builds the single unbounded row for the scope and then
// copies its context fields onto every other row of the same scope.
func (r *rollupRun) computeLifetime(ctx context.Context, authorID *int64, days []time.Time) error {
	earliest, latest, err := r.e.store.CommitBounds(ctx, r.repo.ID, authorID)
	if err != nil {
		return err
	}
	if earliest == nil || latest == nil {
		return nil
	}
	// The repo bounds anchor days-since-seen and days-before-joined even for
	// author scopes.
	repoEarliest, repoLatest := earliest, latest
	if authorID != nil {
		repoEarliest, repoLatest, err = r.e.store.CommitBounds(ctx, r.repo.ID, nil)
		if err != nil {
			return err
		}
	}

	first := days[0]
	last := schema.IntervalDay.PeriodEnd(days[len(days)-1])
	sums, err := r.e.store.DayStatSums(ctx, r.repo.ID, authorID, first, last)
	if err != nil {
		return err
	}
	if sums.FilesChanged, err = r.cache.FileCount(ctx, r.repo.ID, authorID, nil, nil); err != nil {
		return err
	}
	if authorID != nil {
		sums.AuthorTotal = 1
	} else if sums.AuthorTotal, err = r.cache.AuthorCount(ctx, r.repo.ID, nil, nil); err != nil {
		return err
	}

	st := &schema.Statistic{
		Interval: schema.IntervalLifetime,
		RepoID:   r.repo.ID,
		AuthorID: authorID,
	}
	st.ApplySums(sums)

	st.EarliestCommitDate = earliest
	st.LatestCommitDate = latest
	st.DaysSinceSeen = daysBetween(*latest, *repoLatest)
	st.DaysBeforeJoined = daysBetween(*repoEarliest, *earliest)
	st.Longevity = daysBetween(*earliest, *latest) + 1
	st.Commitment = float64(sums.DaysActive) / float64(1+st.Longevity)
	scanned := r.now
	st.LastScanned = &scanned

	if err := r.upsert(ctx, st); err != nil {
		return err
	}
	if err := r.flush(ctx); err != nil {
		return err
	}
	return r.e.store.PropagateLifetime(ctx, r.repo.ID, authorID, st)
}

// record derives the statistic row for one period and upserts it. Every
// period reaching here sits at or past the cutoff, so it may already have a
// row from the scan that saw it open; replacing in place keeps the key
// unique and the values current.
func (r *rollupRun) record(ctx context.Context, authorID *int64, interval schema.Interval, start time.Time, sums schema.StatSums) error {
	startCopy := start
	st := &schema.Statistic{
		StartDate: &startCopy,
		Interval:  interval,
		RepoID:    r.repo.ID,
		AuthorID:  authorID,
	}
	st.ApplySums(sums)
	return r.upsert(ctx, st)
}

// upsert replaces an existing row's values in place, or queues an insert
// when no row exists yet. Every recomputed row goes through here so its key
// never duplicates, even when the row was first written by an earlier scan.
func (r *rollupRun) upsert(ctx context.Context, st *schema.Statistic) error {
	existing, err := r.e.store.FindStatistic(ctx, st.RepoID, st.AuthorID, st.Interval, st.StartDate)
	if err != nil {
		return err
	}
	if existing != nil {
		existing.CopyValuesFrom(st)
		if err := r.e.store.UpdateStatisticValues(ctx, existing); err != nil {
			return err
		}
		r.cache.Invalidate()
		return nil
	}
	return r.queue(ctx, st)
}

func (r *rollupRun) queue(ctx context.Context, st *schema.Statistic) error {
	r.pending = append(r.pending, st)
	if len(r.pending) >= flushBatchSize {
		return r.flush(ctx)
	}
	return nil
}

// flush writes the pending batch and invalidates the memo cache, since the
// new rows change what subsequent reads should see.
func (r *rollupRun) flush(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}
	if err := r.e.store.InsertStatistics(ctx, r.pending); err != nil {
		return err
	}
	r.pending = r.pending[:0]
	r.cache.Invalidate()
	return nil
}

// daysBetween counts whole calendar days from a to b.
func daysBetween(a, b time.Time) int {
	return int(schema.DayStart(b.UTC()).Sub(schema.DayStart(a.UTC())).Hours() / 24)
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/repoflux/repoflux/schema"
)

const statCols = `id, start_date, period, repo_id, author_id,
	lines_added, lines_removed, lines_changed, commit_total, files_changed,
	author_total, days_active, creates, edits, moves,
	average_commit_size, commits_per_day, lines_changed_per_day,
	files_changed_per_day, flux, bias, commitment,
	earliest_commit_date, latest_commit_date, days_since_seen,
	days_before_joined, longevity, last_scanned`

const statValueCols = `lines_added, lines_removed, lines_changed, commit_total,
	files_changed, author_total, days_active, creates, edits, moves,
	average_commit_size, commits_per_day, lines_changed_per_day,
	files_changed_per_day, flux, bias, commitment,
	earliest_commit_date, latest_commit_date, days_since_seen,
	days_before_joined, longevity, last_scanned`

func statValueArgs(st *schema.Statistic) []any {
	return []any{
		st.LinesAdded, st.LinesRemoved, st.LinesChanged, st.CommitTotal,
		st.FilesChanged, st.AuthorTotal, st.DaysActive, st.Creates, st.Edits, st.Moves,
		st.AverageCommitSize, st.CommitsPerDay, st.LinesChangedPerDay,
		st.FilesChangedPerDay, st.Flux, st.Bias, st.Commitment,
		fmtTimePtr(st.EarliestCommitDate), fmtTimePtr(st.LatestCommitDate),
		st.DaysSinceSeen, st.DaysBeforeJoined, st.Longevity,
		fmtTimePtr(st.LastScanned),
	}
}

// FindStatistic loads the row for one exact rollup key, or nil when absent.
// startDate nil selects the lifetime row, authorID nil the team row.
func (s *Store) FindStatistic(ctx context.Context, repoID int64, authorID *int64, interval schema.Interval, startDate *time.Time) (*schema.Statistic, error) {
	query := "SELECT " + statCols + " FROM statistics WHERE repo_id = ? AND period = ?"
	args := []any{repoID, string(interval)}
	if authorID != nil {
		query += " AND author_id = ?"
		args = append(args, *authorID)
	} else {
		query += " AND author_id IS NULL"
	}
	if startDate != nil {
		query += " AND start_date = ?"
		args = append(args, fmtTime(*startDate))
	} else {
		query += " AND start_date IS NULL"
	}

	row := s.db.QueryRowContext(ctx, s.rebind(query), args...)
	st, err := scanStatistic(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load statistic for repo %d: %w", repoID, err)
	}
	return st, nil
}

// UpdateStatisticValues rewrites every value column of an existing row by id.
// The open-period replace path funnels through here.
func (s *Store) UpdateStatisticValues(ctx context.Context, st *schema.Statistic) error {
	query := s.rebind(`UPDATE statistics SET
		lines_added = ?, lines_removed = ?, lines_changed = ?, commit_total = ?,
		files_changed = ?, author_total = ?, days_active = ?, creates = ?,
		edits = ?, moves = ?, average_commit_size = ?, commits_per_day = ?,
		lines_changed_per_day = ?, files_changed_per_day = ?, flux = ?, bias = ?,
		commitment = ?, earliest_commit_date = ?, latest_commit_date = ?,
		days_since_seen = ?, days_before_joined = ?, longevity = ?, last_scanned = ?
		WHERE id = ?`)
	args := append(statValueArgs(st), st.ID)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update statistic %d: %w", st.ID, err)
	}
	return nil
}

// InsertStatistics writes a batch of rollup rows in one transaction.
// Rows whose key already exists are dropped, so replays of closed periods
// cannot fail or duplicate.
func (s *Store) InsertStatistics(ctx context.Context, stats []*schema.Statistic) error {
	if len(stats) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert statistics: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// The conflict target must spell out the sentinel expressions of the
	// unique index, or NULL-keyed team and lifetime rows would duplicate.
	query := s.rebind(s.insertIgnore("statistics",
		"start_date, period, repo_id, author_id, "+statValueCols, 27,
		"COALESCE(start_date, ''), period, repo_id, COALESCE(author_id, -1)"))
	for _, st := range stats {
		args := []any{fmtTimePtr(st.StartDate), string(st.Interval), st.RepoID, int64Arg(st.AuthorID)}
		args = append(args, statValueArgs(st)...)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert %s statistic for repo %d: %w",
				st.Interval, st.RepoID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert statistics: %w", err)
	}
	return nil
}

// DayStatSums adds up the already-rolled-up day rows for one scope within
// [start, end]. The week and month rollups build on this instead of going
// back to raw file changes.
func (s *Store) DayStatSums(ctx context.Context, repoID int64, authorID *int64, start, end time.Time) (schema.StatSums, error) {
	query := `SELECT
		COALESCE(SUM(lines_added), 0), COALESCE(SUM(lines_removed), 0),
		COALESCE(SUM(lines_changed), 0), COALESCE(SUM(commit_total), 0),
		COALESCE(SUM(days_active), 0), COALESCE(SUM(creates), 0),
		COALESCE(SUM(edits), 0), COALESCE(SUM(moves), 0)
		FROM statistics
		WHERE repo_id = ? AND period = ? AND start_date >= ? AND start_date <= ?`
	args := []any{repoID, string(schema.IntervalDay), fmtTime(start), fmtTime(end)}
	if authorID != nil {
		query += " AND author_id = ?"
		args = append(args, *authorID)
	} else {
		query += " AND author_id IS NULL"
	}

	var sums schema.StatSums
	row := s.db.QueryRowContext(ctx, s.rebind(query), args...)
	err := row.Scan(&sums.LinesAdded, &sums.LinesRemoved, &sums.LinesChanged,
		&sums.CommitTotal, &sums.DaysActive, &sums.Creates, &sums.Edits, &sums.Moves)
	if err != nil {
		return schema.StatSums{}, fmt.Errorf("sum day statistics for repo %d: %w", repoID, err)
	}
	return sums, nil
}

// PropagateLifetime copies the lifetime context fields onto every statistic
// row of the (repo, author) pair, so any row a consumer reads already carries
// them.
func (s *Store) PropagateLifetime(ctx context.Context, repoID int64, authorID *int64, lf *schema.Statistic) error {
	query := `UPDATE statistics SET
		earliest_commit_date = ?, latest_commit_date = ?, days_since_seen = ?,
		days_before_joined = ?, longevity = ?, commitment = ?, last_scanned = ?
		WHERE repo_id = ?`
	args := []any{
		fmtTimePtr(lf.EarliestCommitDate), fmtTimePtr(lf.LatestCommitDate),
		lf.DaysSinceSeen, lf.DaysBeforeJoined, lf.Longevity, lf.Commitment,
		fmtTimePtr(lf.LastScanned), repoID,
	}
	if authorID != nil {
		query += " AND author_id = ?"
		args = append(args, *authorID)
	} else {
		query += " AND author_id IS NULL"
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(query), args...); err != nil {
		return fmt.Errorf("propagate lifetime for repo %d: %w", repoID, err)
	}
	return nil
}

// StatFilter selects statistic rows for reporting and tests.
type StatFilter struct {
	RepoID   int64
	Interval schema.Interval // "" selects all intervals
	AuthorID *int64          // team rows unless AnyAuthor
	AnyAuthor bool
	Start    *time.Time
	End      *time.Time
}

// Statistics lists rollup rows matching the filter, ordered by interval and
// start date.
func (s *Store) Statistics(ctx context.Context, f StatFilter) ([]schema.Statistic, error) {
	query := "SELECT " + statCols + " FROM statistics WHERE repo_id = ?"
	args := []any{f.RepoID}
	if f.Interval != "" {
		query += " AND period = ?"
		args = append(args, string(f.Interval))
	}
	if !f.AnyAuthor {
		if f.AuthorID != nil {
			query += " AND author_id = ?"
			args = append(args, *f.AuthorID)
		} else {
			query += " AND author_id IS NULL"
		}
	}
	if f.Start != nil {
		query += " AND start_date >= ?"
		args = append(args, fmtTime(*f.Start))
	}
	if f.End != nil {
		query += " AND start_date <= ?"
		args = append(args, fmtTime(*f.End))
	}
	query += " ORDER BY period, start_date, author_id"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list statistics for repo %d: %w", f.RepoID, err)
	}
	defer rows.Close()

	var out []schema.Statistic
	for rows.Next() {
		st, err := scanStatistic(rows)
		if err != nil {
			return nil, fmt.Errorf("list statistics for repo %d: %w", f.RepoID, err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func scanStatistic(r rowScanner) (*schema.Statistic, error) {
	var st schema.Statistic
	var startDate, earliest, latest, lastScanned sql.NullString
	var authorID sql.NullInt64
	var interval string
	err := r.Scan(&st.ID, &startDate, &interval, &st.RepoID, &authorID,
		&st.LinesAdded, &st.LinesRemoved, &st.LinesChanged, &st.CommitTotal,
		&st.FilesChanged, &st.AuthorTotal, &st.DaysActive, &st.Creates,
		&st.Edits, &st.Moves, &st.AverageCommitSize, &st.CommitsPerDay,
		&st.LinesChangedPerDay, &st.FilesChangedPerDay, &st.Flux, &st.Bias,
		&st.Commitment, &earliest, &latest, &st.DaysSinceSeen,
		&st.DaysBeforeJoined, &st.Longevity, &lastScanned)
	if err != nil {
		return nil, err
	}
	st.Interval = schema.Interval(interval)
	st.AuthorID = nullInt64(authorID)
	if st.StartDate, err = scanTimePtr(startDate); err != nil {
		return nil, err
	}
	if st.EarliestCommitDate, err = scanTimePtr(earliest); err != nil {
		return nil, err
	}
	if st.LatestCommitDate, err = scanTimePtr(latest); err != nil {
		return nil, err
	}
	if st.LastScanned, err = scanTimePtr(lastScanned); err != nil {
		return nil, err
	}
	return &st, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/repoflux/repoflux/schema"
)

// InsertCommit writes one commit inside the transaction. When the (repo, sha)
// pair already exists the insert is a no-op and created is false; the caller
// skips the commit's file changes, which is what makes re-scans idempotent.
func (t *Tx) InsertCommit(ctx context.Context, c *schema.Commit) (created bool, err error) {
	query := t.s.insertIgnore("commits",
		"repo_id, sha, author_id, author_date, commit_date, subject", 6,
		"repo_id, sha")
	res, err := t.tx.ExecContext(ctx, t.s.rebind(query),
		c.RepoID, c.SHA, int64Arg(c.AuthorID),
		fmtTime(c.AuthorDate), fmtTime(c.CommitDate), c.Subject)
	if err != nil {
		return false, fmt.Errorf("insert commit %s: %w", c.SHA, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert commit %s: %w", c.SHA, err)
	}

	row := t.tx.QueryRowContext(ctx, t.s.rebind(
		"SELECT id FROM commits WHERE repo_id = ? AND sha = ?"), c.RepoID, c.SHA)
	if err := row.Scan(&c.ID); err != nil {
		return false, fmt.Errorf("load commit %s: %w", c.SHA, err)
	}
	return affected > 0, nil
}

// CommitCount reports the number of commits ingested for a repository.
func (s *Store) CommitCount(ctx context.Context, repoID int64) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT COUNT(*) FROM commits WHERE repo_id = ?"), repoID)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count commits for repo %d: %w", repoID, err)
	}
	return n, nil
}

// CommitDays returns the distinct UTC days with at least one commit, oldest
// first. authorID nil means the whole team. The rollup engine derives the
// week and month buckets from this list.
func (s *Store) CommitDays(ctx context.Context, repoID int64, authorID *int64) ([]time.Time, error) {
	query := `SELECT DISTINCT SUBSTR(commit_date, 1, 10) AS day
		FROM commits WHERE repo_id = ?`
	args := []any{repoID}
	if authorID != nil {
		query += " AND author_id = ?"
		args = append(args, *authorID)
	}
	query += " ORDER BY day"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list commit days for repo %d: %w", repoID, err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("list commit days for repo %d: %w", repoID, err)
		}
		d, err := time.ParseInLocation("2006-01-02", day, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse commit day %q: %w", day, err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// CommitBounds returns the earliest and latest commit date for the scope,
// or (nil, nil) when no commits exist. authorID nil means the whole team.
func (s *Store) CommitBounds(ctx context.Context, repoID int64, authorID *int64) (earliest, latest *time.Time, err error) {
	query := "SELECT MIN(commit_date), MAX(commit_date) FROM commits WHERE repo_id = ?"
	args := []any{repoID}
	if authorID != nil {
		query += " AND author_id = ?"
		args = append(args, *authorID)
	}

	var minStr, maxStr sql.NullString
	row := s.db.QueryRowContext(ctx, s.rebind(query), args...)
	if err := row.Scan(&minStr, &maxStr); err != nil {
		return nil, nil, fmt.Errorf("commit bounds for repo %d: %w", repoID, err)
	}
	if earliest, err = scanTimePtr(minStr); err != nil {
		return nil, nil, err
	}
	if latest, err = scanTimePtr(maxStr); err != nil {
		return nil, nil, err
	}
	return earliest, latest, nil
}

// AuthorCountInRange counts distinct commit authors for the repository within
// [start, end]; nil bounds are unbounded on that side.
func (s *Store) AuthorCountInRange(ctx context.Context, repoID int64, start, end *time.Time) (int, error) {
	query := `SELECT COUNT(DISTINCT author_id) FROM commits
		WHERE repo_id = ? AND author_id IS NOT NULL`
	args := []any{repoID}
	if start != nil {
		query += " AND commit_date >= ?"
		args = append(args, fmtTime(*start))
	}
	if end != nil {
		query += " AND commit_date <= ?"
		args = append(args, fmtTime(*end))
	}

	var n int
	row := s.db.QueryRowContext(ctx, s.rebind(query), args...)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count authors for repo %d: %w", repoID, err)
	}
	return n, nil
}

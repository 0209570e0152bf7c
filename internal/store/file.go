package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/repoflux/repoflux/schema"
)

// GetFile looks up one file row inside the transaction; (nil, nil) when the
// path has not been seen yet.
func (t *Tx) GetFile(ctx context.Context, repoID int64, path, name string) (*schema.File, error) {
	row := t.tx.QueryRowContext(ctx, t.s.rebind(
		`SELECT id, repo_id, path, name, ext, is_binary, created_by_id
		FROM files WHERE repo_id = ? AND path = ? AND name = ?`), repoID, path, name)

	var f schema.File
	var isBinary int
	err := row.Scan(&f.ID, &f.RepoID, &f.Path, &f.Name, &f.Ext, &isBinary, &f.CreatedByID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load file %s/%s: %w", path, name, err)
	}
	f.Binary = isBinary != 0
	return &f, nil
}

// InsertFile writes one file row inside the transaction and fills in its id.
func (t *Tx) InsertFile(ctx context.Context, f *schema.File) error {
	query := t.s.insertIgnore("files",
		"repo_id, path, name, ext, is_binary, created_by_id", 6,
		"repo_id, path, name")
	_, err := t.tx.ExecContext(ctx, t.s.rebind(query),
		f.RepoID, f.Path, f.Name, f.Ext, boolInt(f.Binary), f.CreatedByID)
	if err != nil {
		return fmt.Errorf("insert file %s/%s: %w", f.Path, f.Name, err)
	}
	row := t.tx.QueryRowContext(ctx, t.s.rebind(
		"SELECT id FROM files WHERE repo_id = ? AND path = ? AND name = ?"),
		f.RepoID, f.Path, f.Name)
	if err := row.Scan(&f.ID); err != nil {
		return fmt.Errorf("load file %s/%s: %w", f.Path, f.Name, err)
	}
	return nil
}

// SetFileCreator re-points a file's creating commit. Used when a commit that
// predates the recorded creator surfaces later in the log stream.
func (t *Tx) SetFileCreator(ctx context.Context, fileID, commitID int64) error {
	query := t.s.rebind("UPDATE files SET created_by_id = ? WHERE id = ?")
	if _, err := t.tx.ExecContext(ctx, query, commitID, fileID); err != nil {
		return fmt.Errorf("set creator of file %d: %w", fileID, err)
	}
	return nil
}

// MarkChangeEdit demotes one file change from create to edit, the other half
// of handing creatorship to an earlier commit.
func (t *Tx) MarkChangeEdit(ctx context.Context, fileID, commitID int64) error {
	query := t.s.rebind(
		"UPDATE file_changes SET is_create = 0, is_edit = 1 WHERE file_id = ? AND commit_id = ?")
	if _, err := t.tx.ExecContext(ctx, query, fileID, commitID); err != nil {
		return fmt.Errorf("reclassify change (file %d, commit %d): %w", fileID, commitID, err)
	}
	return nil
}

// InsertFileChange writes one file/commit join row inside the transaction.
// Duplicate (file, commit) pairs are dropped; created reports whether the row
// was new.
func (t *Tx) InsertFileChange(ctx context.Context, fc *schema.FileChange) (created bool, err error) {
	query := t.s.insertIgnore("file_changes",
		"file_id, commit_id, lines_added, lines_removed, is_create, is_edit, is_move", 7,
		"file_id, commit_id")
	res, err := t.tx.ExecContext(ctx, t.s.rebind(query),
		fc.FileID, fc.CommitID, fc.LinesAdded, fc.LinesRemoved,
		fc.IsCreate, fc.IsEdit, fc.IsMove)
	if err != nil {
		return false, fmt.Errorf("insert file change (file %d, commit %d): %w",
			fc.FileID, fc.CommitID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert file change (file %d, commit %d): %w",
			fc.FileID, fc.CommitID, err)
	}
	return affected > 0, nil
}

// ChangeWindow aggregates file changes for one scope and time window.
type ChangeWindow struct {
	LinesAdded   int
	LinesRemoved int
	Creates      int
	Edits        int
	Moves        int
	CommitCount  int // distinct commits touching files in the window
	FileCount    int // distinct files touched in the window
	AuthorCount  int // distinct authors among those commits
}

// FileChangeWindow sums the file changes whose commit falls in [start, end]
// for the repository. authorID nil aggregates the whole team.
func (s *Store) FileChangeWindow(ctx context.Context, repoID int64, authorID *int64, start, end time.Time) (*ChangeWindow, error) {
	query := `SELECT
		COALESCE(SUM(fc.lines_added), 0),
		COALESCE(SUM(fc.lines_removed), 0),
		COALESCE(SUM(fc.is_create), 0),
		COALESCE(SUM(fc.is_edit), 0),
		COALESCE(SUM(fc.is_move), 0),
		COUNT(DISTINCT fc.commit_id),
		COUNT(DISTINCT fc.file_id),
		COUNT(DISTINCT c.author_id)
		FROM file_changes fc
		JOIN commits c ON c.id = fc.commit_id
		WHERE c.repo_id = ? AND c.commit_date >= ? AND c.commit_date <= ?`
	args := []any{repoID, fmtTime(start), fmtTime(end)}
	if authorID != nil {
		query += " AND c.author_id = ?"
		args = append(args, *authorID)
	}

	var w ChangeWindow
	row := s.db.QueryRowContext(ctx, s.rebind(query), args...)
	err := row.Scan(&w.LinesAdded, &w.LinesRemoved, &w.Creates, &w.Edits, &w.Moves,
		&w.CommitCount, &w.FileCount, &w.AuthorCount)
	if err != nil {
		return nil, fmt.Errorf("aggregate file changes for repo %d: %w", repoID, err)
	}
	return &w, nil
}

// DistinctFileCount counts the distinct files touched in [start, end]; nil
// bounds are unbounded on that side. authorID nil means the whole team.
func (s *Store) DistinctFileCount(ctx context.Context, repoID int64, authorID *int64, start, end *time.Time) (int, error) {
	query := `SELECT COUNT(DISTINCT fc.file_id)
		FROM file_changes fc
		JOIN commits c ON c.id = fc.commit_id
		WHERE c.repo_id = ?`
	args := []any{repoID}
	if authorID != nil {
		query += " AND c.author_id = ?"
		args = append(args, *authorID)
	}
	if start != nil {
		query += " AND c.commit_date >= ?"
		args = append(args, fmtTime(*start))
	}
	if end != nil {
		query += " AND c.commit_date <= ?"
		args = append(args, fmtTime(*end))
	}

	var n int
	row := s.db.QueryRowContext(ctx, s.rebind(query), args...)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count files for repo %d: %w", repoID, err)
	}
	return n, nil
}

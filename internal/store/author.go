package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/repoflux/repoflux/schema"
)

// execer is the common surface of *sql.DB and *sql.Tx that the author
// helpers need. Author resolution happens inside ingestion transactions, so
// both must work.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetOrCreateAuthor resolves an author row by email, creating it on first
// sight. The created flag is true when this call inserted the row.
func (s *Store) GetOrCreateAuthor(ctx context.Context, email string) (*schema.Author, bool, error) {
	return getOrCreateAuthor(ctx, s, s.db, email)
}

// GetOrCreateAuthor is the transaction-scoped variant; ingestion batches use
// it so author rows land atomically with their commits.
func (t *Tx) GetOrCreateAuthor(ctx context.Context, email string) (*schema.Author, bool, error) {
	return getOrCreateAuthor(ctx, t.s, t.tx, email)
}

func getOrCreateAuthor(ctx context.Context, s *Store, db execer, email string) (*schema.Author, bool, error) {
	query := s.insertIgnore("authors", "email", 1, "email")
	res, err := db.ExecContext(ctx, s.rebind(query), email)
	if err != nil {
		return nil, false, fmt.Errorf("create author %q: %w", email, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("create author %q: %w", email, err)
	}
	author, err := authorByEmail(ctx, s, db, email)
	if err != nil {
		return nil, false, err
	}
	return author, affected > 0, nil
}

// AuthorByEmail looks up one author.
func (s *Store) AuthorByEmail(ctx context.Context, email string) (*schema.Author, error) {
	return authorByEmail(ctx, s, s.db, email)
}

func authorByEmail(ctx context.Context, s *Store, db execer, email string) (*schema.Author, error) {
	row := db.QueryRowContext(ctx, s.rebind(
		"SELECT id, email, display_name, alias_for_id FROM authors WHERE email = ?"), email)
	author, err := scanAuthor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("author %q: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load author %q: %w", email, err)
	}
	return author, nil
}

// BackfillAuthorName fills in the display name when none is recorded yet.
// The first name the log reports for an email wins; later variants are kept
// out so rollups stay stable.
func (s *Store) BackfillAuthorName(ctx context.Context, authorID int64, name string) error {
	return backfillAuthorName(ctx, s, s.db, authorID, name)
}

// BackfillAuthorName is the transaction-scoped variant.
func (t *Tx) BackfillAuthorName(ctx context.Context, authorID int64, name string) error {
	return backfillAuthorName(ctx, t.s, t.tx, authorID, name)
}

func backfillAuthorName(ctx context.Context, s *Store, db execer, authorID int64, name string) error {
	if name == "" {
		return nil
	}
	query := s.rebind(
		"UPDATE authors SET display_name = ? WHERE id = ? AND display_name = ''")
	if _, err := db.ExecContext(ctx, query, name, authorID); err != nil {
		return fmt.Errorf("backfill author %d name: %w", authorID, err)
	}
	return nil
}

// AuthorsForRepo lists the distinct authors with at least one commit in the
// repository, ordered by email for deterministic rollup order.
func (s *Store) AuthorsForRepo(ctx context.Context, repoID int64) ([]schema.Author, error) {
	query := s.rebind(`SELECT a.id, a.email, a.display_name, a.alias_for_id
		FROM authors a
		WHERE a.id IN (SELECT DISTINCT author_id FROM commits WHERE repo_id = ? AND author_id IS NOT NULL)
		ORDER BY a.email`)
	rows, err := s.db.QueryContext(ctx, query, repoID)
	if err != nil {
		return nil, fmt.Errorf("list authors for repo %d: %w", repoID, err)
	}
	defer rows.Close()

	var out []schema.Author
	for rows.Next() {
		author, err := scanAuthor(rows)
		if err != nil {
			return nil, fmt.Errorf("list authors for repo %d: %w", repoID, err)
		}
		out = append(out, *author)
	}
	return out, rows.Err()
}

func scanAuthor(r rowScanner) (*schema.Author, error) {
	var author schema.Author
	var aliasFor sql.NullInt64
	if err := r.Scan(&author.ID, &author.Email, &author.DisplayName, &aliasFor); err != nil {
		return nil, err
	}
	author.AliasForID = nullInt64(aliasFor)
	return &author, nil
}

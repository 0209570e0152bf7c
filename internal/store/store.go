// Package store persists the scan pipeline's entities on a relational
// backend. SQLite is the default (and the test backend); PostgreSQL and
// MySQL are selectable for shared installations. All uniqueness constraints
// from the data model are enforced by unique indexes in the migrations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver (pure Go)
)

// Backend selects the database engine.
type Backend string

// All storage backends supported.
const (
	SQLiteBackend   Backend = "sqlite" // default
	PostgresBackend Backend = "postgres"
	MySQLBackend    Backend = "mysql"
)

// ValidBackends lists all valid storage backends.
var ValidBackends = map[Backend]struct{}{
	SQLiteBackend:   {},
	PostgresBackend: {},
	MySQLBackend:    {},
}

// timeLayout is the stored timestamp format: RFC3339 in UTC at second
// precision. Fixed width, so lexicographic TEXT comparison is chronological
// on every backend.
const timeLayout = "2006-01-02T15:04:05Z"

// Store wraps one database connection.
type Store struct {
	db      *sql.DB
	backend Backend
}

// Open connects to the given backend and runs pending migrations.
// For sqlite, connStr is a file path (":memory:" for tests); for postgres a
// DSN like "host=... user=... dbname=..."; for mysql
// "user:password@tcp(host:port)/dbname".
func Open(backend Backend, connStr string) (*Store, error) {
	var db *sql.DB
	var err error

	switch backend {
	case SQLiteBackend:
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", connStr)
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite at %q: %w", connStr, err)
		}
		// One connection keeps sqlite serialized and makes :memory:
		// databases behave (each new connection would get a fresh one).
		db.SetMaxOpenConns(1)

	case PostgresBackend:
		db, err = sql.Open("pgx", connStr)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}

	case MySQLBackend:
		db, err = sql.Open("mysql", connStr)
		if err != nil {
			return nil, fmt.Errorf("connect to mysql: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported backend %q: must be sqlite, postgres, or mysql", backend)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", backend, err)
	}

	s := &Store{db: db, backend: backend}
	if err := s.Migrate(-1); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin starts a write transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx, s: s}, nil
}

// Tx is a write transaction over the store.
type Tx struct {
	tx *sql.Tx
	s  *Store
}

// Commit commits the transaction.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback aborts the transaction. Safe to defer after Commit.
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// rebind converts ?-style placeholders to the $N form postgres expects.
// Queries throughout the package are written with ?.
func (s *Store) rebind(query string) string {
	if s.backend != PostgresBackend {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// insertIgnore builds an insert statement whose unique-constraint conflicts
// are silently dropped, which is what makes re-scans idempotent.
func (s *Store) insertIgnore(table, cols string, nvals int, conflictCols string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", nvals), ", ")
	if s.backend == MySQLBackend {
		return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)", table, cols, placeholders)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		table, cols, placeholders, conflictCols)
}

// fmtTime renders a timestamp in the stored layout.
func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// fmtTimePtr renders a nullable timestamp.
func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

// parseTime reads a stored timestamp.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

// scanTimePtr converts a nullable stored timestamp.
func scanTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// nullInt64 converts a nullable id column.
func nullInt64(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

// int64Arg converts a nullable id for use as a query argument.
func int64Arg(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

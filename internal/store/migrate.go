package store

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Schema DDL differs enough across engines (autoincrement syntax, booleans,
// index creation) that each backend carries its own migration set.
//
//go:embed migrations
var migrationsFS embed.FS

// migrator builds a migrate instance against the open connection.
func (s *Store) migrator() (*migrate.Migrate, error) {
	sub, err := fs.Sub(migrationsFS, "migrations/"+string(s.backend))
	if err != nil {
		return nil, fmt.Errorf("locate %s migrations: %w", s.backend, err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("read %s migrations: %w", s.backend, err)
	}

	var drv database.Driver
	switch s.backend {
	case SQLiteBackend:
		drv, err = migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	case PostgresBackend:
		drv, err = migratepgx.WithInstance(s.db, &migratepgx.Config{})
	case MySQLBackend:
		drv, err = migratemysql.WithInstance(s.db, &migratemysql.Config{})
	default:
		return nil, fmt.Errorf("no migration driver for backend %q", s.backend)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s migration driver: %w", s.backend, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(s.backend), drv)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// Migrate moves the schema to the target version; target < 0 means latest.
// A no-op when already current.
func (s *Store) Migrate(target int) error {
	m, err := s.migrator()
	if err != nil {
		return err
	}

	if target < 0 {
		err = m.Up()
	} else {
		err = m.Migrate(uint(target))
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s schema: %w", s.backend, err)
	}
	return nil
}

// MigrationVersion reports the current schema version and dirty flag.
func (s *Store) MigrationVersion() (uint, bool, error) {
	m, err := s.migrator()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

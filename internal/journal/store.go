// Package journal persists the history of monitor and restart runs in SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Migration is one forward-only schema change.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// Store is a SQLite database with per-component schema versions.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes Migrate
}

// pragmas are applied once per Open; modernc.org/sqlite takes them as
// statements rather than DSN parameters.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// Open opens or creates the database at path, creating its directory.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %q: %w", path, err)
	}
	// One connection: a single writer, and an in-memory database stays the
	// same database across calls.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal %q: %s: %w", path, p, err)
		}
	}
	return &Store{db: db}, nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Tx runs fn in a transaction, committing on nil and rolling back otherwise.
func (s *Store) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}

// Migrate applies the migrations of component that are newer than its
// recorded schema version. Each migration commits together with its version
// bump.
func (s *Store) Migrate(ctx context.Context, component string, migrations []Migration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_versions (
			component  TEXT    PRIMARY KEY,
			version    INTEGER NOT NULL,
			applied_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		)`); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	current, err := s.version(ctx, component)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		err := s.Tx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO schema_versions (component, version) VALUES (?, ?)
				ON CONFLICT(component) DO UPDATE SET version = excluded.version,
					applied_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`,
				component, m.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("migrate %s to v%d (%s): %w", component, m.Version, m.Description, err)
		}
		current = m.Version
	}
	return nil
}

// version returns the schema version recorded for component, 0 if none.
func (s *Store) version(ctx context.Context, component string) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx,
		`SELECT version FROM schema_versions WHERE component = ?`, component).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s schema version: %w", component, err)
	}
	return v, nil
}

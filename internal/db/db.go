// Package db provides the SQLite-backed persistence used by the client.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "mastofy.db"

// DB wraps the sql.DB with mastofy-specific configuration.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the SQLite database in dataDir and applies
// pending migrations. The database is opened with:
// - WAL mode so a second process can read while the client writes
// - a single connection, SQLite only supports one writer
// - a 5 second busy timeout
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return openPath(filepath.Join(dataDir, FileName))
}

// OpenMemory opens a private in-memory database, used by tests.
func OpenMemory() (*DB, error) {
	return openPath(":memory:")
}

func openPath(path string) (*DB, error) {
	// modernc.org/sqlite is pure Go, no CGO
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	m := NewMigrator(db, Migrations)
	if err := m.Initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	if err := m.Up(); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// Reset rolls back every applied migration and applies them again, leaving
// the current schema with no data. It returns the resulting schema version.
func (db *DB) Reset() (int, error) {
	m := NewMigrator(db.DB, Migrations)
	for {
		version, err := m.CurrentVersion()
		if err != nil {
			return 0, fmt.Errorf("failed to read schema version: %w", err)
		}
		if version == 0 {
			break
		}
		if err := m.Down(); err != nil {
			return 0, err
		}
	}

	if err := m.Up(); err != nil {
		return 0, err
	}
	return m.CurrentVersion()
}

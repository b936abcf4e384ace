package db

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync"
	"time"
)

// KVStore implements kv.Store on the kv_store table.
type KVStore struct {
	db *sql.DB

	// Prepared statements are created on first use and reused.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewKVStore creates a KVStore over an opened database.
func NewKVStore(db *DB) *KVStore {
	return &KVStore{db: db.DB}
}

// prepareStmt gets or creates a prepared statement from cache.
func (s *KVStore) prepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := s.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// Get returns the value stored under key.
func (s *KVStore) Get(key string) (string, bool, error) {
	stmt, err := s.prepareStmt(`SELECT value FROM kv_store WHERE key = ?`)
	if err != nil {
		return "", false, err
	}

	var value string
	err = stmt.QueryRow(key).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts value under key.
func (s *KVStore) Set(key, value string) error {
	stmt, err := s.prepareStmt(`
	INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}

	if _, err := stmt.Exec(key, value, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

// Remove deletes key; a missing key is not an error.
func (s *KVStore) Remove(key string) error {
	stmt, err := s.prepareStmt(`DELETE FROM kv_store WHERE key = ?`)
	if err != nil {
		return err
	}

	if _, err := stmt.Exec(key); err != nil {
		return fmt.Errorf("failed to remove %q: %w", key, err)
	}
	return nil
}

// Close closes all cached prepared statements.
func (s *KVStore) Close() error {
	var firstErr error
	s.stmtCache.Range(func(key, value interface{}) bool {
		if err := value.(*sql.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

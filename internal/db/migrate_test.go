// Package db tests for database migration management.
package db

import (
	"database/sql"
	"testing"
	"testing/fstest"
)

func openRaw(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// TestMigrator_UpAndDown verifies ordering, recording and rollback.
func TestMigrator_UpAndDown(t *testing.T) {
	db := openRaw(t)

	src := fstest.MapFS{
		"migrations/V2__second.up.sql":   {Data: []byte("CREATE TABLE two (id INTEGER);")},
		"migrations/V1__first.up.sql":    {Data: []byte("CREATE TABLE one (id INTEGER);")},
		"migrations/V2__second.down.sql": {Data: []byte("DROP TABLE two;")},
		"migrations/README.md":           {Data: []byte("ignored")},
		"migrations/Vx__bad.up.sql":      {Data: []byte("ignored")},
	}
	m := NewMigrator(db, src)

	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	applied, err := m.GetAppliedMigrations()
	if err != nil {
		t.Fatalf("GetAppliedMigrations() failed: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("applied = %d, want 2", len(applied))
	}
	if applied[0].Description != "first" || applied[1].Description != "second" {
		t.Errorf("descriptions = %q, %q", applied[0].Description, applied[1].Description)
	}
	if len(applied[0].Checksum) != 64 {
		t.Errorf("checksum length = %d, want 64", len(applied[0].Checksum))
	}

	// Up is idempotent
	if err := m.Up(); err != nil {
		t.Fatalf("second Up() failed: %v", err)
	}

	if err := m.Down(); err != nil {
		t.Fatalf("Down() failed: %v", err)
	}
	version, err := m.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion() failed: %v", err)
	}
	if version != 1 {
		t.Errorf("CurrentVersion() = %d, want 1", version)
	}

	// V1 has no down file
	if err := m.Down(); err == nil {
		t.Error("Down() without a rollback file should fail")
	}
}

// TestMigrator_Down_empty verifies rollback with nothing applied.
func TestMigrator_Down_empty(t *testing.T) {
	db := openRaw(t)
	m := NewMigrator(db, Migrations)
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if err := m.Down(); err == nil {
		t.Error("Down() with no migrations should fail")
	}
}

// TestMigrator_badSQL verifies a failing migration is not recorded.
func TestMigrator_badSQL(t *testing.T) {
	db := openRaw(t)
	src := fstest.MapFS{
		"migrations/V1__broken.up.sql": {Data: []byte("CREATE TABLE (;")},
	}
	m := NewMigrator(db, src)
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if err := m.Up(); err == nil {
		t.Fatal("Up() should fail on invalid SQL")
	}
	version, _ := m.CurrentVersion()
	if version != 0 {
		t.Errorf("CurrentVersion() = %d, want 0", version)
	}
}

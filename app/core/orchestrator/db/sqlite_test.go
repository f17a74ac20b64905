package db

import (
	"testing"
)

func TestNewSQLiteDBInitializesSchema(t *testing.T) {
	dir := t.TempDir()
	database, err := NewSQLiteDB(dir)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	defer database.Close()

	var version string
	err = database.Conn().QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil {
		t.Fatalf("read schema version failed: %v", err)
	}
	if version != "2" {
		t.Fatalf("unexpected schema version: %s", version)
	}

	// The project column arrives in migration 2; a fresh db must have it.
	if _, err := database.Conn().Exec(
		`INSERT INTO tasks (id, user_id, title, date, time, project, created_at) VALUES ('t1', 'u1', 'x', '2026-08-28', '2pm', 'home', 1)`,
	); err != nil {
		t.Fatalf("insert with project column failed: %v", err)
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	dir := t.TempDir()

	first, err := NewSQLiteDB(dir)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	if _, err := first.Conn().Exec(
		`INSERT INTO tasks (id, user_id, title, date, time, created_at) VALUES ('t1', 'u1', 'x', '2026-08-28', '2pm', 1)`,
	); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	second, err := NewSQLiteDB(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	var count int
	if err := second.Conn().QueryRow(`SELECT COUNT(*) FROM tasks`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("unexpected task count after reopen: %d", count)
	}
}

func TestCheckpoint(t *testing.T) {
	database, err := NewSQLiteDB(t.TempDir())
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	defer database.Close()

	if err := database.Checkpoint(); err != nil {
		t.Fatalf("checkpoint failed: %v", err)
	}
}

func TestRejectsNewerSchema(t *testing.T) {
	dir := t.TempDir()
	database, err := NewSQLiteDB(dir)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if _, err := database.Conn().Exec(`UPDATE schema_meta SET value = '99' WHERE key = 'schema_version'`); err != nil {
		t.Fatalf("bump version failed: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if _, err := NewSQLiteDB(dir); err == nil {
		t.Fatal("expected error for schema newer than runtime")
	}
}

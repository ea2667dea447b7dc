package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moodlesync/moodlesync/internal/errors"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// FileName is the state database's name inside the storage directory.
const FileName = "moodlesync.db"

// Init opens the state database at baseDir/moodlesync.db, creating the
// directory and schema as needed. An existing file that cannot be read,
// verified or migrated surfaces as a store corruption error: whatever the
// cause, the remedy is to restore the file from a backup or delete it. A
// missing file is not corruption, it is an empty baseline.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	// Pragmas ride the connection string so every pooled connection gets
	// them; _txlock=immediate makes write transactions take the write lock
	// up front instead of failing on upgrade.
	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(database); err != nil {
		database.Close()
		return nil, errors.NewStoreCorrupt(err)
	}

	if err := migrate(database); err != nil {
		database.Close()
		return nil, errors.NewStoreCorrupt(err)
	}

	// Best-effort; the file needs no other readers.
	_ = os.Chmod(dbPath, 0600)

	return database, nil
}

// migrate applies schema migrations based on user_version.
func migrate(database *sql.DB) error {
	version, err := GetUserVersion(database)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS courses (
		  id        INTEGER PRIMARY KEY,
		  full_name TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS files (
		  course_id    INTEGER NOT NULL,
		  file_key     TEXT NOT NULL,
		  content_hash TEXT NOT NULL,
		  saved_as     TEXT NOT NULL,
		  kind         TEXT NOT NULL,
		  size         INTEGER NOT NULL,
		  modified_at  INTEGER NOT NULL,
		  module_type  TEXT,
		  module_name  TEXT,
		  file_url     TEXT,
		  committed_at INTEGER NOT NULL,
		  PRIMARY KEY (course_id, file_key)
		);

		CREATE INDEX IF NOT EXISTS idx_files_course_saved_as
		ON files(course_id, saved_as);

		CREATE TABLE IF NOT EXISTS sync_runs (
		  id             TEXT PRIMARY KEY,
		  started_at     INTEGER NOT NULL,
		  finished_at    INTEGER NOT NULL,
		  status         TEXT NOT NULL,
		  new_count      INTEGER NOT NULL,
		  modified_count INTEGER NOT NULL,
		  moved_count    INTEGER NOT NULL,
		  deleted_count  INTEGER NOT NULL,
		  failed_count   INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sync_runs_started
		ON sync_runs(started_at DESC);
		`
		if _, err := database.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(database, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(database *sql.DB) error {
	var journalMode string
	if err := database.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(database *sql.DB) (int, error) {
	var version int
	if err := database.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(database *sql.DB, version int) error {
	_, err := database.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

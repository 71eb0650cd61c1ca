// Package db provides the SQLite connection and schema for huepresenced.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Dispatch ledger - append-only history of request cycle outcomes.
	// One row per completed cycle, never updated.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dispatch_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			resource_path TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			status_code INTEGER NOT NULL,
			error TEXT,
			duration_ms INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_dispatch_ledger_ts ON dispatch_ledger(created_at);
		CREATE INDEX IF NOT EXISTS idx_dispatch_ledger_path_ts ON dispatch_ledger(resource_path, created_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create dispatch_ledger table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

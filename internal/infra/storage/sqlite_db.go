package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// InitSQLite opens the local SQLite ledger and creates its tables.
func InitSQLite(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := createSchemas(db, sqliteSchemas); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}

	return db, nil
}

var sqliteSchemas = []string{
	`CREATE TABLE IF NOT EXISTS ammo_packs (
		player_id INTEGER PRIMARY KEY,
		steam_id INTEGER NOT NULL DEFAULT 0,
		amount INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS grants (
		id TEXT PRIMARY KEY,
		player_id INTEGER NOT NULL,
		steam_id INTEGER NOT NULL DEFAULT 0,
		kind TEXT NOT NULL,
		amount INTEGER NOT NULL,
		reason TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_grants_player_id ON grants(player_id);`,
}

func createSchemas(db *sql.DB, schemas []string) error {
	for _, query := range schemas {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

// InitPostgres opens a PostgreSQL ledger and creates its tables.
func InitPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	if err := createSchemas(db, postgresSchemas); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}
	return db, nil
}

var postgresSchemas = []string{
	`CREATE TABLE IF NOT EXISTS ammo_packs (
		player_id INTEGER PRIMARY KEY,
		steam_id BIGINT NOT NULL DEFAULT 0,
		amount INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS grants (
		id TEXT PRIMARY KEY,
		player_id INTEGER NOT NULL,
		steam_id BIGINT NOT NULL DEFAULT 0,
		kind TEXT NOT NULL,
		amount INTEGER NOT NULL,
		reason TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_grants_player_id ON grants(player_id);`,
}

// rebind turns ? placeholders into $1, $2, ... for PostgreSQL.
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

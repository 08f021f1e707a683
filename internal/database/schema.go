package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS discovery_cache (
		fingerprint TEXT PRIMARY KEY,
		results     JSONB NOT NULL,
		total_found INTEGER NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL,
		expires_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_discovery_cache_expires_at ON discovery_cache (expires_at)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id           UUID PRIMARY KEY,
		query        TEXT NOT NULL,
		max_results  INTEGER NOT NULL,
		fingerprint  TEXT NOT NULL,
		status       TEXT NOT NULL CHECK (status IN ('pending', 'completed', 'failed')),
		result_ref   TEXT,
		result_count INTEGER NOT NULL DEFAULT 0,
		error        TEXT NOT NULL DEFAULT '',
		started_at   TIMESTAMPTZ NOT NULL,
		finished_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at DESC)`,
}

// EnsureSchema creates the cache and run tables if they are missing
func (db *DB) EnsureSchema(ctx context.Context) error {
	return db.WithTransaction(ctx, func(tx pgx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}
		return nil
	})
}

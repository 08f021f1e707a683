package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mcpsek/guardian/internal/model"
)

// CacheStore implements cache.Store on the discovery_cache table
type CacheStore struct {
	db *DB
}

// NewCacheStore creates a cache store backed by db
func NewCacheStore(db *DB) *CacheStore {
	return &CacheStore{db: db}
}

// Get retrieves the entry stored under fingerprint
func (s *CacheStore) Get(ctx context.Context, fingerprint string) (*model.CacheEntry, error) {
	query := `
		SELECT fingerprint, results, total_found, created_at, expires_at
		FROM discovery_cache
		WHERE fingerprint = $1
	`

	var (
		entry model.CacheEntry
		raw   []byte
	)
	err := s.db.pool.QueryRow(ctx, query, fingerprint).Scan(
		&entry.Fingerprint,
		&raw,
		&entry.TotalFound,
		&entry.CreatedAt,
		&entry.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}

	if err := json.Unmarshal(raw, &entry.Results); err != nil {
		return nil, fmt.Errorf("decode cache results: %w", err)
	}
	return &entry, nil
}

// Put inserts or replaces the entry (dedup by fingerprint)
func (s *CacheStore) Put(ctx context.Context, entry *model.CacheEntry) error {
	raw, err := json.Marshal(entry.Results)
	if err != nil {
		return fmt.Errorf("encode cache results: %w", err)
	}

	query := `
		INSERT INTO discovery_cache (fingerprint, results, total_found, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (fingerprint)
		DO UPDATE SET
			results = EXCLUDED.results,
			total_found = EXCLUDED.total_found,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`
	_, err = s.db.pool.Exec(ctx, query,
		entry.Fingerprint,
		string(raw),
		entry.TotalFound,
		entry.CreatedAt,
		entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// Evict deletes the entry only if it is still expired at now
func (s *CacheStore) Evict(ctx context.Context, fingerprint string, now time.Time) (bool, error) {
	tag, err := s.db.pool.Exec(ctx,
		`DELETE FROM discovery_cache WHERE fingerprint = $1 AND expires_at < $2`,
		fingerprint, now,
	)
	if err != nil {
		return false, fmt.Errorf("evict cache entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Sweep deletes every entry expired at now
func (s *CacheStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.db.pool.Exec(ctx, `DELETE FROM discovery_cache WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep cache: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcpsek/guardian/internal/model"
)

// CacheStore implements cache.Store on SQLite. Times are stored as unix
// nanoseconds.
type CacheStore struct {
	db *DB
}

// NewCacheStore creates a cache store backed by db
func NewCacheStore(db *DB) *CacheStore {
	return &CacheStore{db: db}
}

// Get implements cache.Store
func (s *CacheStore) Get(ctx context.Context, fingerprint string) (*model.CacheEntry, error) {
	var (
		entry              model.CacheEntry
		raw                string
		created, expiresAt int64
	)
	err := s.db.conn.QueryRowContext(ctx, `
		SELECT fingerprint, results, total_found, created_at, expires_at
		FROM discovery_cache WHERE fingerprint = ?`, fingerprint,
	).Scan(&entry.Fingerprint, &raw, &entry.TotalFound, &created, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &entry.Results); err != nil {
		return nil, fmt.Errorf("failed to decode cache results: %w", err)
	}
	entry.CreatedAt = time.Unix(0, created).UTC()
	entry.ExpiresAt = time.Unix(0, expiresAt).UTC()
	return &entry, nil
}

// Put implements cache.Store
func (s *CacheStore) Put(ctx context.Context, entry *model.CacheEntry) error {
	raw, err := json.Marshal(entry.Results)
	if err != nil {
		return fmt.Errorf("failed to encode cache results: %w", err)
	}
	_, err = s.db.conn.ExecContext(ctx, `
		INSERT INTO discovery_cache (fingerprint, results, total_found, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			results = excluded.results,
			total_found = excluded.total_found,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		entry.Fingerprint, string(raw), entry.TotalFound,
		entry.CreatedAt.UnixNano(), entry.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Evict implements cache.Store
func (s *CacheStore) Evict(ctx context.Context, fingerprint string, now time.Time) (bool, error) {
	res, err := s.db.conn.ExecContext(ctx,
		`DELETE FROM discovery_cache WHERE fingerprint = ? AND expires_at < ?`,
		fingerprint, now.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to evict cache entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to evict cache entry: %w", err)
	}
	return n > 0, nil
}

// Sweep implements cache.Store
func (s *CacheStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.conn.ExecContext(ctx, `DELETE FROM discovery_cache WHERE expires_at < ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to sweep cache: %w", err)
	}
	return int(n), nil
}

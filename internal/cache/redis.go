package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcpsek/guardian/internal/model"
)

// DefaultKeyPrefix namespaces cache keys in a shared Redis
const DefaultKeyPrefix = "guardian:cache:"

// sweepBatch is the SCAN count hint used by Sweep
const sweepBatch = 100

// RedisStore keeps entries in Redis. Keys carry a native TTL matching the
// entry expiry, so most expired entries disappear without a sweep.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore creates a store over an existing client
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// DialRedis connects to a single Redis node and verifies it responds
func DialRedis(ctx context.Context, addr, password string, db int) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) key(fingerprint string) string {
	return s.keyPrefix + fingerprint
}

// Get implements Store
func (s *RedisStore) Get(ctx context.Context, fingerprint string) (*model.CacheEntry, error) {
	data, err := s.client.Get(ctx, s.key(fingerprint)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return decodeEntry(data)
}

// Put implements Store
func (s *RedisStore) Put(ctx context.Context, entry *model.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	ttl := entry.ExpiresAt.Sub(entry.CreatedAt)
	if ttl <= 0 {
		// Already stale; keep it only long enough for a reader to evict it.
		ttl = time.Second
	}
	if err := s.client.Set(ctx, s.key(entry.Fingerprint), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Evict implements Store. The check and the delete run under WATCH so a
// concurrent Put aborts the delete.
func (s *RedisStore) Evict(ctx context.Context, fingerprint string, now time.Time) (bool, error) {
	return s.evictKey(ctx, s.key(fingerprint), now)
}

func (s *RedisStore) evictKey(ctx context.Context, key string, now time.Time) (bool, error) {
	evicted := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		entry, err := decodeEntry(data)
		if err == nil && !entry.Expired(now) {
			return nil
		}
		// Undecodable entries are dropped as well.
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err != nil {
			return err
		}
		evicted = true
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to evict cache entry: %w", err)
	}
	return evicted, nil
}

// Sweep implements Store
func (s *RedisStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", sweepBatch).Iterator()
	for iter.Next(ctx) {
		ok, err := s.evictKey(ctx, iter.Val(), now)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	return removed, nil
}

func decodeEntry(data []byte) (*model.CacheEntry, error) {
	var entry model.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return &entry, nil
}

// Package cache stores ranked result sets under query fingerprints with a
// fixed time-to-live.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/mcpsek/guardian/internal/model"
)

// DefaultTTL is how long a ranked result set stays servable
const DefaultTTL = 24 * time.Hour

// Store is the persistence behind the cache. Implementations must serialize
// writes to the same fingerprint and allow concurrent reads.
type Store interface {
	// Get returns the stored entry or model.ErrNotFound. Expiry is not
	// checked here.
	Get(ctx context.Context, fingerprint string) (*model.CacheEntry, error)

	// Put replaces any entry stored under entry.Fingerprint.
	Put(ctx context.Context, entry *model.CacheEntry) error

	// Evict deletes the entry only if it is still expired at now, so a
	// fresh entry written concurrently is never lost.
	Evict(ctx context.Context, fingerprint string, now time.Time) (bool, error)

	// Sweep deletes every entry expired at now and returns how many it removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Cache enforces TTL semantics on top of a Store
type Cache struct {
	store  Store
	clock  clock.PassiveClock
	ttl    time.Duration
	logger *zap.Logger
}

// Option configures a Cache
type Option func(*Cache)

// WithClock replaces the wall clock, mainly for tests
func WithClock(c clock.PassiveClock) Option {
	return func(cache *Cache) {
		if c != nil {
			cache.clock = c
		}
	}
}

// WithTTL sets the default time-to-live for new entries
func WithTTL(ttl time.Duration) Option {
	return func(cache *Cache) {
		if ttl > 0 {
			cache.ttl = ttl
		}
	}
}

// WithLogger sets the cache logger
func WithLogger(l *zap.Logger) Option {
	return func(cache *Cache) {
		if l != nil {
			cache.logger = l
		}
	}
}

// New creates a cache over store
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		clock:  clock.RealClock{},
		ttl:    DefaultTTL,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the default time-to-live
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get looks up fingerprint. The boolean reports a hit. An entry found past its
// expiry is evicted and reported as a miss.
func (c *Cache) Get(ctx context.Context, fingerprint string) (*model.CacheEntry, bool, error) {
	entry, err := c.store.Get(ctx, fingerprint)
	if errors.Is(err, model.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %w", model.ErrCacheUnavailable, fingerprint, err)
	}

	now := c.clock.Now()
	if entry.Expired(now) {
		if _, err := c.store.Evict(ctx, fingerprint, now); err != nil {
			c.logger.Warn("failed to evict expired entry", zap.String("fingerprint", fingerprint), zap.Error(err))
		}
		return nil, false, nil
	}
	return entry.Clone(), true, nil
}

// Put stores results under fingerprint, replacing any previous entry. A
// non-positive ttl selects the cache default.
func (c *Cache) Put(ctx context.Context, fingerprint string, results []model.RankedResult, totalFound int, ttl time.Duration) (*model.CacheEntry, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.clock.Now()
	entry := &model.CacheEntry{
		Fingerprint: fingerprint,
		Results:     model.CloneResults(results),
		TotalFound:  totalFound,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if entry.Results == nil {
		entry.Results = []model.RankedResult{}
	}
	if err := c.store.Put(ctx, entry); err != nil {
		return nil, fmt.Errorf("%w: put %s: %w", model.ErrCacheUnavailable, fingerprint, err)
	}
	return entry.Clone(), nil
}

// PurgeExpired removes all expired entries and returns the count. It is safe
// to run alongside reads and writes and repeated calls are harmless.
func (c *Cache) PurgeExpired(ctx context.Context) (int, error) {
	n, err := c.store.Sweep(ctx, c.clock.Now())
	if err != nil {
		return n, fmt.Errorf("%w: sweep: %w", model.ErrCacheUnavailable, err)
	}
	if n > 0 {
		c.logger.Info("purged expired cache entries", zap.Int("count", n))
	}
	return n, nil
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/mcpsek/guardian/internal/model"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func results(keys ...string) []model.RankedResult {
	out := make([]model.RankedResult, len(keys))
	for i, k := range keys {
		out[i] = model.RankedResult{
			Rank: i + 1,
			Server: model.CanonicalServer{
				Key:      k,
				Name:     k,
				Sources:  []string{"catalog"},
				Evidence: model.Evidence{model.EvidenceCapabilities: []string{"read"}},
			},
			Score: model.ScoreBreakdown{Total: 50, Tier: model.TierFair},
		}
	}
	return out
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:"), mr
}

// stores runs fn against every Store implementation
func stores(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		fn(t, NewMemoryStore())
	})
	t.Run("redis", func(t *testing.T) {
		t.Parallel()
		store, _ := newRedisStore(t)
		fn(t, store)
	})
}

func TestCacheHitWithinTTL(t *testing.T) {
	t.Parallel()
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		clk := testingclock.NewFakePassiveClock(epoch)
		c := New(store, WithClock(clk), WithTTL(time.Hour))

		_, err := c.Put(ctx, "fp", results("a", "b"), 5, 0)
		require.NoError(t, err)

		clk.SetTime(epoch.Add(59 * time.Minute))
		entry, hit, err := c.Get(ctx, "fp")
		require.NoError(t, err)
		require.True(t, hit)
		assert.Equal(t, "fp", entry.Fingerprint)
		assert.Equal(t, 5, entry.TotalFound)
		require.Len(t, entry.Results, 2)
		assert.Equal(t, "a", entry.Results[0].Server.Key)
		assert.Equal(t, []string{"read"}, entry.Results[0].Server.Evidence.List(model.EvidenceCapabilities))
		assert.True(t, entry.ExpiresAt.Equal(epoch.Add(time.Hour)))
	})
}

func TestCacheMissAfterTTLEvicts(t *testing.T) {
	t.Parallel()
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		clk := testingclock.NewFakePassiveClock(epoch)
		c := New(store, WithClock(clk), WithTTL(time.Hour))

		_, err := c.Put(ctx, "fp", results("a"), 1, 0)
		require.NoError(t, err)

		// exactly at expiry the entry is still servable
		clk.SetTime(epoch.Add(time.Hour))
		_, hit, err := c.Get(ctx, "fp")
		require.NoError(t, err)
		assert.True(t, hit)

		clk.SetTime(epoch.Add(time.Hour + time.Nanosecond))
		entry, hit, err := c.Get(ctx, "fp")
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Nil(t, entry)

		_, err = store.Get(ctx, "fp")
		assert.ErrorIs(t, err, model.ErrNotFound, "expired entry is evicted on lookup")
	})
}

func TestCachePutOverwrites(t *testing.T) {
	t.Parallel()
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		c := New(store, WithClock(testingclock.NewFakePassiveClock(epoch)))

		_, err := c.Put(ctx, "fp", results("a"), 1, 0)
		require.NoError(t, err)
		_, err = c.Put(ctx, "fp", results("b", "c"), 2, 0)
		require.NoError(t, err)

		entry, hit, err := c.Get(ctx, "fp")
		require.NoError(t, err)
		require.True(t, hit)
		require.Len(t, entry.Results, 2)
		assert.Equal(t, "b", entry.Results[0].Server.Key)
	})
}

func TestCacheFingerprintsAreIsolated(t *testing.T) {
	t.Parallel()
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		c := New(store, WithClock(testingclock.NewFakePassiveClock(epoch)))

		_, err := c.Put(ctx, "one", results("a"), 1, 0)
		require.NoError(t, err)

		_, hit, err := c.Get(ctx, "two")
		require.NoError(t, err)
		assert.False(t, hit)
	})
}

func TestCachePurgeExpired(t *testing.T) {
	t.Parallel()
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		clk := testingclock.NewFakePassiveClock(epoch)
		c := New(store, WithClock(clk), WithTTL(time.Hour))

		for i := range 5 {
			_, err := c.Put(ctx, fmt.Sprintf("short-%d", i), results("a"), 1, 0)
			require.NoError(t, err)
		}
		_, err := c.Put(ctx, "long", results("b"), 1, 48*time.Hour)
		require.NoError(t, err)

		clk.SetTime(epoch.Add(2 * time.Hour))
		n, err := c.PurgeExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		n, err = c.PurgeExpired(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "purge is idempotent")

		_, hit, err := c.Get(ctx, "long")
		require.NoError(t, err)
		assert.True(t, hit)
	})
}

func TestEvictKeepsFreshEntry(t *testing.T) {
	t.Parallel()
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		fresh := &model.CacheEntry{
			Fingerprint: "fp",
			Results:     results("a"),
			CreatedAt:   epoch,
			ExpiresAt:   epoch.Add(time.Hour),
		}
		require.NoError(t, store.Put(ctx, fresh))

		// a reader that saw an older, expired copy must not delete the new one
		evicted, err := store.Evict(ctx, "fp", epoch.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, evicted)

		_, err = store.Get(ctx, "fp")
		require.NoError(t, err)
	})
}

func TestCacheReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := New(NewMemoryStore(), WithClock(testingclock.NewFakePassiveClock(epoch)))

	in := results("a")
	_, err := c.Put(ctx, "fp", in, 1, 0)
	require.NoError(t, err)
	in[0].Server.Sources[0] = "mutated"

	entry, _, err := c.Get(ctx, "fp")
	require.NoError(t, err)
	entry.Results[0].Server.Key = "changed"

	again, _, err := c.Get(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, "a", again.Results[0].Server.Key)
	assert.Equal(t, []string{"catalog"}, again.Results[0].Server.Sources)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	clk := testingclock.NewFakePassiveClock(epoch)
	c := New(store, WithClock(clk), WithTTL(time.Minute))

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fp := fmt.Sprintf("fp-%d", i%4)
			for range 50 {
				_, _ = c.Put(ctx, fp, results("a"), 1, 0)
				_, _, _ = c.Get(ctx, fp)
				_, _ = c.PurgeExpired(ctx)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 4, store.Len())
}

func TestRedisNativeExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, mr := newRedisStore(t)
	c := New(store, WithClock(testingclock.NewFakePassiveClock(epoch)), WithTTL(time.Hour))

	_, err := c.Put(ctx, "fp", results("a"), 1, 0)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:fp"))

	mr.FastForward(time.Hour + time.Second)
	_, hit, err := c.Get(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, hit)
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (*model.CacheEntry, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Put(context.Context, *model.CacheEntry) error {
	return errors.New("connection refused")
}

func (brokenStore) Evict(context.Context, string, time.Time) (bool, error) {
	return false, errors.New("connection refused")
}

func (brokenStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, errors.New("connection refused")
}

func TestCacheUnavailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := New(brokenStore{})

	_, _, err := c.Get(ctx, "fp")
	assert.ErrorIs(t, err, model.ErrCacheUnavailable)

	_, err = c.Put(ctx, "fp", nil, 0, 0)
	assert.ErrorIs(t, err, model.ErrCacheUnavailable)

	_, err = c.PurgeExpired(ctx)
	assert.ErrorIs(t, err, model.ErrCacheUnavailable)
}

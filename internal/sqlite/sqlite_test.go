package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/mcpsek/guardian/internal/cache"
	"github.com/mcpsek/guardian/internal/model"
	"github.com/mcpsek/guardian/internal/runs"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "guardian.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCacheStoreTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := testingclock.NewFakePassiveClock(epoch)
	c := cache.New(NewCacheStore(openTestDB(t)), cache.WithClock(clk), cache.WithTTL(time.Hour))

	results := []model.RankedResult{{
		Rank: 1,
		Server: model.CanonicalServer{
			Key:      "drive@drive.example.com",
			Sources:  []string{"catalog", "npm"},
			Evidence: model.Evidence{model.EvidenceHashPinning: true},
		},
		Score: model.ScoreBreakdown{Total: 56, Tier: model.TierFair},
	}}
	_, err := c.Put(ctx, "fp", results, 2, 0)
	require.NoError(t, err)

	entry, hit, err := c.Get(ctx, "fp")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 2, entry.TotalFound)
	assert.True(t, entry.CreatedAt.Equal(epoch))
	assert.True(t, entry.Results[0].Server.Evidence.Flag(model.EvidenceHashPinning))

	clk.SetTime(epoch.Add(2 * time.Hour))
	_, hit, err = c.Get(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, hit)

	n, err := c.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "expired entry was already evicted on lookup")
}

func TestCacheStoreSweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewCacheStore(openTestDB(t))

	for i, ttl := range []time.Duration{time.Minute, time.Minute, time.Hour} {
		require.NoError(t, store.Put(ctx, &model.CacheEntry{
			Fingerprint: []string{"a", "b", "c"}[i],
			Results:     []model.RankedResult{},
			CreatedAt:   epoch,
			ExpiresAt:   epoch.Add(ttl),
		}))
	}

	n, err := store.Sweep(ctx, epoch.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = store.Get(ctx, "c")
	require.NoError(t, err)
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := testingclock.NewFakePassiveClock(epoch)
	rec := runs.NewRecorder(NewRunStore(openTestDB(t)), clk)

	first, err := rec.Start(ctx, "file operations agent", 10, "fp1")
	require.NoError(t, err)
	clk.SetTime(epoch.Add(time.Minute))
	second, err := rec.Start(ctx, "slack bot", 5, "fp2")
	require.NoError(t, err)

	ref := "fp1"
	require.NoError(t, rec.Complete(ctx, first, runs.Completion{Status: model.RunCompleted, ResultRef: &ref, ResultCount: 3}))
	assert.ErrorIs(t, rec.Complete(ctx, first, runs.Completion{Status: model.RunFailed}), runs.ErrAlreadyCompleted)
	assert.ErrorIs(t, rec.Complete(ctx, uuid.New(), runs.Completion{Status: model.RunFailed}), model.ErrNotFound)

	run, err := rec.Get(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.Status)
	require.NotNil(t, run.ResultRef)
	assert.Equal(t, "fp1", *run.ResultRef)
	require.NotNil(t, run.FinishedAt)
	assert.True(t, run.StartedAt.Equal(epoch))

	list, err := rec.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, model.RunPending, list[0].Status)
	assert.Nil(t, list[0].FinishedAt)
}

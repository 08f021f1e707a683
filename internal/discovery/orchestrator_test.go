package discovery

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpsek/guardian/internal/model"
)

func staticProvider(name string, candidates ...model.RawCandidate) Provider {
	return ProviderFunc{ID: name, Fetch: func(context.Context, string, int) ([]model.RawCandidate, error) {
		return candidates, nil
	}}
}

func failingProvider(name string, err error) Provider {
	return ProviderFunc{ID: name, Fetch: func(context.Context, string, int) ([]model.RawCandidate, error) {
		return nil, err
	}}
}

// stuckProvider ignores its deadline entirely
func stuckProvider(name string, release <-chan struct{}) Provider {
	return ProviderFunc{ID: name, Fetch: func(context.Context, string, int) ([]model.RawCandidate, error) {
		<-release
		return []model.RawCandidate{{Name: "late"}}, nil
	}}
}

func TestDiscoverPartialFailure(t *testing.T) {
	t.Parallel()
	o := NewOrchestrator([]Provider{
		staticProvider("a", model.RawCandidate{Name: "one"}),
		failingProvider("b", errors.New("registry down")),
		staticProvider("c", model.RawCandidate{Name: "two", Source: "custom"}),
	})

	res, err := o.Discover(context.Background(), "files", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "one", res.Candidates[0].Name)
	assert.Equal(t, "a", res.Candidates[0].Source)
	assert.Equal(t, "custom", res.Candidates[1].Source)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "b", res.Errors[0].Source)
	assert.Equal(t, "registry down", res.Errors[0].Reason)
}

func TestDiscoverAllFail(t *testing.T) {
	t.Parallel()
	o := NewOrchestrator([]Provider{
		failingProvider("a", errors.New("x")),
		failingProvider("b", errors.New("y")),
		failingProvider("c", errors.New("z")),
	})

	res, err := o.Discover(context.Background(), "files", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNoSourcesAvailable)
	require.NotNil(t, res)
	assert.Len(t, res.Errors, 3)
}

func TestDiscoverNoProviders(t *testing.T) {
	t.Parallel()
	_, err := NewOrchestrator(nil).Discover(context.Background(), "files", 10)
	assert.ErrorIs(t, err, model.ErrNoSourcesAvailable)
}

func TestDiscoverEmptyResultIsSuccess(t *testing.T) {
	t.Parallel()
	o := NewOrchestrator([]Provider{staticProvider("empty")})
	res, err := o.Discover(context.Background(), "files", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Empty(t, res.Candidates)
	assert.Empty(t, res.Errors)
}

func TestDiscoverAbandonsSlowProvider(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	defer close(release)

	o := NewOrchestrator([]Provider{
		stuckProvider("slow", release),
		staticProvider("fast", model.RawCandidate{Name: "quick"}),
	}, WithTimeBudget(50*time.Millisecond))

	start := time.Now()
	res, err := o.Discover(context.Background(), "files", 10)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "slow", res.Errors[0].Source)
	assert.Contains(t, res.Errors[0].Reason, "deadline exceeded")
	assert.ErrorIs(t, res.Errors[0], context.DeadlineExceeded)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "quick", res.Candidates[0].Name)
}

func TestDiscoverRecoversPanics(t *testing.T) {
	t.Parallel()
	o := NewOrchestrator([]Provider{
		ProviderFunc{ID: "boom", Fetch: func(context.Context, string, int) ([]model.RawCandidate, error) {
			panic("nil map")
		}},
		staticProvider("ok", model.RawCandidate{Name: "fine"}),
	})

	res, err := o.Discover(context.Background(), "files", 10)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Reason, "provider panic")
}

func TestDiscoverTruncatesToLimit(t *testing.T) {
	t.Parallel()
	o := NewOrchestrator([]Provider{staticProvider("a",
		model.RawCandidate{Name: "1"}, model.RawCandidate{Name: "2"}, model.RawCandidate{Name: "3"},
	)})
	res, err := o.Discover(context.Background(), "files", 2)
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 2)
}

func TestDiscoverCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	var started atomic.Int32

	o := NewOrchestrator([]Provider{
		ProviderFunc{ID: "waits", Fetch: func(ctx context.Context, _ string, _ int) ([]model.RawCandidate, error) {
			started.Add(1)
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		}},
	})

	_, err := o.Discover(ctx, "files", 10)
	assert.ErrorIs(t, err, model.ErrCancelled)
	assert.Equal(t, int32(1), started.Load())

	_, err = o.Discover(ctx, "files", 10)
	assert.ErrorIs(t, err, model.ErrCancelled)
}

func TestDiscoverRespectsConcurrencyLimit(t *testing.T) {
	t.Parallel()
	var inFlight, peak atomic.Int32
	slow := func(name string) Provider {
		return ProviderFunc{ID: name, Fetch: func(context.Context, string, int) ([]model.RawCandidate, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return nil, nil
		}}
	}

	o := NewOrchestrator([]Provider{slow("a"), slow("b"), slow("c"), slow("d")}, WithConcurrency(2))
	_, err := o.Discover(context.Background(), "files", 10)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, []string{"a", "b", "c", "d"}, o.Providers())
}

// Package runs keeps one audit record per pipeline invocation.
package runs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/mcpsek/guardian/internal/model"
)

// ErrAlreadyCompleted is returned when a run is finalized twice
var ErrAlreadyCompleted = errors.New("run already completed")

// Store persists run records. Records are never deleted by the recorder.
type Store interface {
	Insert(ctx context.Context, run *model.RunRecord) error
	// Finish applies c to a pending run atomically. It returns
	// model.ErrNotFound for unknown ids and ErrAlreadyCompleted when the run
	// has already left the pending state.
	Finish(ctx context.Context, id uuid.UUID, c Completion, finishedAt time.Time) error
	Get(ctx context.Context, id uuid.UUID) (*model.RunRecord, error)
	// List returns the most recently started runs first.
	List(ctx context.Context, limit int) ([]*model.RunRecord, error)
}

// Completion describes how a run finished
type Completion struct {
	Status      model.RunStatus
	ResultRef   *string
	ResultCount int
	Error       string
}

// Recorder creates and finalizes run records
type Recorder struct {
	store Store
	clock clock.PassiveClock
}

// NewRecorder creates a recorder over store
func NewRecorder(store Store, clk clock.PassiveClock) *Recorder {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Recorder{store: store, clock: clk}
}

// Start records a pending run and returns its id
func (r *Recorder) Start(ctx context.Context, query string, maxResults int, fingerprint string) (uuid.UUID, error) {
	run := &model.RunRecord{
		ID:          uuid.New(),
		Query:       query,
		MaxResults:  maxResults,
		Fingerprint: fingerprint,
		Status:      model.RunPending,
		StartedAt:   r.clock.Now().UTC(),
	}
	if err := r.store.Insert(ctx, run); err != nil {
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}
	return run.ID, nil
}

// Complete moves a pending run to its final status. A run can be completed
// exactly once.
func (r *Recorder) Complete(ctx context.Context, id uuid.UUID, c Completion) error {
	if c.Status != model.RunCompleted && c.Status != model.RunFailed {
		return fmt.Errorf("%w: cannot complete run with status %q", model.ErrInvalidArgument, c.Status)
	}

	if err := r.store.Finish(ctx, id, c, r.clock.Now().UTC()); err != nil {
		return fmt.Errorf("complete run %s: %w", id, err)
	}
	return nil
}

// Get returns a run by id
func (r *Recorder) Get(ctx context.Context, id uuid.UUID) (*model.RunRecord, error) {
	return r.store.Get(ctx, id)
}

// List returns recent runs, newest first
func (r *Recorder) List(ctx context.Context, limit int) ([]*model.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.store.List(ctx, limit)
}

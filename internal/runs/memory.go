package runs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcpsek/guardian/internal/model"
)

// MemoryStore is an in-process run store
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*model.RunRecord
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[uuid.UUID]*model.RunRecord)}
}

func cloneRun(r *model.RunRecord) *model.RunRecord {
	out := *r
	if r.ResultRef != nil {
		ref := *r.ResultRef
		out.ResultRef = &ref
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}

// Insert implements Store
func (s *MemoryStore) Insert(_ context.Context, run *model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// Finish implements Store
func (s *MemoryStore) Finish(_ context.Context, id uuid.UUID, c Completion, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return model.ErrNotFound
	}
	if run.Status != model.RunPending {
		return ErrAlreadyCompleted
	}
	run.Status = c.Status
	run.ResultCount = c.ResultCount
	run.Error = c.Error
	if c.ResultRef != nil {
		ref := *c.ResultRef
		run.ResultRef = &ref
	}
	run.FinishedAt = &finishedAt
	return nil
}

// Get implements Store
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return cloneRun(run), nil
}

// List implements Store
func (s *MemoryStore) List(_ context.Context, limit int) ([]*model.RunRecord, error) {
	s.mu.RLock()
	out := make([]*model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, cloneRun(run))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/mcpsek/guardian/internal/model"
)

const shardCount = 32

type shard struct {
	mu      sync.RWMutex
	entries map[string]*model.CacheEntry
}

// MemoryStore is an in-process Store striped over lock shards
type MemoryStore struct {
	shards [shardCount]*shard
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*model.CacheEntry)}
	}
	return s
}

func (s *MemoryStore) shardFor(fingerprint string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fingerprint))
	return s.shards[h.Sum32()%shardCount]
}

// Get implements Store
func (s *MemoryStore) Get(_ context.Context, fingerprint string) (*model.CacheEntry, error) {
	sh := s.shardFor(fingerprint)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	entry, ok := sh.entries[fingerprint]
	if !ok {
		return nil, model.ErrNotFound
	}
	return entry.Clone(), nil
}

// Put implements Store
func (s *MemoryStore) Put(_ context.Context, entry *model.CacheEntry) error {
	sh := s.shardFor(entry.Fingerprint)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.entries[entry.Fingerprint] = entry.Clone()
	return nil
}

// Evict implements Store
func (s *MemoryStore) Evict(_ context.Context, fingerprint string, now time.Time) (bool, error) {
	sh := s.shardFor(fingerprint)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[fingerprint]
	if !ok || !entry.Expired(now) {
		return false, nil
	}
	delete(sh.entries, fingerprint)
	return true, nil
}

// Sweep implements Store
func (s *MemoryStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	for _, sh := range s.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		sh.mu.Lock()
		for fp, entry := range sh.entries {
			if entry.Expired(now) {
				delete(sh.entries, fp)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of stored entries, expired ones included
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

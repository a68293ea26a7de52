package ledgerentry

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a concurrency-safe in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	byKey   map[string]Entry
	entries []Entry
}

// NewMemoryStore builds an empty in-memory ledger entry store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKey: make(map[string]Entry)}
}

func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[e.IdempotencyKey]; exists {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.byKey[e.IdempotencyKey] = e
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryStore) ExistsByIdempotencyKey(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.byKey[key]
	return exists, nil
}

// All returns a snapshot of every appended entry, for tests.
func (s *MemoryStore) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

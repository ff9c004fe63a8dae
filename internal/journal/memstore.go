package journal

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemStore is an in-memory [Store] that keeps the last Capacity exchanges.
// It is used when no database is configured.
type MemStore struct {
	mu       sync.Mutex
	capacity int
	items    []Exchange
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates a MemStore holding at most capacity exchanges. A
// non-positive capacity means 100.
func NewMemStore(capacity int) *MemStore {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemStore{capacity: capacity}
}

// Record implements [Store].
func (s *MemStore) Record(_ context.Context, e Exchange) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, e)
	if over := len(s.items) - s.capacity; over > 0 {
		s.items = append(s.items[:0:0], s.items[over:]...)
	}
	return nil
}

// Recent implements [Store].
func (s *MemStore) Recent(_ context.Context, limit int) ([]Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.items) {
		limit = len(s.items)
	}
	out := make([]Exchange, 0, limit)
	for i := len(s.items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.items[i])
	}
	return out, nil
}

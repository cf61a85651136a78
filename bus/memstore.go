package bus

import (
	"context"
	"sync"

	"github.com/petal-labs/toolflow"
)

// MemEventStore is a thread-safe in-memory event store.
type MemEventStore struct {
	mu     sync.RWMutex
	events map[string][]toolflow.Event // contextID -> events
}

// NewMemEventStore creates a new in-memory event store.
func NewMemEventStore() *MemEventStore {
	return &MemEventStore{
		events: make(map[string][]toolflow.Event),
	}
}

func (s *MemEventStore) Append(_ context.Context, event toolflow.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ContextID] = append(s.events[event.ContextID], event)
	return nil
}

func (s *MemEventStore) List(_ context.Context, contextID string, afterSeq uint64, limit int) ([]toolflow.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.events[contextID]
	var result []toolflow.Event

	for _, e := range all {
		// afterSeq is an exclusive lower bound, matching the SQLite store.
		if e.Seq <= afterSeq {
			continue
		}
		result = append(result, e)
		if limit > 0 && len(result) >= limit {
			break
		}
	}

	return result, nil
}

func (s *MemEventStore) LatestSeq(_ context.Context, contextID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[contextID]
	if len(events) == 0 {
		return 0, nil
	}

	var maxSeq uint64
	for _, e := range events {
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
	}
	return maxSeq, nil
}

// Compile-time interface check.
var _ EventStore = (*MemEventStore)(nil)

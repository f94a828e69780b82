package memory

import (
	"context"
	"sync"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu     sync.RWMutex
	events []domain.ParsedEvent
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{}
}

var _ storage.EventStore = (*EventStore)(nil)

// InsertEvents appends events.
func (s *EventStore) InsertEvents(_ context.Context, events []domain.ParsedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, events...)
	return nil
}

// Events returns a copy of everything inserted, in insertion order.
func (s *EventStore) Events() []domain.ParsedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.ParsedEvent(nil), s.events...)
}

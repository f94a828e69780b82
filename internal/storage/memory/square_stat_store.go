package memory

import (
	"context"
	"sync"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/storage"
)

// SquareStatStore is an in-memory implementation of storage.SquareStatStore.
type SquareStatStore struct {
	mu    sync.RWMutex
	stats *[domain.BoardSize]domain.SquareStat
}

// NewSquareStatStore creates a new in-memory square stat store.
func NewSquareStatStore() *SquareStatStore {
	return &SquareStatStore{}
}

var _ storage.SquareStatStore = (*SquareStatStore)(nil)

// Load returns the stored table. Returns ErrNotFound if nothing was saved.
func (s *SquareStatStore) Load(_ context.Context) ([domain.BoardSize]domain.SquareStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stats == nil {
		return [domain.BoardSize]domain.SquareStat{}, storage.ErrNotFound
	}
	return *s.stats, nil
}

// Save replaces the stored table.
func (s *SquareStatStore) Save(_ context.Context, stats [domain.BoardSize]domain.SquareStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats = &stats
	return nil
}

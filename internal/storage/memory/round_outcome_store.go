package memory

import (
	"context"
	"sort"
	"sync"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/storage"
)

// RoundOutcomeStore is an in-memory implementation of storage.RoundOutcomeStore.
type RoundOutcomeStore struct {
	mu   sync.RWMutex
	data map[uint64]*domain.RoundOutcome
}

// NewRoundOutcomeStore creates a new in-memory round outcome store.
func NewRoundOutcomeStore() *RoundOutcomeStore {
	return &RoundOutcomeStore{
		data: make(map[uint64]*domain.RoundOutcome),
	}
}

var _ storage.RoundOutcomeStore = (*RoundOutcomeStore)(nil)

func copyOutcome(o *domain.RoundOutcome) *domain.RoundOutcome {
	c := *o
	c.ResolvedWinners = append([]domain.WinnerShare(nil), o.ResolvedWinners...)
	return &c
}

// Save adds an outcome. Returns ErrDuplicateKey if round_id exists.
func (s *RoundOutcomeStore) Save(_ context.Context, o *domain.RoundOutcome) error {
	if o == nil || !o.WinningSquare.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[o.RoundID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[o.RoundID] = copyOutcome(o)
	return nil
}

// Get retrieves an outcome by round id. Returns ErrNotFound if not exists.
func (s *RoundOutcomeStore) Get(_ context.Context, roundID uint64) (*domain.RoundOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.data[roundID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyOutcome(o), nil
}

// ListRecent returns up to limit outcomes, newest round first.
func (s *RoundOutcomeStore) ListRecent(_ context.Context, limit int) ([]*domain.RoundOutcome, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uint64, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]*domain.RoundOutcome, len(ids))
	for i, id := range ids {
		out[i] = copyOutcome(s.data[id])
	}
	return out, nil
}

package memory

import (
	"context"
	"sync"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/storage"
)

// StrategyStore is an in-memory implementation of storage.StrategyStore.
type StrategyStore struct {
	mu   sync.RWMutex
	runs []*storage.StrategyRun // insertion order
	ids  map[string]struct{}
}

// NewStrategyStore creates a new in-memory strategy store.
func NewStrategyStore() *StrategyStore {
	return &StrategyStore{ids: make(map[string]struct{})}
}

var _ storage.StrategyStore = (*StrategyStore)(nil)

func copyRun(r *storage.StrategyRun) *storage.StrategyRun {
	c := *r
	c.Strategies = append([]domain.DetectedStrategy(nil), r.Strategies...)
	return &c
}

// Save stores a run. Returns ErrDuplicateKey if run_id exists.
func (s *StrategyStore) Save(_ context.Context, run *storage.StrategyRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[run.RunID]; exists {
		return storage.ErrDuplicateKey
	}
	s.ids[run.RunID] = struct{}{}
	s.runs = append(s.runs, copyRun(run))
	return nil
}

// Latest returns the run with the newest CreatedAt, the later save on ties.
func (s *StrategyStore) Latest(_ context.Context) (*storage.StrategyRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *storage.StrategyRun
	for _, r := range s.runs {
		if latest == nil || !r.CreatedAt.Before(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return copyRun(latest), nil
}

package memory

import (
	"context"
	"sort"
	"sync"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/storage"
)

// ProfileStore is an in-memory implementation of storage.ProfileStore.
type ProfileStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ParticipantProfile // keyed by address
}

// NewProfileStore creates a new in-memory profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		data: make(map[string]*domain.ParticipantProfile),
	}
}

var _ storage.ProfileStore = (*ProfileStore)(nil)

// LoadAll returns every profile ordered by address.
func (s *ProfileStore) LoadAll(_ context.Context) ([]*domain.ParticipantProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.ParticipantProfile, 0, len(s.data))
	for _, p := range s.data {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// UpsertMany inserts or replaces the given profiles.
func (s *ProfileStore) UpsertMany(_ context.Context, profiles []*domain.ParticipantProfile) error {
	for _, p := range profiles {
		if p == nil || p.Address == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range profiles {
		s.data[p.Address] = p.Clone()
	}
	return nil
}

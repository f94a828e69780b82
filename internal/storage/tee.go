package storage

import (
	"context"
	"errors"
	"fmt"

	"ore-strategy-lab/internal/domain"
)

// TeeOutcomeStore writes outcomes to a primary store and an archive, and
// reads from the primary only.
type TeeOutcomeStore struct {
	primary RoundOutcomeStore
	archive RoundOutcomeStore
}

// NewTeeOutcomeStore creates a TeeOutcomeStore.
func NewTeeOutcomeStore(primary, archive RoundOutcomeStore) *TeeOutcomeStore {
	return &TeeOutcomeStore{primary: primary, archive: archive}
}

// Compile-time interface check.
var _ RoundOutcomeStore = (*TeeOutcomeStore)(nil)

// Save stores o in the primary, then archives it. A round the archive already
// holds is not an error.
func (s *TeeOutcomeStore) Save(ctx context.Context, o *domain.RoundOutcome) error {
	if err := s.primary.Save(ctx, o); err != nil {
		return err
	}
	if err := s.archive.Save(ctx, o); err != nil && !errors.Is(err, ErrDuplicateKey) {
		return fmt.Errorf("archive round %d: %w", o.RoundID, err)
	}
	return nil
}

// Get reads from the primary.
func (s *TeeOutcomeStore) Get(ctx context.Context, roundID uint64) (*domain.RoundOutcome, error) {
	return s.primary.Get(ctx, roundID)
}

// ListRecent reads from the primary.
func (s *TeeOutcomeStore) ListRecent(ctx context.Context, limit int) ([]*domain.RoundOutcome, error) {
	return s.primary.ListRecent(ctx, limit)
}

package memory

import (
	"context"
	"sync"

	"ore-strategy-lab/internal/storage"
)

// SignatureStore is an in-memory implementation of storage.SignatureStore.
type SignatureStore struct {
	mu     sync.RWMutex
	seen   map[string]int64 // signature -> slot
	cursor *storage.SignatureCursor
}

// NewSignatureStore creates a new in-memory signature store.
func NewSignatureStore() *SignatureStore {
	return &SignatureStore{seen: make(map[string]int64)}
}

var _ storage.SignatureStore = (*SignatureStore)(nil)

// MarkProcessed records a signature.
func (s *SignatureStore) MarkProcessed(_ context.Context, signature string, slot int64) error {
	if signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seen[signature] = slot
	if s.cursor == nil || slot > s.cursor.Slot ||
		(slot == s.cursor.Slot && signature > s.cursor.Signature) {
		s.cursor = &storage.SignatureCursor{Signature: signature, Slot: slot}
	}
	return nil
}

// IsProcessed reports whether the signature was recorded.
func (s *SignatureStore) IsProcessed(_ context.Context, signature string) (bool, error) {
	if signature == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.seen[signature]
	return ok, nil
}

// Cursor returns the newest processed signature.
func (s *SignatureStore) Cursor(_ context.Context) (*storage.SignatureCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cursor == nil {
		return nil, storage.ErrNotFound
	}
	c := *s.cursor
	return &c, nil
}

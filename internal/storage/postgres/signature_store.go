package postgres

import (
	"context"
	"fmt"
	"time"

	"ore-strategy-lab/internal/storage"
)

// SignatureStore implements storage.SignatureStore using PostgreSQL.
type SignatureStore struct {
	pool *Pool
}

// NewSignatureStore creates a new SignatureStore.
func NewSignatureStore(pool *Pool) *SignatureStore {
	return &SignatureStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SignatureStore = (*SignatureStore)(nil)

// MarkProcessed records a signature. Marking twice keeps the first row.
func (s *SignatureStore) MarkProcessed(ctx context.Context, signature string, slot int64) (err error) {
	if signature == "" {
		return storage.ErrInvalidInput
	}
	defer observe("mark_signature", time.Now(), &err)

	query := `
		INSERT INTO processed_signatures (signature, slot)
		VALUES ($1, $2)
		ON CONFLICT (signature) DO NOTHING
	`

	if _, err := s.pool.Exec(ctx, query, signature, slot); err != nil {
		return fmt.Errorf("mark signature processed: %w", err)
	}
	return nil
}

// IsProcessed reports whether the signature was recorded.
func (s *SignatureStore) IsProcessed(ctx context.Context, signature string) (done bool, err error) {
	if signature == "" {
		return false, storage.ErrInvalidInput
	}
	defer observe("check_signature", time.Now(), &err)

	query := `SELECT EXISTS (SELECT 1 FROM processed_signatures WHERE signature = $1)`

	if err := s.pool.QueryRow(ctx, query, signature).Scan(&done); err != nil {
		return false, fmt.Errorf("check signature: %w", err)
	}
	return done, nil
}

// Cursor returns the processed signature with the highest (slot, signature),
// comparing signatures bytewise.
// Returns ErrNotFound if none.
func (s *SignatureStore) Cursor(ctx context.Context) (cur *storage.SignatureCursor, err error) {
	defer observe("signature_cursor", time.Now(), &err)

	query := `
		SELECT signature, slot
		FROM processed_signatures
		ORDER BY slot DESC, signature COLLATE "C" DESC
		LIMIT 1
	`

	var c storage.SignatureCursor
	if err := s.pool.QueryRow(ctx, query).Scan(&c.Signature, &c.Slot); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query signature cursor: %w", err)
	}
	return &c, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"ore-strategy-lab/internal/storage"
)

// StateStore implements storage.StateStore using PostgreSQL.
type StateStore struct {
	pool *Pool
}

// NewStateStore creates a new StateStore.
func NewStateStore(pool *Pool) *StateStore {
	return &StateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StateStore = (*StateStore)(nil)

// Put inserts or replaces the value for key.
func (s *StateStore) Put(ctx context.Context, key string, value []byte) (err error) {
	if key == "" {
		return storage.ErrInvalidInput
	}
	if value == nil {
		value = []byte{}
	}
	defer observe("put_state", time.Now(), &err)

	query := `
		INSERT INTO engine_state (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = now()
	`

	if _, err := s.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("put state %s: %w", key, err)
	}
	return nil
}

// Get returns the value for key. Returns ErrNotFound if not exists.
func (s *StateStore) Get(ctx context.Context, key string) (value []byte, err error) {
	defer observe("get_state", time.Now(), &err)

	query := `SELECT value FROM engine_state WHERE key = $1`

	if err := s.pool.QueryRow(ctx, query, key).Scan(&value); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

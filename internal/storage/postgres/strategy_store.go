package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/storage"
)

// StrategyStore implements storage.StrategyStore using PostgreSQL.
// Each analysis run is one row with the strategy list as JSONB.
type StrategyStore struct {
	pool *Pool
}

// NewStrategyStore creates a new StrategyStore.
func NewStrategyStore(pool *Pool) *StrategyStore {
	return &StrategyStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StrategyStore = (*StrategyStore)(nil)

// Save stores a run. Returns ErrDuplicateKey if run_id exists.
func (s *StrategyStore) Save(ctx context.Context, run *storage.StrategyRun) (err error) {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}
	defer observe("save_strategy_run", time.Now(), &err)

	strategies := run.Strategies
	if strategies == nil {
		strategies = []domain.DetectedStrategy{}
	}
	payload, err := json.Marshal(strategies)
	if err != nil {
		return fmt.Errorf("encode strategies: %w", err)
	}

	query := `INSERT INTO strategy_runs (run_id, created_at, strategies) VALUES ($1, $2, $3)`

	_, err = s.pool.Exec(ctx, query, run.RunID, run.CreatedAt.UTC(), payload)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert strategy run: %w", err)
	}
	return nil
}

// Latest returns the most recent run. Returns ErrNotFound if none.
func (s *StrategyStore) Latest(ctx context.Context) (run *storage.StrategyRun, err error) {
	defer observe("latest_strategy_run", time.Now(), &err)

	query := `
		SELECT run_id, created_at, strategies
		FROM strategy_runs
		ORDER BY created_at DESC, run_id DESC
		LIMIT 1
	`

	var (
		r       storage.StrategyRun
		payload []byte
	)
	err = s.pool.QueryRow(ctx, query).Scan(&r.RunID, &r.CreatedAt, &payload)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query latest strategy run: %w", err)
	}

	if err := json.Unmarshal(payload, &r.Strategies); err != nil {
		return nil, fmt.Errorf("decode strategies of run %s: %w", r.RunID, err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

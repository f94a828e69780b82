package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/storage"
)

// RoundOutcomeStore implements storage.RoundOutcomeStore using PostgreSQL.
type RoundOutcomeStore struct {
	pool *Pool
}

// NewRoundOutcomeStore creates a new RoundOutcomeStore.
func NewRoundOutcomeStore(pool *Pool) *RoundOutcomeStore {
	return &RoundOutcomeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RoundOutcomeStore = (*RoundOutcomeStore)(nil)

// Save adds an outcome. Returns ErrDuplicateKey if round_id exists.
func (s *RoundOutcomeStore) Save(ctx context.Context, o *domain.RoundOutcome) (err error) {
	if o == nil || !o.WinningSquare.Valid() {
		return storage.ErrInvalidInput
	}
	defer observe("save_round_outcome", time.Now(), &err)

	winners, err := json.Marshal(nonNilWinners(o.ResolvedWinners))
	if err != nil {
		return fmt.Errorf("encode winners: %w", err)
	}

	competitors := make([]int64, domain.BoardSize)
	for i, v := range o.Competitors {
		competitors[i] = int64(v)
	}

	query := `
		INSERT INTO round_outcomes (
			round_id, winning_square, total_deployed, competitors, is_jackpot,
			class, resolved_winners, slot
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.pool.Exec(ctx, query,
		int64(o.RoundID),
		int16(o.WinningSquare),
		int64(o.TotalDeployed),
		competitors,
		o.IsJackpot,
		string(o.Class),
		winners,
		o.Slot,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert round outcome: %w", err)
	}
	return nil
}

// Get retrieves an outcome by round id. Returns ErrNotFound if not exists.
func (s *RoundOutcomeStore) Get(ctx context.Context, roundID uint64) (o *domain.RoundOutcome, err error) {
	defer observe("get_round_outcome", time.Now(), &err)

	query := `
		SELECT round_id, winning_square, total_deployed, competitors, is_jackpot,
			class, resolved_winners, slot
		FROM round_outcomes
		WHERE round_id = $1
	`

	o, err = scanOutcome(s.pool.QueryRow(ctx, query, int64(roundID)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

// ListRecent returns up to limit outcomes, newest round first.
func (s *RoundOutcomeStore) ListRecent(ctx context.Context, limit int) (out []*domain.RoundOutcome, err error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}
	defer observe("list_round_outcomes", time.Now(), &err)

	query := `
		SELECT round_id, winning_square, total_deployed, competitors, is_jackpot,
			class, resolved_winners, slot
		FROM round_outcomes
		ORDER BY round_id DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query round outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate round outcomes: %w", err)
	}
	return out, nil
}

func scanOutcome(row pgx.Row) (*domain.RoundOutcome, error) {
	var (
		o           domain.RoundOutcome
		square      int16
		competitors []int64
		class       string
		winners     []byte
	)
	err := row.Scan(
		&o.RoundID,
		&square,
		&o.TotalDeployed,
		&competitors,
		&o.IsJackpot,
		&class,
		&winners,
		&o.Slot,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan round outcome: %w", err)
	}

	o.WinningSquare, err = domain.NewSquareIndex(int(square))
	if err != nil {
		return nil, fmt.Errorf("round %d: %w", o.RoundID, err)
	}
	if len(competitors) != domain.BoardSize {
		return nil, fmt.Errorf("round %d: expected %d competitor totals, got %d", o.RoundID, domain.BoardSize, len(competitors))
	}
	for i, v := range competitors {
		o.Competitors[i] = uint64(v)
	}
	o.Class = domain.OutcomeClass(class)

	if err := json.Unmarshal(winners, &o.ResolvedWinners); err != nil {
		return nil, fmt.Errorf("decode winners of round %d: %w", o.RoundID, err)
	}
	return &o, nil
}

func nonNilWinners(w []domain.WinnerShare) []domain.WinnerShare {
	if w == nil {
		return []domain.WinnerShare{}
	}
	return w
}

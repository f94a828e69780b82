package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/storage"
)

// RoundOutcomeStore implements storage.RoundOutcomeStore using ClickHouse.
// Winner shares are stored as parallel arrays.
type RoundOutcomeStore struct {
	conn *Conn
}

// NewRoundOutcomeStore creates a new RoundOutcomeStore.
func NewRoundOutcomeStore(conn *Conn) *RoundOutcomeStore {
	return &RoundOutcomeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.RoundOutcomeStore = (*RoundOutcomeStore)(nil)

const outcomeColumns = `
	round_id, winning_square, total_deployed, competitors, is_jackpot, class,
	winner_addresses, winner_bets, winner_won, winner_shares, slot
`

// Save adds an outcome. Returns ErrDuplicateKey if round_id exists.
func (s *RoundOutcomeStore) Save(ctx context.Context, o *domain.RoundOutcome) (err error) {
	if o == nil || !o.WinningSquare.Valid() {
		return storage.ErrInvalidInput
	}
	defer observe("save_round_outcome", time.Now(), &err)

	// MergeTree does not enforce uniqueness
	exists, err := s.exists(ctx, o.RoundID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	n := len(o.ResolvedWinners)
	addresses := make([]string, n)
	bets := make([]uint64, n)
	won := make([]uint64, n)
	shares := make([]float64, n)
	for i, w := range o.ResolvedWinners {
		addresses[i] = w.Address
		bets[i] = w.AmountBet
		won[i] = w.AmountWon
		shares[i] = w.SharePct
	}

	query := `INSERT INTO round_outcomes (` + outcomeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err = s.conn.Exec(ctx, query,
		o.RoundID,
		uint8(o.WinningSquare),
		o.TotalDeployed,
		o.Competitors[:],
		o.IsJackpot,
		string(o.Class),
		addresses,
		bets,
		won,
		shares,
		o.Slot,
	)
	if err != nil {
		return fmt.Errorf("insert round outcome: %w", err)
	}
	return nil
}

// Get retrieves an outcome by round id. Returns ErrNotFound if not exists.
func (s *RoundOutcomeStore) Get(ctx context.Context, roundID uint64) (o *domain.RoundOutcome, err error) {
	defer observe("get_round_outcome", time.Now(), &err)

	query := `SELECT ` + outcomeColumns + ` FROM round_outcomes WHERE round_id = ? LIMIT 1`

	rows, err := s.conn.Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("query round outcome: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query round outcome: %w", err)
		}
		return nil, storage.ErrNotFound
	}
	return scanOutcome(rows)
}

// ListRecent returns up to limit outcomes, newest round first.
func (s *RoundOutcomeStore) ListRecent(ctx context.Context, limit int) (out []*domain.RoundOutcome, err error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}
	defer observe("list_round_outcomes", time.Now(), &err)

	query := `SELECT ` + outcomeColumns + ` FROM round_outcomes ORDER BY round_id DESC LIMIT ?`

	rows, err := s.conn.Query(ctx, query, uint64(limit))
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

// SquareWin is how often a square won within the archived rounds.
type SquareWin struct {
	Square     domain.SquareIndex
	Wins       uint64
	Jackpots   uint64
	AvgWinners float64
}

// WinsBySquare aggregates archived outcomes per winning square.
func (s *RoundOutcomeStore) WinsBySquare(ctx context.Context) (out []SquareWin, err error) {
	defer observe("wins_by_square", time.Now(), &err)

	query := `
		SELECT
			winning_square,
			count() AS wins,
			countIf(is_jackpot) AS jackpots,
			avg(length(winner_addresses)) AS avg_winners
		FROM round_outcomes
		GROUP BY winning_square
		ORDER BY winning_square
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query wins by square: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			square uint8
			w      SquareWin
		)
		if err := rows.Scan(&square, &w.Wins, &w.Jackpots, &w.AvgWinners); err != nil {
			return nil, fmt.Errorf("scan square win: %w", err)
		}
		w.Square = domain.SquareIndex(square)
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate square wins: %w", err)
	}
	return out, nil
}

func (s *RoundOutcomeStore) exists(ctx context.Context, roundID uint64) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count() FROM round_outcomes WHERE round_id = ?`, roundID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanOutcome(rows driver.Rows) (*domain.RoundOutcome, error) {
	var (
		o           domain.RoundOutcome
		square      uint8
		competitors []uint64
		class       string
		addresses   []string
		bets        []uint64
		won         []uint64
		shares      []float64
	)
	err := rows.Scan(
		&o.RoundID,
		&square,
		&o.TotalDeployed,
		&competitors,
		&o.IsJackpot,
		&class,
		&addresses,
		&bets,
		&won,
		&shares,
		&o.Slot,
	)
	if err != nil {
		return nil, fmt.Errorf("scan round outcome: %w", err)
	}

	o.WinningSquare, err = domain.NewSquareIndex(int(square))
	if err != nil {
		return nil, fmt.Errorf("round %d: %w", o.RoundID, err)
	}
	if len(competitors) != domain.BoardSize {
		return nil, fmt.Errorf("round %d: expected %d competitor totals, got %d", o.RoundID, domain.BoardSize, len(competitors))
	}
	copy(o.Competitors[:], competitors)
	o.Class = domain.OutcomeClass(class)

	if len(bets) != len(addresses) || len(won) != len(addresses) || len(shares) != len(addresses) {
		return nil, fmt.Errorf("round %d: winner arrays differ in length", o.RoundID)
	}
	for i := range addresses {
		o.ResolvedWinners = append(o.ResolvedWinners, domain.WinnerShare{
			Address:   addresses[i],
			AmountBet: bets[i],
			AmountWon: won[i],
			SharePct:  shares[i],
		})
	}
	return &o, nil
}

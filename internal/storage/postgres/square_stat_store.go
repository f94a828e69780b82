package postgres

import (
	"context"
	"fmt"
	"time"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/storage"
)

// SquareStatStore implements storage.SquareStatStore using PostgreSQL.
// The table holds one row per square.
type SquareStatStore struct {
	pool *Pool
}

// NewSquareStatStore creates a new SquareStatStore.
func NewSquareStatStore(pool *Pool) *SquareStatStore {
	return &SquareStatStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SquareStatStore = (*SquareStatStore)(nil)

// Load returns the stored table. Returns ErrNotFound if no rows exist.
// Squares missing from the table come back zeroed.
func (s *SquareStatStore) Load(ctx context.Context) (stats [domain.BoardSize]domain.SquareStat, err error) {
	defer observe("load_square_stats", time.Now(), &err)

	query := `
		SELECT square, times_deployed, rounds_observed, times_won, total_deployed,
			win_rate, edge, streak, avg_competition, recent_wins
		FROM square_stats
		ORDER BY square
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return stats, fmt.Errorf("query square stats: %w", err)
	}
	defer rows.Close()

	for i := range stats {
		stats[i].Square = domain.SquareIndex(i)
	}

	found := 0
	for rows.Next() {
		var (
			square int16
			st     domain.SquareStat
		)
		if err := rows.Scan(
			&square,
			&st.TimesDeployed,
			&st.RoundsObserved,
			&st.TimesWon,
			&st.TotalDeployed,
			&st.WinRate,
			&st.Edge,
			&st.Streak,
			&st.AvgCompetition,
			&st.RecentWins,
		); err != nil {
			return stats, fmt.Errorf("scan square stat: %w", err)
		}
		idx, err := domain.NewSquareIndex(int(square))
		if err != nil {
			return stats, fmt.Errorf("scan square stat: %w", err)
		}
		st.Square = idx
		stats[idx] = st
		found++
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("iterate square stats: %w", err)
	}

	if found == 0 {
		return stats, storage.ErrNotFound
	}
	return stats, nil
}

// Save replaces the stored table in one transaction.
func (s *SquareStatStore) Save(ctx context.Context, stats [domain.BoardSize]domain.SquareStat) (err error) {
	defer observe("save_square_stats", time.Now(), &err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO square_stats (
			square, times_deployed, rounds_observed, times_won, total_deployed,
			win_rate, edge, streak, avg_competition, recent_wins, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (square) DO UPDATE SET
			times_deployed = EXCLUDED.times_deployed,
			rounds_observed = EXCLUDED.rounds_observed,
			times_won = EXCLUDED.times_won,
			total_deployed = EXCLUDED.total_deployed,
			win_rate = EXCLUDED.win_rate,
			edge = EXCLUDED.edge,
			streak = EXCLUDED.streak,
			avg_competition = EXCLUDED.avg_competition,
			recent_wins = EXCLUDED.recent_wins,
			updated_at = now()
	`

	for i, st := range stats {
		_, err := tx.Exec(ctx, query,
			int16(i),
			int64(st.TimesDeployed),
			int64(st.RoundsObserved),
			int64(st.TimesWon),
			int64(st.TotalDeployed),
			st.WinRate,
			st.Edge,
			st.Streak,
			st.AvgCompetition,
			st.RecentWins,
		)
		if err != nil {
			return fmt.Errorf("upsert square %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

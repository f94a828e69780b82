package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/storage"
)

// ProfileStore implements storage.ProfileStore using PostgreSQL.
type ProfileStore struct {
	pool *Pool
}

// NewProfileStore creates a new ProfileStore.
func NewProfileStore(pool *Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ProfileStore = (*ProfileStore)(nil)

const profileColumns = `
	address, total_deployed, total_won, ore_earned, deploy_count, rounds_played,
	wins, full_ore_wins, motherlode_wins, claim_sol_count, claim_ore_count, automated,
	avg_squares_per_deploy, favorite_squares, avg_competition_sol,
	prefers_low_competition, hit_motherlode, preferred_square_count, last_seen_slot
`

// LoadAll returns every profile ordered by address.
func (s *ProfileStore) LoadAll(ctx context.Context) (profiles []*domain.ParticipantProfile, err error) {
	defer observe("load_profiles", time.Now(), &err)

	query := `SELECT ` + profileColumns + ` FROM participant_profiles ORDER BY address`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

// UpsertMany inserts or replaces the given profiles in one batch.
func (s *ProfileStore) UpsertMany(ctx context.Context, profiles []*domain.ParticipantProfile) (err error) {
	if len(profiles) == 0 {
		return nil
	}
	for _, p := range profiles {
		if p == nil || p.Address == "" {
			return storage.ErrInvalidInput
		}
	}
	defer observe("upsert_profiles", time.Now(), &err)

	query := `
		INSERT INTO participant_profiles (` + profileColumns + `, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, now())
		ON CONFLICT (address) DO UPDATE SET
			total_deployed = EXCLUDED.total_deployed,
			total_won = EXCLUDED.total_won,
			ore_earned = EXCLUDED.ore_earned,
			deploy_count = EXCLUDED.deploy_count,
			rounds_played = EXCLUDED.rounds_played,
			wins = EXCLUDED.wins,
			full_ore_wins = EXCLUDED.full_ore_wins,
			motherlode_wins = EXCLUDED.motherlode_wins,
			claim_sol_count = EXCLUDED.claim_sol_count,
			claim_ore_count = EXCLUDED.claim_ore_count,
			automated = EXCLUDED.automated,
			avg_squares_per_deploy = EXCLUDED.avg_squares_per_deploy,
			favorite_squares = EXCLUDED.favorite_squares,
			avg_competition_sol = EXCLUDED.avg_competition_sol,
			prefers_low_competition = EXCLUDED.prefers_low_competition,
			hit_motherlode = EXCLUDED.hit_motherlode,
			preferred_square_count = EXCLUDED.preferred_square_count,
			last_seen_slot = EXCLUDED.last_seen_slot,
			updated_at = now()
	`

	batch := &pgx.Batch{}
	for _, p := range profiles {
		batch.Queue(query,
			p.Address,
			int64(p.TotalDeployed),
			int64(p.TotalWon),
			p.OREEarned,
			int64(p.DeployCount),
			int64(p.RoundsPlayed),
			int64(p.Wins),
			int64(p.FullOREWins),
			int64(p.MotherlodeWins),
			int64(p.ClaimSOLCount),
			int64(p.ClaimORECount),
			p.Automated,
			p.AvgSquaresPerDeploy,
			squaresToInt16(p.FavoriteSquares),
			p.AvgCompetitionSOL,
			p.PrefersLowCompetition,
			p.HitMotherlode,
			p.PreferredSquareCount,
			p.LastSeenSlot,
		)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	for _, p := range profiles {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("upsert profile %s: %w", p.Address, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanProfile(row pgx.Row) (*domain.ParticipantProfile, error) {
	var (
		p         domain.ParticipantProfile
		favorites []int16
	)
	err := row.Scan(
		&p.Address,
		&p.TotalDeployed,
		&p.TotalWon,
		&p.OREEarned,
		&p.DeployCount,
		&p.RoundsPlayed,
		&p.Wins,
		&p.FullOREWins,
		&p.MotherlodeWins,
		&p.ClaimSOLCount,
		&p.ClaimORECount,
		&p.Automated,
		&p.AvgSquaresPerDeploy,
		&favorites,
		&p.AvgCompetitionSOL,
		&p.PrefersLowCompetition,
		&p.HitMotherlode,
		&p.PreferredSquareCount,
		&p.LastSeenSlot,
	)
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}

	p.FavoriteSquares, err = squaresFromInt16(favorites)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.Address, err)
	}
	return &p, nil
}

// squaresToInt16 converts squares for a SMALLINT[] column. A nil slice is
// sent as an empty array so NOT NULL holds.
func squaresToInt16(squares []domain.SquareIndex) []int16 {
	out := make([]int16, len(squares))
	for i, s := range squares {
		out[i] = int16(s)
	}
	return out
}

func squaresFromInt16(values []int16) ([]domain.SquareIndex, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]domain.SquareIndex, len(values))
	for i, v := range values {
		s, err := domain.NewSquareIndex(int(v))
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

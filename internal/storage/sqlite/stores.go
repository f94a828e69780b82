package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/storage"
)

// SquareStatStore implements storage.SquareStatStore using SQLite.
type SquareStatStore struct {
	db *DB
}

// NewSquareStatStore creates a new SquareStatStore.
func NewSquareStatStore(db *DB) *SquareStatStore {
	return &SquareStatStore{db: db}
}

var _ storage.SquareStatStore = (*SquareStatStore)(nil)

// Load returns the stored table. Returns ErrNotFound if no rows exist.
func (s *SquareStatStore) Load(ctx context.Context) (stats [domain.BoardSize]domain.SquareStat, err error) {
	defer observe("load_square_stats", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT square, times_deployed, rounds_observed, times_won, total_deployed,
			win_rate, edge, streak, avg_competition, recent_wins
		FROM square_stats
		ORDER BY square
	`)
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
			square int
			st     domain.SquareStat
		)
		if err := rows.Scan(&square, &st.TimesDeployed, &st.RoundsObserved, &st.TimesWon,
			&st.TotalDeployed, &st.WinRate, &st.Edge, &st.Streak, &st.AvgCompetition, &st.RecentWins); err != nil {
			return stats, fmt.Errorf("scan square stat: %w", err)
		}
		idx, err := domain.NewSquareIndex(square)
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, st := range stats {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO square_stats (
				square, times_deployed, rounds_observed, times_won, total_deployed,
				win_rate, edge, streak, avg_competition, recent_wins, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (square) DO UPDATE SET
				times_deployed = excluded.times_deployed,
				rounds_observed = excluded.rounds_observed,
				times_won = excluded.times_won,
				total_deployed = excluded.total_deployed,
				win_rate = excluded.win_rate,
				edge = excluded.edge,
				streak = excluded.streak,
				avg_competition = excluded.avg_competition,
				recent_wins = excluded.recent_wins,
				updated_at = excluded.updated_at
		`, i, int64(st.TimesDeployed), int64(st.RoundsObserved), int64(st.TimesWon), int64(st.TotalDeployed),
			st.WinRate, st.Edge, st.Streak, st.AvgCompetition, st.RecentWins, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("upsert square %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ProfileStore implements storage.ProfileStore using SQLite. The profile is
// stored as one JSON document per address.
type ProfileStore struct {
	db *DB
}

// NewProfileStore creates a new ProfileStore.
func NewProfileStore(db *DB) *ProfileStore {
	return &ProfileStore{db: db}
}

var _ storage.ProfileStore = (*ProfileStore)(nil)

// LoadAll returns every profile ordered by address.
func (s *ProfileStore) LoadAll(ctx context.Context) (profiles []*domain.ParticipantProfile, err error) {
	defer observe("load_profiles", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `SELECT address, data FROM participant_profiles ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			address string
			data    []byte
		)
		if err := rows.Scan(&address, &data); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		var p domain.ParticipantProfile
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", address, err)
		}
		p.Address = address
		profiles = append(profiles, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

// UpsertMany inserts or replaces the given profiles in one transaction.
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO participant_profiles (address, total_deployed, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (address) DO UPDATE SET
			total_deployed = excluded.total_deployed,
			data = excluded.data,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, p := range profiles {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode profile %s: %w", p.Address, err)
		}
		if _, err := stmt.ExecContext(ctx, p.Address, int64(p.TotalDeployed), data, now); err != nil {
			return fmt.Errorf("upsert profile %s: %w", p.Address, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RoundOutcomeStore implements storage.RoundOutcomeStore using SQLite.
type RoundOutcomeStore struct {
	db *DB
}

// NewRoundOutcomeStore creates a new RoundOutcomeStore.
func NewRoundOutcomeStore(db *DB) *RoundOutcomeStore {
	return &RoundOutcomeStore{db: db}
}

var _ storage.RoundOutcomeStore = (*RoundOutcomeStore)(nil)

// Save adds an outcome. Returns ErrDuplicateKey if round_id exists.
func (s *RoundOutcomeStore) Save(ctx context.Context, o *domain.RoundOutcome) (err error) {
	if o == nil || !o.WinningSquare.Valid() {
		return storage.ErrInvalidInput
	}
	defer observe("save_round_outcome", time.Now(), &err)

	competitors, err := json.Marshal(o.Competitors)
	if err != nil {
		return fmt.Errorf("encode competitors: %w", err)
	}
	winners := o.ResolvedWinners
	if winners == nil {
		winners = []domain.WinnerShare{}
	}
	winnersJSON, err := json.Marshal(winners)
	if err != nil {
		return fmt.Errorf("encode winners: %w", err)
	}

	err = insertOnce(ctx, s.db, `
		INSERT INTO round_outcomes (
			round_id, winning_square, total_deployed, competitors, is_jackpot,
			class, resolved_winners, slot, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (round_id) DO NOTHING
	`, int64(o.RoundID), int(o.WinningSquare), int64(o.TotalDeployed), competitors, o.IsJackpot,
		string(o.Class), winnersJSON, o.Slot, time.Now().Unix())
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return err
		}
		return fmt.Errorf("insert round outcome: %w", err)
	}
	return nil
}

const outcomeSelect = `
	SELECT round_id, winning_square, total_deployed, competitors, is_jackpot,
		class, resolved_winners, slot
	FROM round_outcomes
`

// Get retrieves an outcome by round id. Returns ErrNotFound if not exists.
func (s *RoundOutcomeStore) Get(ctx context.Context, roundID uint64) (o *domain.RoundOutcome, err error) {
	defer observe("get_round_outcome", time.Now(), &err)

	o, err = scanOutcome(s.db.QueryRowContext(ctx, outcomeSelect+` WHERE round_id = ?`, int64(roundID)))
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

	rows, err := s.db.QueryContext(ctx, outcomeSelect+` ORDER BY round_id DESC LIMIT ?`, limit)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanOutcome(row scanner) (*domain.RoundOutcome, error) {
	var (
		o           domain.RoundOutcome
		square      int
		competitors []byte
		class       string
		winners     []byte
	)
	err := row.Scan(&o.RoundID, &square, &o.TotalDeployed, &competitors, &o.IsJackpot, &class, &winners, &o.Slot)
	if err != nil {
		if isNotFoundError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan round outcome: %w", err)
	}

	if o.WinningSquare, err = domain.NewSquareIndex(square); err != nil {
		return nil, fmt.Errorf("round %d: %w", o.RoundID, err)
	}
	if err := json.Unmarshal(competitors, &o.Competitors); err != nil {
		return nil, fmt.Errorf("decode competitors of round %d: %w", o.RoundID, err)
	}
	o.Class = domain.OutcomeClass(class)
	if err := json.Unmarshal(winners, &o.ResolvedWinners); err != nil {
		return nil, fmt.Errorf("decode winners of round %d: %w", o.RoundID, err)
	}
	return &o, nil
}

// StrategyStore implements storage.StrategyStore using SQLite.
type StrategyStore struct {
	db *DB
}

// NewStrategyStore creates a new StrategyStore.
func NewStrategyStore(db *DB) *StrategyStore {
	return &StrategyStore{db: db}
}

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

	err = insertOnce(ctx, s.db, `
		INSERT INTO strategy_runs (run_id, created_at, strategies)
		VALUES (?, ?, ?)
		ON CONFLICT (run_id) DO NOTHING
	`, run.RunID, run.CreatedAt.UTC().UnixNano(), payload)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return err
		}
		return fmt.Errorf("insert strategy run: %w", err)
	}
	return nil
}

// Latest returns the most recent run. Returns ErrNotFound if none.
func (s *StrategyStore) Latest(ctx context.Context) (run *storage.StrategyRun, err error) {
	defer observe("latest_strategy_run", time.Now(), &err)

	var (
		r       storage.StrategyRun
		created int64
		payload []byte
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT run_id, created_at, strategies
		FROM strategy_runs
		ORDER BY created_at DESC, run_id DESC
		LIMIT 1
	`).Scan(&r.RunID, &created, &payload)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query latest strategy run: %w", err)
	}

	if err := json.Unmarshal(payload, &r.Strategies); err != nil {
		return nil, fmt.Errorf("decode strategies of run %s: %w", r.RunID, err)
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	return &r, nil
}

// SignatureStore implements storage.SignatureStore using SQLite.
type SignatureStore struct {
	db *DB
}

// NewSignatureStore creates a new SignatureStore.
func NewSignatureStore(db *DB) *SignatureStore {
	return &SignatureStore{db: db}
}

var _ storage.SignatureStore = (*SignatureStore)(nil)

// MarkProcessed records a signature. Marking twice keeps the first row.
func (s *SignatureStore) MarkProcessed(ctx context.Context, signature string, slot int64) (err error) {
	if signature == "" {
		return storage.ErrInvalidInput
	}
	defer observe("mark_signature", time.Now(), &err)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO processed_signatures (signature, slot, processed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (signature) DO NOTHING
	`, signature, slot, time.Now().Unix())
	if err != nil {
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

	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_signatures WHERE signature = ?)`, signature,
	).Scan(&done)
	if err != nil {
		return false, fmt.Errorf("check signature: %w", err)
	}
	return done, nil
}

// Cursor returns the processed signature with the highest (slot, signature).
// SQLite compares TEXT bytewise by default. Returns ErrNotFound if none.
func (s *SignatureStore) Cursor(ctx context.Context) (cur *storage.SignatureCursor, err error) {
	defer observe("signature_cursor", time.Now(), &err)

	var c storage.SignatureCursor
	err = s.db.QueryRowContext(ctx, `
		SELECT signature, slot
		FROM processed_signatures
		ORDER BY slot DESC, signature DESC
		LIMIT 1
	`).Scan(&c.Signature, &c.Slot)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query signature cursor: %w", err)
	}
	return &c, nil
}

// StateStore implements storage.StateStore using SQLite.
type StateStore struct {
	db *DB
}

// NewStateStore creates a new StateStore.
func NewStateStore(db *DB) *StateStore {
	return &StateStore{db: db}
}

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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO engine_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("put state %s: %w", key, err)
	}
	return nil
}

// Get returns the value for key. Returns ErrNotFound if not exists.
func (s *StateStore) Get(ctx context.Context, key string) (value []byte, err error) {
	defer observe("get_state", time.Now(), &err)

	err = s.db.QueryRowContext(ctx, `SELECT value FROM engine_state WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

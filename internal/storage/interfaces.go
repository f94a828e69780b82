package storage

import (
	"context"
	"time"

	"ore-strategy-lab/internal/domain"
)

// SquareStatStore persists the 25-entry square statistics table.
type SquareStatStore interface {
	// Load returns the stored table. Returns ErrNotFound if nothing was saved yet.
	Load(ctx context.Context) ([domain.BoardSize]domain.SquareStat, error)

	// Save replaces the stored table.
	Save(ctx context.Context, stats [domain.BoardSize]domain.SquareStat) error
}

// ProfileStore persists participant profiles keyed by address.
type ProfileStore interface {
	// LoadAll returns every profile ordered by address.
	LoadAll(ctx context.Context) ([]*domain.ParticipantProfile, error)

	// UpsertMany inserts or replaces the given profiles.
	UpsertMany(ctx context.Context, profiles []*domain.ParticipantProfile) error
}

// RoundOutcomeStore persists resolved rounds. Outcomes are immutable.
type RoundOutcomeStore interface {
	// Save adds an outcome. Returns ErrDuplicateKey if round_id exists.
	Save(ctx context.Context, o *domain.RoundOutcome) error

	// Get retrieves an outcome by round id. Returns ErrNotFound if not exists.
	Get(ctx context.Context, roundID uint64) (*domain.RoundOutcome, error)

	// ListRecent returns up to limit outcomes, newest round first.
	ListRecent(ctx context.Context, limit int) ([]*domain.RoundOutcome, error)
}

// StrategyRun is one analysis pass of the learning engine.
type StrategyRun struct {
	RunID      string
	CreatedAt  time.Time
	Strategies []domain.DetectedStrategy
}

// StrategyStore persists detected strategy lists per analysis run.
type StrategyStore interface {
	// Save stores a run. Returns ErrDuplicateKey if run_id exists.
	Save(ctx context.Context, run *StrategyRun) error

	// Latest returns the most recent run. Returns ErrNotFound if none.
	Latest(ctx context.Context) (*StrategyRun, error)
}

// SignatureCursor is the newest processed transaction.
type SignatureCursor struct {
	Signature string
	Slot      int64
}

// SignatureStore deduplicates processed transactions on the caller side.
type SignatureStore interface {
	// MarkProcessed records a signature. Marking twice is not an error.
	MarkProcessed(ctx context.Context, signature string, slot int64) error

	// IsProcessed reports whether the signature was recorded.
	IsProcessed(ctx context.Context, signature string) (bool, error)

	// Cursor returns the processed signature with the highest slot
	// (highest signature on ties). Returns ErrNotFound if none.
	Cursor(ctx context.Context) (*SignatureCursor, error)
}

// EventStore archives classified events for analytics. Append-only.
type EventStore interface {
	InsertEvents(ctx context.Context, events []domain.ParsedEvent) error
}

// StateStore keeps opaque engine snapshots by key.
type StateStore interface {
	// Put inserts or replaces the value for key.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the value for key. Returns ErrNotFound if not exists.
	Get(ctx context.Context, key string) ([]byte, error)
}

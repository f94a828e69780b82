package ingestion

import (
	"context"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/solana"
)

// Processor consumes fetched transactions in chain order.
// *pipeline.Pipeline satisfies it.
type Processor interface {
	// ProcessTransaction classifies and applies tx. It returns false when the
	// transaction does not invoke the program.
	ProcessTransaction(ctx context.Context, tx *solana.Transaction) (domain.ParsedEvent, bool, error)
}

// RoundSource reports the round currently accepting deploys.
// *accounts.Reader satisfies it through LiveRoundID.
type RoundSource interface {
	CurrentRoundID(ctx context.Context) (uint64, error)
}

// RoundTracker is told which round deploys belong to.
type RoundTracker interface {
	BeginRound(id uint64)
}

package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ore-strategy-lab/internal/decoder"
	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/storage"
)

func TestEventStore_InsertAndAggregate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEventStore(conn)

	blockTime := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	events := []domain.ParsedEvent{
		{
			Signature: "d1", Slot: 10, BlockTime: &blockTime, Signer: "a", Success: true,
			Kind: domain.KindDeploy, Instruction: decoder.DeployInstruction(100, []domain.SquareIndex{0, 5}),
		},
		{
			Signature: "d2", Slot: 11, Signer: "b", Success: true,
			Kind: domain.KindDeploy, Instruction: decoder.DeployInstruction(40, []domain.SquareIndex{5}),
		},
		{
			Signature: "d3", Slot: 12, Signer: "c", Success: false,
			Kind: domain.KindDeploy, Instruction: decoder.DeployInstruction(999, []domain.SquareIndex{5}),
		},
		{
			Signature: "r1", Slot: 13, Success: true, Kind: domain.KindReset,
			RoundResult: &domain.RoundResultFields{RoundID: 1, WinningSquare: 5, Source: domain.ResultFromLogs},
		},
		{Signature: "g1", Slot: 14, Success: true, Kind: domain.KindClaimSOL, Gap: true, DecodeErr: "short"},
	}
	require.NoError(t, store.InsertEvents(ctx, events))
	require.NoError(t, store.InsertEvents(ctx, nil))

	counts, err := store.CountByKind(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 3)
	assert.Equal(t, KindCount{Kind: "Deploy", Events: 3, Failed: 1, Lamports: 1139}, counts[0])
	assert.Equal(t, uint64(1), counts[1].Gaps)
	assert.Equal(t, "ClaimSOL", counts[1].Kind)

	volume, err := store.DeployVolumeBySquare(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), volume[0])
	assert.Equal(t, uint64(140), volume[5])
	assert.Zero(t, volume[24])
}

func TestRoundOutcomeStore_SaveGetList(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRoundOutcomeStore(conn)

	for _, id := range []uint64{2, 3, 1} {
		o := &domain.RoundOutcome{
			RoundID:       id,
			WinningSquare: 4,
			TotalDeployed: 1000,
			IsJackpot:     id == 3,
			Class:         domain.OutcomeFullWin,
			Slot:          int64(id * 10),
			ResolvedWinners: []domain.WinnerShare{
				{Address: "x", AmountBet: 3, AmountWon: 1000, SharePct: 0.75},
				{Address: "y", AmountBet: 1, AmountWon: 0, SharePct: 0.25},
			},
		}
		o.Competitors[4] = 4
		require.NoError(t, store.Save(ctx, o))
	}

	dup := &domain.RoundOutcome{RoundID: 2, WinningSquare: 1}
	assert.ErrorIs(t, store.Save(ctx, dup), storage.ErrDuplicateKey)

	got, err := store.Get(ctx, 3)
	require.NoError(t, err)
	assert.True(t, got.IsJackpot)
	assert.Equal(t, uint64(4), got.Competitors[4])
	require.Len(t, got.ResolvedWinners, 2)
	assert.Equal(t, domain.WinnerShare{Address: "y", AmountBet: 1, SharePct: 0.25}, got.ResolvedWinners[1])

	_, err = store.Get(ctx, 42)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	recent, err := store.ListRecent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, uint64(3), recent[0].RoundID)
	assert.Equal(t, uint64(1), recent[2].RoundID)

	wins, err := store.WinsBySquare(ctx)
	require.NoError(t, err)
	require.Len(t, wins, 1)
	assert.Equal(t, SquareWin{Square: 4, Wins: 3, Jackpots: 1, AvgWinners: 2}, wins[0])
}

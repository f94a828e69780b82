package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ore-strategy-lab/internal/accounts"
	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/solana/stub"
	"ore-strategy-lab/internal/storage/memory"
)

// flakyEvents fails the first failures inserts.
type flakyEvents struct {
	*memory.EventStore
	failures int
}

func (f *flakyEvents) InsertEvents(ctx context.Context, events []domain.ParsedEvent) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("archive down")
	}
	return f.EventStore.InsertEvents(ctx, events)
}

// flakyOutcomes fails the first failures saves.
type flakyOutcomes struct {
	*memory.RoundOutcomeStore
	failures int
}

func (f *flakyOutcomes) Save(ctx context.Context, o *domain.RoundOutcome) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("database down")
	}
	return f.RoundOutcomeStore.Save(ctx, o)
}

func TestPipeline_FailedArchiveBatchIsRetried(t *testing.T) {
	events := &flakyEvents{EventStore: memory.NewEventStore(), failures: 1}
	p := New(Options{Stores: Stores{Events: events}, EventBatchSize: 2, Logger: log.New(&bytes.Buffer{}, "", 0)})
	p.BeginRound(1)

	// four deploys and a reset
	feed(t, p, FixtureStream(1, 1, FixturePlayers))
	require.NoError(t, p.Flush(context.Background()))

	archived := events.Events()
	require.Len(t, archived, 5)
	assert.Equal(t, "fx-1-0", archived[0].Signature)
	status := p.Status()
	assert.Zero(t, status.PendingEvents)
	assert.Equal(t, uint64(1), status.WriteErrors)
}

func TestPipeline_FlushKeepsBatchOnFailure(t *testing.T) {
	events := &flakyEvents{EventStore: memory.NewEventStore(), failures: 1}
	p := New(Options{Stores: Stores{Events: events}, Logger: log.New(&bytes.Buffer{}, "", 0)})
	p.BeginRound(1)
	ctx := context.Background()

	p.ProcessEvent(ctx, deployEvent("d1", "a", 10, 3))
	p.ProcessEvent(ctx, deployEvent("d2", "b", 10, 4))

	assert.Error(t, p.Flush(ctx))
	assert.Equal(t, 2, p.Status().PendingEvents)

	require.NoError(t, p.Flush(ctx))
	assert.Len(t, events.Events(), 2)
	assert.Zero(t, p.Status().PendingEvents)
}

func TestPipeline_FailedOutcomeSaveIsQueued(t *testing.T) {
	outcomes := &flakyOutcomes{RoundOutcomeStore: memory.NewRoundOutcomeStore(), failures: 1}
	var logs bytes.Buffer
	p := newTestPipeline(t, Stores{Outcomes: outcomes}, &logs)
	p.BeginRound(1)

	feed(t, p, FixtureStream(1, 1, FixturePlayers))

	status := p.Status()
	assert.Equal(t, uint64(1), status.RoundsResolved)
	assert.Equal(t, 1, status.PendingWrites)
	assert.Contains(t, logs.String(), "database down")

	ctx := context.Background()
	require.NoError(t, p.Flush(ctx))
	saved, err := outcomes.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, uint64(1), saved[0].RoundID)
	assert.Zero(t, p.Status().PendingWrites)
	assert.Equal(t, uint64(1), p.Status().RoundsResolved)
}

func putRoundAccount(t *testing.T, rpc *stub.RPCClient, r *accounts.Round) {
	t.Helper()
	addr, err := accounts.RoundAddress(domain.OREProgramID, r.ID)
	require.NoError(t, err)
	data, err := r.MarshalBinary()
	require.NoError(t, err)
	rpc.SetAccount(addr, domain.OREProgramID, data)
}

func TestPipeline_UnknownResetReadsRoundAccount(t *testing.T) {
	rpc := stub.NewRPCClient()
	reader, err := accounts.NewReader(rpc, "")
	require.NoError(t, err)

	revealed := &accounts.Round{ID: 5}
	binary.LittleEndian.PutUint64(revealed.SlotHash[:8], 7) // rng 7 picks square 7
	putRoundAccount(t, rpc, revealed)
	putRoundAccount(t, rpc, &accounts.Round{ID: 6})

	p := New(Options{RoundResults: reader, Logger: log.New(&bytes.Buffer{}, "", 0)})
	p.BeginRound(5)
	ctx := context.Background()

	p.ProcessEvent(ctx, deployEvent("d1", "solo", 10, 3, 7))
	out := p.ProcessEvent(ctx, domain.ParsedEvent{
		Signature:         "r5",
		Slot:              30,
		Success:           true,
		Kind:              domain.KindReset,
		CompletionUnknown: true,
	})
	require.NotNil(t, out)
	assert.Equal(t, uint64(5), out.RoundID)
	assert.Equal(t, domain.MustSquare(7), out.WinningSquare)
	require.Len(t, out.ResolvedWinners, 1)
	assert.Equal(t, uint64(10), out.ResolvedWinners[0].AmountWon)

	// round 6 has no slot hash yet
	out = p.ProcessEvent(ctx, domain.ParsedEvent{
		Signature:         "r6",
		Success:           true,
		Kind:              domain.KindReset,
		CompletionUnknown: true,
	})
	assert.Nil(t, out)

	status := p.Status()
	assert.Equal(t, uint64(1), status.RoundsResolved)
	assert.Equal(t, uint64(1), status.Unresolved)
	assert.Equal(t, uint64(6), status.CurrentRound)
}

package pipeline

import (
	"bytes"
	"context"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ore-strategy-lab/internal/accounts"
	"ore-strategy-lab/internal/decoder"
	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/solana"
	"ore-strategy-lab/internal/storage/memory"
)

type testStores struct {
	stats      *memory.SquareStatStore
	profiles   *memory.ProfileStore
	outcomes   *memory.RoundOutcomeStore
	strategies *memory.StrategyStore
	events     *memory.EventStore
	state      *memory.StateStore
}

func newTestStores() testStores {
	return testStores{
		stats:      memory.NewSquareStatStore(),
		profiles:   memory.NewProfileStore(),
		outcomes:   memory.NewRoundOutcomeStore(),
		strategies: memory.NewStrategyStore(),
		events:     memory.NewEventStore(),
		state:      memory.NewStateStore(),
	}
}

func (s testStores) stores() Stores {
	return Stores{
		SquareStats: s.stats,
		Profiles:    s.profiles,
		Outcomes:    s.outcomes,
		Strategies:  s.strategies,
		Events:      s.events,
		State:       s.state,
	}
}

func newTestPipeline(t *testing.T, st Stores, logs *bytes.Buffer) *Pipeline {
	t.Helper()
	return New(Options{Stores: st, Logger: log.New(logs, "", 0)})
}

func feed(t *testing.T, p *Pipeline, txs []*solana.Transaction) {
	t.Helper()
	ctx := context.Background()
	for _, tx := range txs {
		_, ok, err := p.ProcessTransaction(ctx, tx)
		require.NoError(t, err)
		require.True(t, ok, tx.Signature)
	}
}

func deployEvent(sig string, addr string, amount uint64, sq ...int) domain.ParsedEvent {
	return domain.ParsedEvent{
		Signature:   sig,
		Slot:        10,
		Signer:      addr,
		Success:     true,
		Kind:        domain.KindDeploy,
		Instruction: decoder.DeployInstruction(amount, squares(sq...)),
	}
}

func TestPipeline_FixtureRounds(t *testing.T) {
	st := newTestStores()
	p := newTestPipeline(t, st.stores(), &bytes.Buffer{})
	p.BeginRound(1)

	feed(t, p, FixtureStream(1, 3, FixturePlayers))

	status := p.Status()
	assert.Equal(t, uint64(3), status.RoundsResolved)
	assert.Equal(t, uint64(4), status.CurrentRound)
	assert.Equal(t, 4, status.Profiles)
	assert.Zero(t, status.Counters.Gaps)
	require.NotNil(t, status.LastOutcome)
	assert.Equal(t, uint64(3), status.LastOutcome.RoundID)

	ctx := context.Background()
	first, err := st.outcomes.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.SquareIndex(7), first.WinningSquare)
	assert.Equal(t, domain.OutcomeFullWin, first.Class)
	require.Len(t, first.ResolvedWinners, 2)
	assert.Equal(t, FixturePlayers[1].Address, first.ResolvedWinners[0].Address)
	assert.Equal(t, FixturePlayers[2].Address, first.ResolvedWinners[1].Address)
	assert.InDelta(t, 10.0/12.0, first.ResolvedWinners[1].SharePct, 1e-9)

	recent, err := st.outcomes.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, uint64(3), recent[0].RoundID)

	for _, pr := range p.Profiles() {
		assert.Equal(t, uint64(3), pr.RoundsPlayed, pr.Address)
	}

	s := p.Summary()
	assert.Equal(t, uint64(2), s.TotalWinsTracked)
	assert.Equal(t, 4, s.TotalPlayersTracked)
	assert.Equal(t, uint64(3), s.RoundsRecorded)
	assert.Equal(t, 15, s.TrackedSquares)
	assert.Zero(t, s.GapEvents)
	assert.InDelta(t, 3*1.044, s.TotalDeployedSOL, 1e-9)

	counts := p.CountStats()
	assert.Equal(t, uint64(1), counts[1].TimesWon)
	assert.Equal(t, uint64(1), counts[12].TimesWon)
	assert.Equal(t, uint64(3), counts[5].TimesUsed)
}

func TestPipeline_ForeignTransactionIgnored(t *testing.T) {
	p := newTestPipeline(t, Stores{}, &bytes.Buffer{})
	tx := FixtureStream(1, 1, FixturePlayers)[0]
	tx.Message.AccountKeys[2] = "11111111111111111111111111111111"

	_, ok, err := p.ProcessTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, p.Status().Profiles)
}

func TestPipeline_RoundIDZeroUsesTrackedRound(t *testing.T) {
	p := newTestPipeline(t, Stores{}, &bytes.Buffer{})
	p.BeginRound(5)
	ctx := context.Background()

	p.ProcessEvent(ctx, deployEvent("d1", "solo", 10, 3, 7))

	out := p.ProcessEvent(ctx, domain.ParsedEvent{
		Signature:   "r1",
		Slot:        20,
		Success:     true,
		Kind:        domain.KindReset,
		RoundResult: &domain.RoundResultFields{WinningSquare: 7, Source: domain.ResultFromLogs},
	})
	require.NotNil(t, out)

	assert.Equal(t, uint64(5), out.RoundID)
	assert.Equal(t, int64(20), out.Slot)
	require.Len(t, out.ResolvedWinners, 1)
	assert.Equal(t, 1.0, out.ResolvedWinners[0].SharePct)
	assert.Equal(t, uint64(10), out.ResolvedWinners[0].AmountWon)
	assert.Equal(t, uint64(6), p.CurrentRound())
}

func TestPipeline_ResetWithoutResult(t *testing.T) {
	p := newTestPipeline(t, Stores{}, &bytes.Buffer{})
	p.BeginRound(9)

	out := p.ProcessEvent(context.Background(), domain.ParsedEvent{
		Signature:         "r1",
		Success:           true,
		Kind:              domain.KindReset,
		CompletionUnknown: true,
	})
	assert.Nil(t, out)

	status := p.Status()
	assert.Equal(t, uint64(1), status.Unresolved)
	assert.Zero(t, status.RoundsResolved)
	assert.Equal(t, uint64(9), status.CurrentRound)
}

func TestPipeline_FlushAndLoad(t *testing.T) {
	st := newTestStores()
	p := newTestPipeline(t, st.stores(), &bytes.Buffer{})
	p.BeginRound(1)
	feed(t, p, FixtureStream(1, 3, FixturePlayers))

	ctx := context.Background()
	require.NoError(t, p.Flush(ctx))
	assert.Len(t, st.events.Events(), 15)

	restored := newTestPipeline(t, st.stores(), &bytes.Buffer{})
	require.NoError(t, restored.Load(ctx))

	want, got := p.SquareStats(), restored.SquareStats()
	for i := range want {
		assert.Equal(t, want[i].TimesWon, got[i].TimesWon, "square %d", i)
		assert.Equal(t, want[i].TimesDeployed, got[i].TimesDeployed, "square %d", i)
		assert.Equal(t, want[i].RoundsObserved, got[i].RoundsObserved, "square %d", i)
		assert.Equal(t, want[i].Streak, got[i].Streak, "square %d", i)
		assert.InDelta(t, want[i].AvgCompetition, got[i].AvgCompetition, 1e-9, "square %d", i)
	}
	assert.Equal(t, p.Profiles(), restored.Profiles())
	assert.Equal(t, p.CountStats(), restored.CountStats())
	assert.Equal(t, uint64(2), restored.Summary().TotalWinsTracked)
	assert.Equal(t, uint64(4), restored.CurrentRound())
}

func TestPipeline_EventBatchArchived(t *testing.T) {
	st := newTestStores()
	p := New(Options{Stores: Stores{Events: st.events}, EventBatchSize: 4, Logger: log.New(&bytes.Buffer{}, "", 0)})
	p.BeginRound(1)

	feed(t, p, FixtureStream(1, 1, FixturePlayers))

	assert.Len(t, st.events.Events(), 4)
	assert.Equal(t, 1, p.Status().PendingEvents)
}

func TestPipeline_AnalyzePersistsRun(t *testing.T) {
	st := newTestStores()
	p := newTestPipeline(t, st.stores(), &bytes.Buffer{})
	fixed := time.Date(2025, 1, 4, 12, 0, 0, 0, time.UTC)
	p.WithClock(func() time.Time { return fixed })

	_, err := p.Analyze(context.Background())
	require.NoError(t, err)

	run, err := st.strategies.Latest(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, fixed, run.CreatedAt)
	assert.Empty(t, run.Strategies)
}

func TestPipeline_Decide(t *testing.T) {
	p := newTestPipeline(t, Stores{}, &bytes.Buffer{})
	p.BeginRound(1)
	feed(t, p, FixtureStream(1, 3, FixturePlayers))

	live := &accounts.LiveRound{RoundID: 4}
	rec := p.Decide(domain.LamportsPerSOL, live)
	assert.Equal(t, uint64(4), rec.RoundID)
	assert.True(t, rec.ShouldStake)
	assert.Equal(t, domain.TierVeryLow, rec.Tier)
	assert.NotEmpty(t, rec.DecisionID)

	last, ok := p.LastDecision()
	require.True(t, ok)
	assert.Equal(t, rec.DecisionID, last.DecisionID)

	skip := p.Decide(1, nil)
	assert.False(t, skip.ShouldStake)
	assert.NotEmpty(t, skip.SkipReason)
}

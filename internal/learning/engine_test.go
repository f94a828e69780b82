package learning

import (
	"bytes"
	"encoding/json"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/resolver"
	"ore-strategy-lab/internal/tracker"
)

func sq(idx ...int) []domain.SquareIndex {
	out := make([]domain.SquareIndex, len(idx))
	for i, v := range idx {
		out[i] = domain.MustSquare(v)
	}
	return out
}

func quiet() *log.Logger { return log.New(&bytes.Buffer{}, "", 0) }

func newEngine(opts Options) (*Engine, *tracker.Tracker) {
	tr := tracker.New(tracker.Options{Logger: quiet()})
	opts.Logger = quiet()
	return New(tr, opts), tr
}

func deployEvent(addr string, amount uint64, squares []domain.SquareIndex) domain.ParsedEvent {
	return domain.ParsedEvent{
		Signature: "sig-" + addr,
		Slot:      100,
		Signer:    addr,
		Success:   true,
		Kind:      domain.KindDeploy,
		Instruction: domain.DecodedInstruction{
			Kind:   domain.KindDeploy,
			Deploy: &domain.DeployFields{AmountLamports: amount, Squares: squares},
		},
	}
}

// lowSquareWin is a 2-square win paying 3x the bet in a 1 SOL round.
func lowSquareWin(i int, fullORE bool) WinRecord {
	return WinRecord{
		RoundID:       uint64(i + 1),
		Winner:        "winner-" + string(rune('a'+i%26)),
		WinningSquare: 4,
		AmountBet:     10_000_000,
		AmountWon:     30_000_000,
		SquaresBet:    sq(4, 9),
		NumSquares:    2,
		RoundTotal:    domain.LamportsPerSOL,
		IsFullORE:     fullORE,
		OREEarned:     1,
		Slot:          int64(i),
	}
}

func TestRecordRound_ProfilesAndCountStats(t *testing.T) {
	eng, tr := newEngine(Options{})
	tr.BeginRound(7)
	tr.Apply(deployEvent("alice", 1_000, sq(3, 7)))
	tr.Apply(deployEvent("bob", 500, sq(7, 8, 9)))
	tr.Apply(deployEvent("carol", 2_000, sq(1)))

	rd, ok := tr.RoundDeployments(7)
	require.True(t, ok)
	outcome := resolver.New(resolver.Options{}).Resolve(7, 7, rd.PerSquare, rd.Deploys, false)
	outcome.Slot = 200
	require.Equal(t, domain.OutcomeFullWin, outcome.Class)

	wins := eng.RecordRound(outcome, rd.Deploys)
	assert.Equal(t, 2, wins)
	assert.Equal(t, uint64(2), eng.TotalWins())
	assert.Equal(t, uint64(1), eng.RoundsRecorded())

	alice, ok := tr.Profile("alice")
	require.True(t, ok)
	assert.Equal(t, uint64(1), alice.Wins)
	assert.Equal(t, uint64(1), alice.FullOREWins)
	assert.InDelta(t, 1.0, alice.OREEarned, 1e-9)
	assert.True(t, alice.PrefersLowCompetition)
	assert.InDelta(t, domain.LamportsToSOL(5_500), alice.AvgCompetitionSOL, 1e-12)
	assert.Equal(t, int64(200), alice.LastSeenSlot)

	carol, _ := tr.Profile("carol")
	assert.Equal(t, uint64(0), carol.Wins)

	counts := eng.CountStats()
	assert.Equal(t, uint64(1), counts[1].TimesUsed)
	assert.Equal(t, uint64(0), counts[1].TimesWon)
	assert.Equal(t, uint64(2_000), counts[1].TotalDeployed)
	assert.Equal(t, uint64(1), counts[2].TimesWon)
	assert.Equal(t, uint64(1), counts[3].TimesWon)
	assert.InDelta(t, 1.0, counts[2].WinRate, 1e-9)
	assert.InDelta(t, 1.0, counts[2].AvgOREEarned, 1e-9)

	history := eng.History()
	require.Len(t, history, 2)
	assert.Equal(t, "alice", history[0].Winner)
	assert.Equal(t, uint64(1_500), history[0].CompetitionOnSquare)
	assert.InDelta(t, 2.0/3.0, history[0].SharePct, 1e-9)
	assert.Equal(t, sq(3, 7), history[0].SquaresBet)
}

func TestRecordRound_SplitRoundEarnsShare(t *testing.T) {
	eng, tr := newEngine(Options{})
	tr.BeginRound(1)
	tr.Apply(deployEvent("alice", 3*domain.LamportsPerSOL, sq(0)))
	tr.Apply(deployEvent("bob", domain.LamportsPerSOL, sq(0)))

	rd, _ := tr.RoundDeployments(1)
	outcome := resolver.New(resolver.Options{}).Resolve(1, 0, rd.PerSquare, rd.Deploys, false)
	require.Equal(t, domain.OutcomeSplit, outcome.Class)
	eng.RecordRound(outcome, rd.Deploys)

	h := eng.History()
	require.Len(t, h, 2)
	assert.False(t, h[0].IsFullORE)
	assert.InDelta(t, 0.75, h[0].OREEarned, 1e-9)
	assert.InDelta(t, 0.25, h[1].OREEarned, 1e-9)
}

func TestAnalyze_DetectsAndRanks(t *testing.T) {
	eng, _ := newEngine(Options{AnalyzeEvery: 1_000})
	for i := 0; i < 25; i++ {
		eng.RecordWin(lowSquareWin(i, i%2 == 0))
	}

	got := eng.AnalyzeAndDetectStrategies()
	require.Len(t, got, 3)

	assert.Equal(t, domain.StrategyLowSquare, got[0].Kind)
	assert.Equal(t, domain.StrategyLowCompetition, got[1].Kind)
	assert.Equal(t, domain.StrategyFullORE, got[2].Kind)

	low := got[0]
	assert.Equal(t, 2, low.SquareCount)
	assert.InDelta(t, 0.25, low.Confidence, 1e-9)
	assert.InDelta(t, 2.0, low.AvgROI, 1e-9)
	assert.Equal(t, 25, low.SampleSize)
	assert.True(t, low.Consistent)
	assert.Len(t, low.ExampleAddresses, 5)

	full := got[2]
	assert.Equal(t, 13, full.SampleSize)
	assert.InDelta(t, 0.26, full.Confidence, 1e-9)
	assert.Equal(t, 1.0, full.AvgROI)
	assert.Equal(t, 2, full.SquareCount)
	assert.Equal(t, domain.TierVeryLow, full.TargetTier)

	best, ok := eng.BestStrategy()
	require.True(t, ok)
	assert.Equal(t, domain.StrategyLowSquare, best.Kind)
}

func TestAnalyze_Idempotent(t *testing.T) {
	eng, tr := newEngine(Options{AnalyzeEvery: 1_000})
	for i := 0; i < 30; i++ {
		eng.RecordWin(lowSquareWin(i, true))
	}
	p := tr.Touch("whale", 1)
	p.RoundsPlayed, p.Wins = 30, 8
	p.TotalDeployed, p.TotalWon, p.OREEarned = domain.LamportsPerSOL, 2*domain.LamportsPerSOL, 2

	first := eng.AnalyzeAndDetectStrategies()
	second := eng.AnalyzeAndDetectStrategies()
	assert.Equal(t, first, second)
	assert.Equal(t, first, eng.Strategies())
}

func TestAnalyze_BelowThresholdEmitsNothing(t *testing.T) {
	eng, _ := newEngine(Options{AnalyzeEvery: 1_000})
	for i := 0; i < 9; i++ {
		eng.RecordWin(lowSquareWin(i, true))
	}
	assert.Empty(t, eng.AnalyzeAndDetectStrategies())
	_, ok := eng.BestStrategy()
	assert.False(t, ok)
}

func TestRecordWin_TriggersAnalysis(t *testing.T) {
	eng, tr := newEngine(Options{AnalyzeEvery: 5})
	for i := 0; i < 5; i++ {
		w := lowSquareWin(i, false)
		w.NumSquares = 4
		w.RoundTotal = 20 * domain.LamportsPerSOL
		w.IsMotherlode = true
		eng.RecordWin(w)
	}

	strategies := eng.Strategies()
	require.Len(t, strategies, 1)
	ml := strategies[0]
	assert.Equal(t, domain.StrategyMotherlode, ml.Kind)
	assert.Equal(t, 4, ml.SquareCount)
	assert.InDelta(t, 0.25, ml.Confidence, 1e-9)
	assert.InDelta(t, 0.01, ml.StakeSizeSOL, 1e-12)
	assert.Equal(t, domain.TierHigh, ml.TargetTier)
	assert.False(t, ml.Consistent)
	assert.NotEmpty(t, eng.AnalysisID())

	p, _ := tr.Profile(ml.ExampleAddresses[0])
	assert.True(t, p.HitMotherlode)
	assert.Equal(t, uint64(1), p.MotherlodeWins)
}

func TestAnalyze_CopyTopPlayer(t *testing.T) {
	eng, tr := newEngine(Options{})

	whale := tr.Touch("whale", 1)
	whale.RoundsPlayed, whale.Wins = 40, 10
	whale.TotalDeployed, whale.TotalWon = 4*domain.LamportsPerSOL, 8*domain.LamportsPerSOL
	whale.OREEarned = 4
	whale.PreferredSquareCount = 3
	whale.PrefersLowCompetition = true
	whale.FavoriteSquares = sq(1, 2, 3)

	rookie := tr.Touch("rookie", 1)
	rookie.RoundsPlayed, rookie.Wins = 10, 5
	rookie.TotalDeployed, rookie.TotalWon = domain.LamportsPerSOL, 5*domain.LamportsPerSOL

	got := eng.AnalyzeAndDetectStrategies()
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, domain.StrategyCopyTopPlayer, c.Kind)
	assert.Equal(t, "Copy whale", c.Name)
	assert.Equal(t, 3, c.SquareCount)
	assert.Equal(t, domain.TierLow, c.TargetTier)
	assert.InDelta(t, 0.1, c.Confidence, 1e-9)
	assert.InDelta(t, 1.0, c.AvgROI, 1e-9)
	assert.InDelta(t, 0.1, c.StakeSizeSOL, 1e-12)
	assert.True(t, c.Consistent)
	assert.Equal(t, sq(1, 2, 3), c.PreferredSquares)
}

func TestPlayerRankings(t *testing.T) {
	eng, tr := newEngine(Options{})
	set := func(addr string, rounds, wins uint64, deployed, won uint64) {
		p := tr.Touch(addr, 1)
		p.RoundsPlayed, p.Wins, p.TotalDeployed, p.TotalWon = rounds, wins, deployed, won
	}
	set("steady", 20, 10, 100, 200) // roi 1, wr .5, wins 10 -> .5
	set("lucky", 15, 3, 100, 400)   // roi 3, wr .2, wins .3 -> .18
	set("new", 12, 6, 100, 300)     // too few rounds to copy
	set("idle", 5, 0, 100, 0)

	copyable := eng.PlayersToCopy(0)
	require.Len(t, copyable, 2)
	assert.Equal(t, "steady", copyable[0].Address)
	assert.InDelta(t, 0.5, copyable[0].Score, 1e-9)
	assert.Equal(t, "lucky", copyable[1].Address)
	assert.InDelta(t, 0.18, copyable[1].Score, 1e-9)

	top := eng.TopPerformers(2)
	require.Len(t, top, 2)
	assert.Equal(t, "new", top[0].Address) // roi 2 * wr .5
	assert.Equal(t, "lucky", top[1].Address)

	summary := eng.Summary()
	require.Len(t, summary.TopPerformers, 3) // idle has too few rounds
	assert.Equal(t, "new", summary.TopPerformers[0].Address)
	require.Len(t, summary.TopPlayers, 2)
}

func TestHistoryCap(t *testing.T) {
	eng, _ := newEngine(Options{MaxWinHistory: 3, AnalyzeEvery: 1_000})
	for i := 0; i < 5; i++ {
		eng.RecordWin(lowSquareWin(i, false))
	}
	h := eng.History()
	require.Len(t, h, 3)
	assert.Equal(t, uint64(3), h[0].RoundID)
	assert.Equal(t, uint64(5), eng.TotalWins())
}

func TestStateRestore(t *testing.T) {
	eng, tr := newEngine(Options{AnalyzeEvery: 1_000})
	for i := 0; i < 25; i++ {
		eng.RecordWin(lowSquareWin(i, true))
	}
	eng.AnalyzeAndDetectStrategies()

	restored := New(tr, Options{Logger: quiet()})
	require.NoError(t, restored.Restore(eng.State()))
	assert.Equal(t, eng.Strategies(), restored.Strategies())
	assert.Equal(t, eng.CountStats(), restored.CountStats())
	assert.Equal(t, eng.History(), restored.History())
	assert.Equal(t, eng.AnalyzeAndDetectStrategies(), restored.AnalyzeAndDetectStrategies())

	bad := eng.State()
	bad.TotalWins = 1
	assert.Error(t, restored.Restore(bad))
}

func TestSummaryFieldNames(t *testing.T) {
	eng, _ := newEngine(Options{AnalyzeEvery: 1_000})
	for i := 0; i < 20; i++ {
		eng.RecordWin(lowSquareWin(i, true))
	}
	eng.AnalyzeAndDetectStrategies()

	s := eng.Summary()
	assert.Equal(t, uint64(20), s.TotalWinsTracked)
	assert.Equal(t, uint64(20), s.FullOREWins)
	assert.Equal(t, len(s.Strategies), s.StrategiesDetected)
	require.NotNil(t, s.BestStrategy)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, k := range []string{
		"total_wins_tracked", "total_players_tracked", "strategies_detected",
		"best_strategy", "top_players", "strategies", "total_deployed_sol",
		"tracked_squares", "gap_events", "top_performers",
	} {
		assert.Contains(t, fields, k)
	}
}

package consensus

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ore-strategy-lab/internal/domain"
)

func newEngine(opts Options) *Engine {
	opts.Logger = log.New(&bytes.Buffer{}, "", 0)
	return New(opts)
}

func sq(idx ...int) []domain.SquareIndex {
	out := make([]domain.SquareIndex, len(idx))
	for i, v := range idx {
		out[i] = domain.MustSquare(v)
	}
	return out
}

func rounds(winners ...int) []Round {
	out := make([]Round, len(winners))
	for i, w := range winners {
		out[i] = Round{RoundID: uint64(i + 1), WinningSquare: domain.SquareIndex(w)}
		for s := range out[i].Deployed {
			out[i].Deployed[s] = 1_000
		}
		out[i].TotalPot = 25_000
	}
	return out
}

func repeat(square, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = square
	}
	return out
}

func find(t *testing.T, recs []Recommendation, k Kind) Recommendation {
	t.Helper()
	for _, r := range recs {
		if r.Kind == k {
			return r
		}
	}
	t.Fatalf("no recommendation for %s", k)
	return Recommendation{}
}

func TestRecommendations_EmptyEngine(t *testing.T) {
	e := newEngine(Options{})
	recs := e.Recommendations([domain.BoardSize]uint64{})
	require.Len(t, recs, len(Kinds))

	for i := 1; i < len(recs); i++ {
		assert.GreaterOrEqual(t, recs[i-1].Confidence, recs[i].Confidence)
	}
	assert.Equal(t, LowCompetition, recs[0].Kind)
	assert.Len(t, recs[0].Squares, domain.BoardSize)
	assert.Equal(t, sq(0, 6, 12, 18, 24), find(t, recs, ContrarianValue).Squares)
	assert.Equal(t, sq(12), find(t, recs, Quadrant).Squares)
	assert.Empty(t, find(t, recs, Momentum).Squares)
	assert.Empty(t, find(t, recs, Kelly).Squares)
	assert.Empty(t, find(t, recs, WhaleFollowing).Squares)
}

func TestConsensus_EmptyBoard(t *testing.T) {
	e := newEngine(Options{})
	res := e.Consensus([domain.BoardSize]uint64{}, DefaultSquares)

	// 12 gets diagonal + quadrant + uniform; the rest of the diagonal next.
	assert.Equal(t, sq(12, 0, 6, 18, 24), res.Squares)
	assert.InDelta(t, 0.12, res.Confidence, 1e-9)
	total := 0.0
	for _, w := range res.Weights {
		total += w
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestConsensus_ClampsN(t *testing.T) {
	e := newEngine(Options{})
	assert.Equal(t, 1, e.Consensus([domain.BoardSize]uint64{}, 0).N)
	res := e.Consensus([domain.BoardSize]uint64{}, 40)
	assert.Equal(t, domain.BoardSize, res.N)
	assert.Len(t, res.Squares, domain.BoardSize)
	assert.LessOrEqual(t, res.Confidence, 0.85)
}

func TestMomentumAndStreaks(t *testing.T) {
	e := newEngine(Options{})
	e.LoadHistory(rounds(repeat(3, 20)...))

	stats := e.Stats()
	assert.Equal(t, 20, stats[3].Streak)
	assert.Equal(t, -20, stats[0].Streak)
	assert.Equal(t, 20, stats[3].RecentWins)
	assert.InDelta(t, 1-domain.UniformWinRate, stats[3].Edge, 1e-9)

	recs := e.Recommendations([domain.BoardSize]uint64{})
	m := find(t, recs, Momentum)
	assert.Equal(t, sq(3), m.Squares)
	assert.Equal(t, []float64{1}, m.Weights)
	assert.Equal(t, 0.7, m.Confidence)

	s := find(t, recs, StreakReversal)
	assert.Equal(t, sq(0, 1, 2, 4, 5), s.Squares)
	assert.InDelta(t, 0.2, s.Weights[0], 1e-9)
}

func TestKelly(t *testing.T) {
	e := newEngine(Options{})
	e.LoadHistory(rounds(repeat(3, 40)...))

	var current [domain.BoardSize]uint64
	assert.Empty(t, find(t, e.Recommendations(current), Kelly).Squares)

	for i := range current {
		current[i] = 1
	}
	k := find(t, e.Recommendations(current), Kelly)
	assert.Equal(t, sq(3), k.Squares)
	assert.InDelta(t, 0.5, k.Weights[0], 1e-9)
	assert.Equal(t, 0.65, k.Confidence)
}

func TestPatternDetection(t *testing.T) {
	e := newEngine(Options{})
	e.LoadHistory(rounds(repeat(9, 24)...))
	assert.Empty(t, find(t, e.Recommendations([domain.BoardSize]uint64{}), PatternDetection).Squares)

	e.AddRound(Round{RoundID: 25, WinningSquare: 0})
	p := find(t, e.Recommendations([domain.BoardSize]uint64{}), PatternDetection)
	assert.Equal(t, sq(1, 5, 6), p.Squares)
	assert.InDelta(t, 1.0/3, p.Weights[0], 1e-9)
}

func TestQuadrant(t *testing.T) {
	e := newEngine(Options{})
	e.LoadHistory(rounds(repeat(24, 30)...))
	q := find(t, e.Recommendations([domain.BoardSize]uint64{}), Quadrant)
	assert.Equal(t, sq(0, 4, 20, 24), q.Squares)
	assert.Equal(t, 0.45, q.Confidence)

	e.LoadHistory(rounds(repeat(12, 30)...))
	q = find(t, e.Recommendations([domain.BoardSize]uint64{}), Quadrant)
	assert.Len(t, q.Squares, 9)
}

func TestMeanReversion(t *testing.T) {
	var winners []int
	for i := 0; i < 100; i++ {
		winners = append(winners, i%5)
	}
	e := newEngine(Options{})
	e.LoadHistory(rounds(winners...))
	m := find(t, e.Recommendations([domain.BoardSize]uint64{}), MeanReversion)
	assert.Equal(t, sq(5, 6, 7, 8, 9), m.Squares)
	assert.Equal(t, 0.4, m.Confidence)
}

func TestLowCompetition(t *testing.T) {
	e := newEngine(Options{})
	var current [domain.BoardSize]uint64
	for i := range current {
		current[i] = 100
	}
	current[0] = 1_000
	current[7] = 1
	current[8] = 0

	l := find(t, e.Recommendations(current), LowCompetition)
	assert.Equal(t, sq(8, 7), l.Squares)
	assert.Equal(t, []float64{0.2, 0.2}, l.Weights)
}

func TestWhaleFollowing(t *testing.T) {
	e := newEngine(Options{})
	e.SetWhales(map[string][]domain.SquareIndex{
		"whale-a": sq(1, 2),
		"whale-b": sq(2, 3),
	})
	assert.Equal(t, 2, e.WhaleCount())

	w := find(t, e.Recommendations([domain.BoardSize]uint64{}), WhaleFollowing)
	assert.Equal(t, sq(2, 1, 3), w.Squares)
	assert.Equal(t, []float64{0.5, 0.25, 0.25}, w.Weights)
}

func TestAddRound_IgnoresInvalidAndCaps(t *testing.T) {
	e := newEngine(Options{MaxHistory: 3})
	e.AddRound(Round{RoundID: 1, WinningSquare: 25})
	assert.Empty(t, e.History())

	for i := 0; i < 5; i++ {
		e.AddRound(Round{RoundID: uint64(i + 1), WinningSquare: 1})
	}
	h := e.History()
	require.Len(t, h, 3)
	assert.Equal(t, uint64(3), h[0].RoundID)
	assert.Equal(t, uint64(3), e.Stats()[1].TotalRounds)
}

func TestRecordHits(t *testing.T) {
	e := newEngine(Options{})
	recs := []Recommendation{
		{Kind: Momentum, Squares: sq(1, 2)},
		{Kind: Quadrant, Squares: sq(12)},
		{Kind: Kelly},
	}
	e.RecordHits(recs, 2)
	e.RecordHits(recs, 12)

	perf := e.Performance()
	require.Len(t, perf, 2)
	assert.Equal(t, Momentum, perf[0].Kind)
	assert.Equal(t, uint64(2), perf[0].Plays)
	assert.InDelta(t, 0.5, perf[0].HitRate, 1e-9)
	assert.Equal(t, Quadrant, perf[1].Kind)
	assert.Equal(t, uint64(1), perf[1].Hits)
}

func TestRoundFromOutcome(t *testing.T) {
	o := domain.RoundOutcome{RoundID: 9, WinningSquare: 4, TotalDeployed: 50, IsJackpot: true}
	o.Competitors[4] = 50
	r := RoundFromOutcome(o)
	assert.Equal(t, uint64(9), r.RoundID)
	assert.Equal(t, uint64(50), r.Deployed[4])
	assert.True(t, r.Motherlode)
}

package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ore-strategy-lab/internal/domain"
)

func squares(idx ...int) []domain.SquareIndex {
	out := make([]domain.SquareIndex, len(idx))
	for i, v := range idx {
		out[i] = domain.MustSquare(v)
	}
	return out
}

func TestResolve_SingleParticipantTakesSquare(t *testing.T) {
	var per [domain.BoardSize]uint64
	per[3] = 10
	per[7] = 10
	deploys := []domain.KnownDeploy{{Address: "solo", Amount: 10, Squares: squares(3, 7)}}

	out := New(Options{}).Resolve(1, domain.MustSquare(7), per, deploys, false)

	require.Len(t, out.ResolvedWinners, 1)
	w := out.ResolvedWinners[0]
	assert.Equal(t, "solo", w.Address)
	assert.InDelta(t, 1.0, w.SharePct, 1e-12)
	assert.Equal(t, uint64(10), w.AmountWon)
	assert.Equal(t, out.CompetitionOnWinner(), w.AmountWon)
	assert.Equal(t, uint64(20), out.TotalDeployed)
	assert.Equal(t, domain.OutcomeFullWin, out.Class)
}

func TestResolve_ZeroCompetitionPolicy(t *testing.T) {
	var per [domain.BoardSize]uint64 // ledger missed the deploy
	deploys := []domain.KnownDeploy{{Address: "late", Amount: 33, Squares: squares(4)}}

	out := New(Options{}).Resolve(2, domain.MustSquare(4), per, deploys, false)

	require.Len(t, out.ResolvedWinners, 1)
	assert.Equal(t, 1.0, out.ResolvedWinners[0].SharePct)
	assert.Equal(t, uint64(33), out.ResolvedWinners[0].AmountWon)
}

func TestResolve_SplitAcrossWinners(t *testing.T) {
	var per [domain.BoardSize]uint64
	per[12] = 4 * domain.LamportsPerSOL
	per[0] = 1 * domain.LamportsPerSOL
	deploys := []domain.KnownDeploy{
		{Address: "a", Amount: 3 * domain.LamportsPerSOL, Squares: squares(12)},
		{Address: "b", Amount: 1 * domain.LamportsPerSOL, Squares: squares(0, 12)},
		{Address: "c", Amount: 1 * domain.LamportsPerSOL, Squares: squares(0)},
	}

	out := New(Options{}).Resolve(3, domain.MustSquare(12), per, deploys, false)

	require.Len(t, out.ResolvedWinners, 2)
	assert.InDelta(t, 0.75, out.ResolvedWinners[0].SharePct, 1e-12)
	assert.InDelta(t, 0.25, out.ResolvedWinners[1].SharePct, 1e-12)
	assert.Equal(t, domain.OutcomeSplit, out.Class)
}

func TestResolve_Classes(t *testing.T) {
	var big [domain.BoardSize]uint64
	big[1] = 10 * domain.LamportsPerSOL
	two := []domain.KnownDeploy{
		{Address: "a", Amount: 1, Squares: squares(1)},
		{Address: "b", Amount: 1, Squares: squares(1)},
	}

	r := New(Options{})
	assert.Equal(t, domain.OutcomeJackpot, r.Resolve(1, 1, big, two, true).Class)
	assert.Equal(t, domain.OutcomeSplit, r.Resolve(1, 1, big, two, false).Class)

	var small [domain.BoardSize]uint64
	small[1] = domain.LamportsPerSOL
	assert.Equal(t, domain.OutcomeFullWin, r.Resolve(1, 1, small, two, false).Class)

	custom := New(Options{FullWinThresholdLamports: 20 * domain.LamportsPerSOL})
	assert.Equal(t, domain.OutcomeFullWin, custom.Resolve(1, 1, big, two, false).Class)
}

func TestResolve_NoKnownWinners(t *testing.T) {
	var per [domain.BoardSize]uint64
	per[5] = 5 * domain.LamportsPerSOL
	out := New(Options{}).Resolve(9, domain.MustSquare(5), per, nil, false)
	assert.Empty(t, out.ResolvedWinners)
	assert.Equal(t, domain.OutcomeSplit, out.Class)
	assert.True(t, out.Competitors == per)
}

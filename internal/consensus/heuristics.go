package consensus

import (
	"fmt"
	"math"
	"sort"

	"ore-strategy-lab/internal/domain"
)

var (
	diagonal = []domain.SquareIndex{0, 6, 12, 18, 24}
	corners  = []domain.SquareIndex{0, 4, 20, 24}
	center   = []domain.SquareIndex{6, 7, 8, 11, 12, 13, 16, 17, 18}
)

func (e *Engine) run(k Kind, current [domain.BoardSize]uint64) Recommendation {
	var r Recommendation
	switch k {
	case Momentum:
		r = e.momentum()
	case ContrarianValue:
		r = e.contrarianValue(current)
	case EdgeHunting:
		r = e.edgeHunting()
	case StreakReversal:
		r = e.streakReversal()
	case LowCompetition:
		r = e.lowCompetition(current)
	case WhaleFollowing:
		r = e.whaleFollowing()
	case PatternDetection:
		r = e.patternDetection()
	case Kelly:
		r = e.kelly(current)
	case Quadrant:
		r = e.quadrant()
	case MeanReversion:
		r = e.meanReversion()
	}
	r.Kind = k
	return r
}

func sum(v []uint64) uint64 {
	var t uint64
	for _, x := range v {
		t += x
	}
	return t
}

func evenWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

func nothing(reason string) Recommendation {
	return Recommendation{Reasoning: reason}
}

// split turns ranked squares into squares and weights normalised by total.
func split(ranked []scoredSquare, total float64) ([]domain.SquareIndex, []float64) {
	squares := make([]domain.SquareIndex, len(ranked))
	weights := make([]float64, len(ranked))
	for i, r := range ranked {
		squares[i] = r.square
		weights[i] = r.score / total
	}
	return squares, weights
}

func top(ranked []scoredSquare, n int) []scoredSquare {
	if len(ranked) > n {
		return ranked[:n]
	}
	return ranked
}

// momentum bets on squares that have won recently, favouring live streaks.
func (e *Engine) momentum() Recommendation {
	var scores [domain.BoardSize]float64
	for i, s := range e.stats {
		scores[i] = float64(s.RecentWins)
		if s.Streak > 0 {
			scores[i] += 0.5 * float64(s.Streak)
		}
	}
	ranked := top(rankSquares(scores[:], func(v float64) bool { return v > 0 }), 3)
	total := 0.0
	for _, r := range ranked {
		total += r.score
	}
	if total == 0 {
		return nothing("no recent winners")
	}

	conf := 0.3
	switch {
	case total > 15:
		conf = 0.7
	case total > 10:
		conf = 0.5
	}
	squares, weights := split(ranked, total)
	return Recommendation{
		Squares:     squares,
		Weights:     weights,
		Confidence:  conf,
		ExpectedROI: 0.15,
		Reasoning:   "recently hot squares",
	}
}

// contrarianValue prefers squares with historical edge that are
// under-deployed in the current round.
func (e *Engine) contrarianValue(current [domain.BoardSize]uint64) Recommendation {
	total := sum(current[:])
	if total == 0 {
		return Recommendation{
			Squares:    append([]domain.SquareIndex(nil), diagonal...),
			Weights:    evenWeights(len(diagonal)),
			Confidence: 0.3,
			Reasoning:  "no deployment yet, diagonal spread",
		}
	}

	var scores [domain.BoardSize]float64
	for i, s := range e.stats {
		share := float64(current[i]) / float64(total)
		scores[i] = s.Edge*10 + (domain.UniformWinRate-share)*5
	}
	ranked := top(rankSquares(scores[:], func(float64) bool { return true }), 5)

	norm := 0.0
	for _, r := range ranked {
		norm += math.Max(r.score, 0.1)
	}
	var squares []domain.SquareIndex
	var weights []float64
	for _, r := range ranked {
		if r.score <= 0 {
			continue
		}
		squares = append(squares, r.square)
		weights = append(weights, math.Max(r.score, 0.1)/norm)
	}
	if len(squares) == 0 {
		return nothing("no under-deployed square with edge")
	}
	return Recommendation{
		Squares:     squares,
		Weights:     weights,
		Confidence:  0.6,
		ExpectedROI: 0.25,
		Reasoning:   "edge plus low current share",
	}
}

// edgeHunting picks squares whose win rate beats 1/25 with enough data.
func (e *Engine) edgeHunting() Recommendation {
	var scores [domain.BoardSize]float64
	for i, s := range e.stats {
		if s.Edge > 0.005 && s.TotalRounds > 50 {
			scores[i] = s.Edge
		}
	}
	ranked := rankSquares(scores[:], func(v float64) bool { return v > 0 })
	if len(ranked) == 0 {
		return nothing("no statistically meaningful edge")
	}
	total := 0.0
	for _, r := range ranked {
		total += r.score
	}
	squares, weights := split(ranked, total)
	return Recommendation{
		Squares:     squares,
		Weights:     weights,
		Confidence:  math.Min(total*10, 0.8),
		ExpectedROI: total,
		Reasoning:   fmt.Sprintf("%d squares above the uniform rate", len(squares)),
	}
}

// streakReversal bets on squares in long losing streaks.
func (e *Engine) streakReversal() Recommendation {
	var scores [domain.BoardSize]float64
	for i, s := range e.stats {
		if s.Streak < -5 {
			scores[i] = float64(-s.Streak)
		}
	}
	ranked := top(rankSquares(scores[:], func(v float64) bool { return v > 0 }), 5)
	if len(ranked) == 0 {
		return nothing("no long losing streaks")
	}
	total := 0.0
	for _, r := range ranked {
		total += r.score
	}
	squares, weights := split(ranked, total)
	return Recommendation{
		Squares:     squares,
		Weights:     weights,
		Confidence:  0.35,
		ExpectedROI: 0.1,
		Reasoning:   "long losing streaks",
	}
}

// lowCompetition targets the least deployed squares of the current round.
func (e *Engine) lowCompetition(current [domain.BoardSize]uint64) Recommendation {
	total := sum(current[:])
	if total == 0 {
		all := make([]domain.SquareIndex, domain.BoardSize)
		for i := range all {
			all[i] = domain.SquareIndex(i)
		}
		return Recommendation{
			Squares:    all,
			Weights:    evenWeights(domain.BoardSize),
			Confidence: 0.5,
			Reasoning:  "empty board",
		}
	}

	type low struct {
		square domain.SquareIndex
		amount uint64
	}
	var lows []low
	for i, amt := range current {
		if float64(amt)/float64(total) < 0.02 {
			lows = append(lows, low{domain.SquareIndex(i), amt})
		}
	}
	sort.SliceStable(lows, func(i, j int) bool { return lows[i].amount < lows[j].amount })
	if len(lows) > 5 {
		lows = lows[:5]
	}
	if len(lows) == 0 {
		return nothing("no square under 2% of the round")
	}
	r := Recommendation{Confidence: 0.55, ExpectedROI: 0.5, Reasoning: "squares under 2% of the round"}
	for _, l := range lows {
		r.Squares = append(r.Squares, l.square)
		r.Weights = append(r.Weights, 0.2)
	}
	return r
}

// whaleFollowing copies the squares most favoured by tracked whales.
func (e *Engine) whaleFollowing() Recommendation {
	if len(e.whales) == 0 {
		return nothing("no whales tracked")
	}
	var counts [domain.BoardSize]float64
	for _, squares := range e.whales {
		for _, s := range squares {
			if s.Valid() {
				counts[s]++
			}
		}
	}
	ranked := top(rankSquares(counts[:], func(v float64) bool { return v > 0 }), 5)
	if len(ranked) == 0 {
		return nothing("whales have no positions")
	}
	total := 0.0
	for _, r := range ranked {
		total += r.score
	}
	squares, weights := split(ranked, total)
	return Recommendation{
		Squares:     squares,
		Weights:     weights,
		Confidence:  0.5,
		ExpectedROI: 0.15,
		Reasoning:   fmt.Sprintf("positions of %d whales", len(e.whales)),
	}
}

// patternDetection bets on the neighbours of the last winner.
func (e *Engine) patternDetection() Recommendation {
	if len(e.history) < domain.BoardSize {
		return nothing("insufficient history")
	}
	last := e.history[len(e.history)-1].WinningSquare
	var squares []domain.SquareIndex
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			r, c := last.Row()+dr, last.Col()+dc
			if r >= 0 && r < domain.BoardWidth && c >= 0 && c < domain.BoardWidth {
				squares = append(squares, domain.SquareIndex(r*domain.BoardWidth+c))
			}
		}
	}
	return Recommendation{
		Squares:     squares,
		Weights:     evenWeights(len(squares)),
		Confidence:  0.4,
		ExpectedROI: 0.1,
		Reasoning:   fmt.Sprintf("neighbours of last winner %d", last),
	}
}

// kelly sizes squares by the Kelly fraction of their odds in the current round.
func (e *Engine) kelly(current [domain.BoardSize]uint64) Recommendation {
	total := sum(current[:])
	if total == 0 {
		return nothing("no deployment to price odds")
	}
	var scores [domain.BoardSize]float64
	for i, s := range e.stats {
		if s.TotalRounds < 30 {
			continue
		}
		share := float64(current[i]) / float64(total)
		if share < 0.001 {
			continue
		}
		b := 1/share - 1
		if b <= 0 {
			continue
		}
		p := s.WinRate
		if f := (b*p - (1 - p)) / b; f > 0 {
			scores[i] = f
		}
	}
	ranked := rankSquares(scores[:], func(v float64) bool { return v > 0 })
	if len(ranked) == 0 {
		return nothing("no positive Kelly fraction")
	}
	totalF := 0.0
	for _, r := range ranked {
		totalF += r.score
	}
	ranked = top(ranked, 5)
	r := Recommendation{Confidence: 0.65, ExpectedROI: totalF * 0.5, Reasoning: "half Kelly on positive edges"}
	for _, sq := range ranked {
		r.Squares = append(r.Squares, sq.square)
		r.Weights = append(r.Weights, sq.score*0.5/totalF)
	}
	return r
}

// quadrant compares corner and center win rates with their uniform expectation.
func (e *Engine) quadrant() Recommendation {
	rounds := uint64(len(e.history))
	if rounds == 0 {
		return Recommendation{
			Squares:    []domain.SquareIndex{12},
			Weights:    []float64{1},
			Confidence: 0.2,
			Reasoning:  "no data, center",
		}
	}
	rate := func(set []domain.SquareIndex) float64 {
		var wins uint64
		for _, s := range set {
			wins += e.stats[s].Wins
		}
		return float64(wins) / float64(rounds)
	}
	cornerEdge := rate(corners) - float64(len(corners))/domain.BoardSize
	centerEdge := rate(center) - float64(len(center))/domain.BoardSize

	squares := []domain.SquareIndex{12}
	reason := "no quadrant edge, center"
	switch {
	case cornerEdge > centerEdge && cornerEdge > 0.02:
		squares = append([]domain.SquareIndex(nil), corners...)
		reason = fmt.Sprintf("corners ahead by %.1f%%", cornerEdge*100)
	case centerEdge > 0.02:
		squares = append([]domain.SquareIndex(nil), center...)
		reason = fmt.Sprintf("center ahead by %.1f%%", centerEdge*100)
	}
	return Recommendation{
		Squares:     squares,
		Weights:     evenWeights(len(squares)),
		Confidence:  0.45,
		ExpectedROI: 0.1,
		Reasoning:   reason,
	}
}

// meanReversion bets on squares well below their expected win count.
func (e *Engine) meanReversion() Recommendation {
	if len(e.history) < 100 {
		return nothing("insufficient history")
	}
	expected := float64(len(e.history)) / domain.BoardSize
	var scores [domain.BoardSize]float64
	for i, s := range e.stats {
		if d := expected - float64(s.Wins); d > 2 {
			scores[i] = d
		}
	}
	ranked := top(rankSquares(scores[:], func(v float64) bool { return v > 0 }), 5)
	if len(ranked) == 0 {
		return nothing("all squares near expectation")
	}
	total := 0.0
	for _, r := range ranked {
		total += r.score
	}
	squares, weights := split(ranked, total)
	return Recommendation{
		Squares:     squares,
		Weights:     weights,
		Confidence:  0.4,
		ExpectedROI: 0.15,
		Reasoning:   "below expected wins",
	}
}

// Package consensus scores board squares with a fixed family of heuristics
// over resolved round history and merges their picks into one consensus.
package consensus

import (
	"log"
	"sort"

	"ore-strategy-lab/internal/domain"
)

// Defaults.
const (
	DefaultMaxHistory   = 2000
	DefaultRecentWindow = 100
	DefaultStreakCap    = 20
	DefaultSquares      = 5
)

// Round is one resolved round as seen by the heuristics.
type Round struct {
	RoundID       uint64                   `json:"round_id"`
	WinningSquare domain.SquareIndex       `json:"winning_square"`
	Deployed      [domain.BoardSize]uint64 `json:"deployed"`
	TotalPot      uint64                   `json:"total_pot"`
	Motherlode    bool                     `json:"motherlode"`
}

// RoundFromOutcome converts a resolved outcome.
func RoundFromOutcome(o domain.RoundOutcome) Round {
	return Round{
		RoundID:       o.RoundID,
		WinningSquare: o.WinningSquare,
		Deployed:      o.Competitors,
		TotalPot:      o.TotalDeployed,
		Motherlode:    o.IsJackpot,
	}
}

// SquareStats are recomputed from history after every round.
type SquareStats struct {
	Wins           uint64  `json:"wins"`
	TotalRounds    uint64  `json:"total_rounds"`
	AvgCompetition float64 `json:"avg_competition"` // lamports
	WinRate        float64 `json:"win_rate"`
	Edge           float64 `json:"edge"` // win rate minus 1/25
	ROI            float64 `json:"roi"`
	RecentWins     int     `json:"recent_wins"`
	Streak         int     `json:"streak"` // positive = consecutive wins

	deployedWhenWon uint64
	potWhenWon      uint64
}

// Recommendation is one heuristic's pick.
type Recommendation struct {
	Kind        Kind                 `json:"kind"`
	Squares     []domain.SquareIndex `json:"squares"`
	Weights     []float64            `json:"weights"` // aligned with Squares
	Confidence  float64              `json:"confidence"`
	ExpectedROI float64              `json:"expected_roi"`
	Reasoning   string               `json:"reasoning"`
}

// Result is the merged consensus over all heuristics.
type Result struct {
	N          int                  `json:"n"`
	Squares    []domain.SquareIndex `json:"squares"`
	Weights    []float64            `json:"weights"`
	Confidence float64              `json:"confidence"`
}

// Performance counts how often a heuristic's squares contained the winner.
type Performance struct {
	Kind    Kind    `json:"kind"`
	Plays   uint64  `json:"plays"`
	Hits    uint64  `json:"hits"`
	HitRate float64 `json:"hit_rate"`
}

// Options configures an Engine.
type Options struct {
	MaxHistory   int
	RecentWindow int
	StreakCap    int
	Logger       *log.Logger
}

func (o *Options) withDefaults() {
	if o.MaxHistory <= 0 {
		o.MaxHistory = DefaultMaxHistory
	}
	if o.RecentWindow <= 0 {
		o.RecentWindow = DefaultRecentWindow
	}
	if o.StreakCap <= 0 {
		o.StreakCap = DefaultStreakCap
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// Engine holds round history, whale positions and heuristic performance.
// It is not safe for concurrent use.
type Engine struct {
	opts   Options
	logger *log.Logger

	history []Round
	stats   [domain.BoardSize]SquareStats
	whales  map[string][]domain.SquareIndex
	perf    map[Kind]*Performance
}

// New creates an empty Engine.
func New(opts Options) *Engine {
	opts.withDefaults()
	return &Engine{
		opts:   opts,
		logger: opts.Logger,
		whales: make(map[string][]domain.SquareIndex),
		perf:   make(map[Kind]*Performance),
	}
}

// AddRound appends a resolved round. Rounds with an invalid winning square
// are ignored.
func (e *Engine) AddRound(r Round) {
	if !r.WinningSquare.Valid() {
		e.logger.Printf("[consensus] ignoring round %d with winning square %d", r.RoundID, r.WinningSquare)
		return
	}
	e.history = append(e.history, r)
	if over := len(e.history) - e.opts.MaxHistory; over > 0 {
		e.history = append([]Round(nil), e.history[over:]...)
	}
	e.recompute()
}

// LoadHistory replaces the history, oldest first.
func (e *Engine) LoadHistory(rounds []Round) {
	e.history = e.history[:0]
	for _, r := range rounds {
		if r.WinningSquare.Valid() {
			e.history = append(e.history, r)
		}
	}
	if over := len(e.history) - e.opts.MaxHistory; over > 0 {
		e.history = append([]Round(nil), e.history[over:]...)
	}
	e.recompute()
}

// History returns a copy of the retained rounds.
func (e *Engine) History() []Round {
	return append([]Round(nil), e.history...)
}

// SetWhales replaces the tracked whale positions.
func (e *Engine) SetWhales(positions map[string][]domain.SquareIndex) {
	e.whales = make(map[string][]domain.SquareIndex, len(positions))
	for addr, squares := range positions {
		e.whales[addr] = append([]domain.SquareIndex(nil), squares...)
	}
}

// WhaleCount returns the number of tracked whales.
func (e *Engine) WhaleCount() int { return len(e.whales) }

// Stats returns the per-square statistics.
func (e *Engine) Stats() [domain.BoardSize]SquareStats { return e.stats }

func (e *Engine) recompute() {
	e.stats = [domain.BoardSize]SquareStats{}
	total := uint64(len(e.history))
	if total == 0 {
		return
	}

	for _, r := range e.history {
		w := &e.stats[r.WinningSquare]
		w.Wins++
		w.deployedWhenWon += r.Deployed[r.WinningSquare]
		w.potWhenWon += r.TotalPot
		for i, d := range r.Deployed {
			e.stats[i].AvgCompetition += float64(d)
		}
	}

	recentStart := len(e.history) - e.opts.RecentWindow
	if recentStart < 0 {
		recentStart = 0
	}
	for i := range e.stats {
		s := &e.stats[i]
		s.TotalRounds = total
		s.AvgCompetition /= float64(total)
		s.WinRate = float64(s.Wins) / float64(total)
		s.Edge = s.WinRate - domain.UniformWinRate
		if s.deployedWhenWon > 0 {
			s.ROI = (float64(s.potWhenWon) - float64(s.deployedWhenWon)) / float64(s.deployedWhenWon)
		}
		for _, r := range e.history[recentStart:] {
			if int(r.WinningSquare) == i {
				s.RecentWins++
			}
		}
		s.Streak = e.streak(domain.SquareIndex(i))
	}
}

// streak walks history backwards while the square keeps winning or losing.
func (e *Engine) streak(s domain.SquareIndex) int {
	streak := 0
	for i := len(e.history) - 1; i >= 0; i-- {
		won := e.history[i].WinningSquare == s
		switch {
		case won && streak >= 0:
			streak++
		case !won && streak <= 0:
			streak--
		default:
			return streak
		}
		if streak >= e.opts.StreakCap || -streak >= e.opts.StreakCap {
			return streak
		}
	}
	return streak
}

// Recommendations runs every heuristic against the current deployment and
// returns them by confidence, highest first.
func (e *Engine) Recommendations(current [domain.BoardSize]uint64) []Recommendation {
	recs := make([]Recommendation, 0, len(Kinds))
	for _, k := range Kinds {
		recs = append(recs, e.run(k, current))
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Confidence > recs[j].Confidence
	})
	return recs
}

// Consensus merges all heuristics into n squares. Each square scores the sum
// of weight × confidence across heuristics; confidence is min(total/n, 0.85).
func (e *Engine) Consensus(current [domain.BoardSize]uint64, n int) Result {
	if n < 1 {
		n = 1
	}
	if n > domain.BoardSize {
		n = domain.BoardSize
	}

	var scores [domain.BoardSize]float64
	for _, r := range e.Recommendations(current) {
		for i, s := range r.Squares {
			scores[s] += r.Weights[i] * r.Confidence
		}
	}

	ranked := rankSquares(scores[:], func(v float64) bool { return v > 0 })
	if len(ranked) > n {
		ranked = ranked[:n]
	}

	res := Result{N: n}
	total := 0.0
	for _, r := range ranked {
		total += r.score
	}
	for _, r := range ranked {
		res.Squares = append(res.Squares, r.square)
		res.Weights = append(res.Weights, r.score/total)
	}
	res.Confidence = total / float64(n)
	if res.Confidence > 0.85 {
		res.Confidence = 0.85
	}
	return res
}

// RecordHits scores recs against the winning square of the round they were made for.
func (e *Engine) RecordHits(recs []Recommendation, winning domain.SquareIndex) {
	for _, r := range recs {
		if len(r.Squares) == 0 {
			continue
		}
		p, ok := e.perf[r.Kind]
		if !ok {
			p = &Performance{Kind: r.Kind}
			e.perf[r.Kind] = p
		}
		p.Plays++
		for _, s := range r.Squares {
			if s == winning {
				p.Hits++
				break
			}
		}
		p.HitRate = float64(p.Hits) / float64(p.Plays)
	}
}

// Performance returns hit statistics for every heuristic that has played.
func (e *Engine) Performance() []Performance {
	out := make([]Performance, 0, len(e.perf))
	for _, k := range Kinds {
		if p, ok := e.perf[k]; ok {
			out = append(out, *p)
		}
	}
	return out
}

type scoredSquare struct {
	square domain.SquareIndex
	score  float64
}

// rankSquares orders squares by score descending, lower index first on ties.
func rankSquares(scores []float64, keep func(float64) bool) []scoredSquare {
	var out []scoredSquare
	for i, v := range scores {
		if keep(v) {
			out = append(out, scoredSquare{square: domain.SquareIndex(i), score: v})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

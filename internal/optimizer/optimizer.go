// Package optimizer turns learned square-count performance, the live round
// and the consensus hint into a per-round stake decision.
package optimizer

import (
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/google/uuid"

	"ore-strategy-lab/internal/domain"
)

// Defaults.
const (
	DefaultMinWalletSOL       = 0.05
	DefaultMaxBetPerRoundSOL  = 0.04
	DefaultCostPerSquareSOL   = 0.001
	DefaultMinSamples         = 5
	DefaultConsensusThreshold = 0.4
	DefaultHighTierConfidence = 0.6
)

// Sizing selects how the round budget is spread over squares.
type Sizing uint8

const (
	SizingEven Sizing = iota
	SizingKelly
)

func (s Sizing) String() string {
	switch s {
	case SizingEven:
		return "even"
	case SizingKelly:
		return "kelly"
	default:
		return fmt.Sprintf("Sizing(%d)", uint8(s))
	}
}

// ParseSizing accepts "even" or "kelly", case-insensitively. Empty means even.
func ParseSizing(s string) (Sizing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "even":
		return SizingEven, nil
	case "kelly":
		return SizingKelly, nil
	default:
		return 0, fmt.Errorf("unknown sizing %q", s)
	}
}

// Options configures an Optimizer.
type Options struct {
	MinWalletSOL       float64 // reserve never staked
	MaxBetPerRoundSOL  float64
	CostPerSquareSOL   float64 // cost term of the EV model
	MinSamples         int     // per-count samples before the learned model applies
	ConsensusThreshold float64 // consensus squares are used above this confidence
	HighTierConfidence float64 // High tier rounds need consensus above this
	Sizing             Sizing
	Logger             *log.Logger
}

func (o *Options) withDefaults() {
	if o.MinWalletSOL <= 0 {
		o.MinWalletSOL = DefaultMinWalletSOL
	}
	if o.MaxBetPerRoundSOL <= 0 {
		o.MaxBetPerRoundSOL = DefaultMaxBetPerRoundSOL
	}
	if o.CostPerSquareSOL <= 0 {
		o.CostPerSquareSOL = DefaultCostPerSquareSOL
	}
	if o.MinSamples <= 0 {
		o.MinSamples = DefaultMinSamples
	}
	if o.ConsensusThreshold <= 0 {
		o.ConsensusThreshold = DefaultConsensusThreshold
	}
	if o.HighTierConfidence <= 0 {
		o.HighTierConfidence = DefaultHighTierConfidence
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// RoundState is the live deployment of the round being decided.
type RoundState struct {
	RoundID  uint64
	Deployed [domain.BoardSize]uint64 // lamports per square
	// WinRates are learned per-square win rates for Kelly sizing.
	// All zero means no history; the uniform rate is used instead.
	WinRates [domain.BoardSize]float64
}

// Total returns the lamports deployed so far.
func (r RoundState) Total() uint64 {
	var t uint64
	for _, v := range r.Deployed {
		t += v
	}
	return t
}

// Tier classifies the round by its total.
func (r RoundState) Tier() domain.CompetitionTier {
	return domain.TierForSOL(domain.LamportsToSOL(r.Total()))
}

// EmptySquares lists squares with no deployment, ascending.
func (r RoundState) EmptySquares() []domain.SquareIndex {
	var out []domain.SquareIndex
	for i, v := range r.Deployed {
		if v == 0 {
			out = append(out, domain.SquareIndex(i))
		}
	}
	return out
}

func (r RoundState) winRate(s domain.SquareIndex) float64 {
	for _, w := range r.WinRates {
		if w != 0 {
			return r.WinRates[s]
		}
	}
	return domain.UniformWinRate
}

// ConsensusHint is the merged heuristic pick for the round.
type ConsensusHint struct {
	Squares    []domain.SquareIndex
	Confidence float64
}

// Optimizer is stateless apart from its options and safe for concurrent use.
type Optimizer struct {
	opts   Options
	logger *log.Logger
}

// New creates an Optimizer.
func New(opts Options) *Optimizer {
	opts.withDefaults()
	return &Optimizer{opts: opts, logger: opts.Logger}
}

// Options returns the effective options.
func (o *Optimizer) Options() Options { return o.opts }

// CountEV is the expected value of playing a given number of squares.
type CountEV struct {
	Count   int
	WinProb float64
	Reward  float64 // ORE
	EV      float64
	Learned bool
}

// EvaluateCount scores playing count squares.
//
// With MinSamples uses and at least one win, the learned win rate and
// average ORE reward apply. With MinSamples uses and no wins the win
// probability is halved against the uniform model. Otherwise the uniform
// model applies: count/25 to win, 1/sqrt(count) ORE when winning.
func (o *Optimizer) EvaluateCount(counts domain.CountStats, count int) CountEV {
	c := float64(count)
	ev := CountEV{Count: count, WinProb: c / domain.BoardSize, Reward: 1 / math.Sqrt(c)}
	s := counts[count]
	switch {
	case s.TimesUsed >= uint64(o.opts.MinSamples) && s.TimesWon > 0:
		ev.WinProb = s.WinRate
		ev.Reward = s.AvgOREEarned
		ev.Learned = true
	case s.TimesUsed >= uint64(o.opts.MinSamples):
		ev.WinProb = 0.5 * c / domain.BoardSize
		ev.Learned = true
	}
	ev.EV = ev.WinProb*ev.Reward - c*o.opts.CostPerSquareSOL
	return ev
}

// OptimalSquareCount returns the count in 1..25 with the highest EV, the
// lower count on ties. When no count has positive EV it returns the least
// sampled count and exploration=true.
func (o *Optimizer) OptimalSquareCount(counts domain.CountStats) (best CountEV, exploration bool) {
	for c := 1; c <= domain.BoardSize; c++ {
		ev := o.EvaluateCount(counts, c)
		if c == 1 || ev.EV > best.EV {
			best = ev
		}
	}
	if best.EV > 0 {
		return best, false
	}

	least := 1
	for c := 2; c <= domain.BoardSize; c++ {
		if counts[c].TimesUsed < counts[least].TimesUsed {
			least = c
		}
	}
	return o.EvaluateCount(counts, least), true
}

// EstimateRoundsRemaining returns how many rounds of perRound lamports the
// balance above the reserve can fund.
func (o *Optimizer) EstimateRoundsRemaining(balance, perRound uint64) uint64 {
	reserve := domain.SOLToLamports(o.opts.MinWalletSOL)
	if perRound == 0 || balance <= reserve {
		return 0
	}
	return (balance - reserve) / perRound
}

// Decide builds the recommendation for one round. It never fails; every
// reason not to stake is reported in SkipReason.
func (o *Optimizer) Decide(balance uint64, round RoundState, hint ConsensusHint, counts domain.CountStats) domain.Recommendation {
	rec := domain.Recommendation{
		DecisionID: uuid.NewString(),
		RoundID:    round.RoundID,
		Tier:       round.Tier(),
	}
	skip := func(format string, args ...any) domain.Recommendation {
		rec.ShouldStake = false
		rec.SkipReason = fmt.Sprintf(format, args...)
		return rec
	}

	reserve := domain.SOLToLamports(o.opts.MinWalletSOL)
	if balance < reserve {
		return skip("balance %.6f SOL below reserve %.6f SOL", domain.LamportsToSOL(balance), o.opts.MinWalletSOL)
	}
	budget := balance - reserve
	if limit := domain.SOLToLamports(o.opts.MaxBetPerRoundSOL); budget > limit {
		budget = limit
	}
	if budget == 0 {
		return skip("no balance above reserve")
	}

	switch rec.Tier {
	case domain.TierVeryHigh:
		return skip("competition tier %s", rec.Tier)
	case domain.TierHigh:
		if hint.Confidence <= o.opts.HighTierConfidence {
			return skip("competition tier %s needs consensus above %.2f, have %.2f",
				rec.Tier, o.opts.HighTierConfidence, hint.Confidence)
		}
	}

	best, exploring := o.OptimalSquareCount(counts)
	if exploring {
		o.logger.Printf("[optimizer] no positive EV, exploring %d squares", best.Count)
	}
	squares := o.selectSquares(best.Count, round, hint)

	var stakes []uint64
	switch o.opts.Sizing {
	case SizingKelly:
		squares, stakes = o.kellyStakes(squares, budget, round)
	default:
		stakes = evenStakes(len(squares), budget)
	}
	if len(squares) == 0 {
		return skip("no square has a positive Kelly fraction")
	}
	if stakes[0] == 0 {
		return skip("budget %d lamports too small for %d squares", budget, len(squares))
	}

	rec.ShouldStake = true
	rec.Squares = squares
	rec.PerSquareStake = stakes
	for _, s := range stakes {
		rec.TotalStake += s
	}
	rec.SquareCount = len(squares)
	rec.ExpectedValue = best.EV
	rec.Exploration = exploring
	rec.RoundsFunded = o.EstimateRoundsRemaining(balance, rec.TotalStake)

	expectedORE := float64(len(squares)) / domain.BoardSize * rec.Tier.OREMultiplier()
	model := "uniform"
	if best.Learned {
		model = "learned"
	}
	rec.Rationale = fmt.Sprintf("%d squares (%s model, EV %.4f) at %s competition, expected ORE %.3f, %s sizing, balance covers %d rounds",
		len(squares), model, best.EV, rec.Tier, expectedORE, o.opts.Sizing, rec.RoundsFunded)
	return rec
}

// spreadOrder walks the board in stride-5 columns: 0,5,10,15,20,1,6,...
var spreadOrder = func() []domain.SquareIndex {
	out := make([]domain.SquareIndex, 0, domain.BoardSize)
	for col := 0; col < domain.BoardWidth; col++ {
		for row := 0; row < domain.BoardWidth; row++ {
			out = append(out, domain.SquareIndex(row*domain.BoardWidth+col))
		}
	}
	return out
}()

// selectSquares fills count squares from, in order: the consensus (when
// confident enough), empty squares, then the fallback spread.
func (o *Optimizer) selectSquares(count int, round RoundState, hint ConsensusHint) []domain.SquareIndex {
	var taken [domain.BoardSize]bool
	out := make([]domain.SquareIndex, 0, count)
	add := func(candidates []domain.SquareIndex) {
		for _, s := range candidates {
			if len(out) == count {
				return
			}
			if !s.Valid() || taken[s] {
				continue
			}
			taken[s] = true
			out = append(out, s)
		}
	}
	if hint.Confidence > o.opts.ConsensusThreshold {
		add(hint.Squares)
	}
	add(round.EmptySquares())
	add(spreadOrder)
	return out
}

func evenStakes(n int, budget uint64) []uint64 {
	if n == 0 {
		return nil
	}
	per := budget / uint64(n)
	out := make([]uint64, n)
	for i := range out {
		out[i] = per
	}
	return out
}

// minKellyFraction absorbs rounding around a zero edge.
const minKellyFraction = 1e-9

// kellyStakes sizes each square at half Kelly. Odds are priced as if an even
// stake were added to the square, which keeps empty squares finite. Squares
// without a positive fraction are dropped and the total is scaled down to
// the budget if needed.
func (o *Optimizer) kellyStakes(squares []domain.SquareIndex, budget uint64, round RoundState) ([]domain.SquareIndex, []uint64) {
	if len(squares) == 0 {
		return nil, nil
	}
	even := float64(budget) / float64(len(squares))
	total := float64(round.Total()) + float64(budget)

	var kept []domain.SquareIndex
	var fractions []float64
	sumStake := 0.0
	for _, s := range squares {
		onSquare := float64(round.Deployed[s]) + even
		b := total/onSquare - 1
		if b <= 0 {
			continue
		}
		p := round.winRate(s)
		f := (b*p - (1 - p)) / b
		if f <= minKellyFraction {
			continue
		}
		kept = append(kept, s)
		fractions = append(fractions, f)
		sumStake += f * 0.5 * float64(budget)
	}
	if len(kept) == 0 {
		return nil, nil
	}

	scale := 1.0
	if sumStake > float64(budget) {
		scale = float64(budget) / sumStake
	}
	var out []domain.SquareIndex
	var stakes []uint64
	for i, f := range fractions {
		if stake := uint64(f * 0.5 * float64(budget) * scale); stake > 0 {
			out = append(out, kept[i])
			stakes = append(stakes, stake)
		}
	}
	return out, stakes
}

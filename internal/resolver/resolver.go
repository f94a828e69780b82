// Package resolver turns a completed round's deployment ledger and revealed
// winning square into a RoundOutcome.
package resolver

import (
	"ore-strategy-lab/internal/domain"
)

// DefaultFullWinThresholdLamports is the round total under which a win is
// classified FULL_WIN. It is a heuristic: the protocol does not flag
// single-winner rounds, but small pots rarely split.
const DefaultFullWinThresholdLamports = 2 * domain.LamportsPerSOL

// Options configures a Resolver.
type Options struct {
	FullWinThresholdLamports uint64
}

// Resolver computes round outcomes. It is stateless.
type Resolver struct {
	fullWinThreshold uint64
}

// New creates a resolver.
func New(opts Options) *Resolver {
	if opts.FullWinThresholdLamports == 0 {
		opts.FullWinThresholdLamports = DefaultFullWinThresholdLamports
	}
	return &Resolver{fullWinThreshold: opts.FullWinThresholdLamports}
}

// Resolve builds the outcome of a round. The jackpot flag comes from the
// decoded round result; it is never derived here.
//
// Each known deploy covering the winning square receives
// amount/competition of the square. With zero recorded competition the
// deploy takes the whole square (share 1.0, won = its own amount).
func (r *Resolver) Resolve(
	roundID uint64,
	winning domain.SquareIndex,
	perSquare [domain.BoardSize]uint64,
	deploys []domain.KnownDeploy,
	jackpot bool,
) domain.RoundOutcome {
	out := domain.RoundOutcome{
		RoundID:       roundID,
		WinningSquare: winning,
		Competitors:   perSquare,
		IsJackpot:     jackpot,
	}
	for _, v := range perSquare {
		out.TotalDeployed += v
	}
	if !winning.Valid() {
		out.Class = domain.OutcomeSplit
		return out
	}

	competition := perSquare[winning]
	for _, d := range deploys {
		if !d.Covers(winning) {
			continue
		}
		w := domain.WinnerShare{Address: d.Address, AmountBet: d.Amount}
		if competition == 0 {
			w.SharePct = 1.0
			w.AmountWon = d.Amount
		} else {
			w.SharePct = float64(d.Amount) / float64(competition)
			w.AmountWon = uint64(w.SharePct * float64(competition))
		}
		out.ResolvedWinners = append(out.ResolvedWinners, w)
	}

	switch {
	case jackpot:
		out.Class = domain.OutcomeJackpot
	case out.TotalDeployed < r.fullWinThreshold || len(out.ResolvedWinners) == 1:
		out.Class = domain.OutcomeFullWin
	default:
		out.Class = domain.OutcomeSplit
	}
	return out
}

package domain

// OutcomeClass classifies a resolved round.
type OutcomeClass string

const (
	OutcomeSplit   OutcomeClass = "SPLIT"
	OutcomeFullWin OutcomeClass = "FULL_WIN"
	OutcomeJackpot OutcomeClass = "JACKPOT"
)

// WinnerShare is one winning deploy's slice of the winning square.
type WinnerShare struct {
	Address   string  `json:"address"`
	AmountBet uint64  `json:"amount_bet"` // lamports
	AmountWon uint64  `json:"amount_won"` // lamports
	SharePct  float64 `json:"share_pct"`  // 0..1
}

// RoundOutcome is produced once per completed round and never mutated.
type RoundOutcome struct {
	RoundID         uint64            `json:"round_id"`
	WinningSquare   SquareIndex       `json:"winning_square"`
	TotalDeployed   uint64            `json:"total_deployed"` // lamports
	Competitors     [BoardSize]uint64 `json:"competitors"`    // per-square lamports
	IsJackpot       bool              `json:"is_jackpot"`
	Class           OutcomeClass      `json:"class"`
	ResolvedWinners []WinnerShare     `json:"resolved_winners"`
	Slot            int64             `json:"slot"`
}

// CompetitionOnWinner returns the lamports deployed to the winning square.
func (o RoundOutcome) CompetitionOnWinner() uint64 {
	return o.Competitors[o.WinningSquare]
}

// KnownDeploy is a deploy observed during a round, used for resolution.
type KnownDeploy struct {
	Address string
	Amount  uint64 // lamports per referenced square
	Squares []SquareIndex
}

// Covers reports whether the deploy includes square s.
func (d KnownDeploy) Covers(s SquareIndex) bool {
	for _, q := range d.Squares {
		if q == s {
			return true
		}
	}
	return false
}

package domain

// Recommendation is the per-round stake decision. It is rebuilt every cycle.
type Recommendation struct {
	DecisionID     string          `json:"decision_id"`
	RoundID        uint64          `json:"round_id"`
	ShouldStake    bool            `json:"should_stake"`
	Squares        []SquareIndex   `json:"squares"`
	PerSquareStake []uint64        `json:"per_square_stake"` // lamports, aligned with Squares
	TotalStake     uint64          `json:"total_stake"`
	SquareCount    int             `json:"square_count"`
	ExpectedValue  float64         `json:"expected_value"`
	Tier           CompetitionTier `json:"tier"`
	Exploration    bool            `json:"exploration"`
	RoundsFunded   uint64          `json:"rounds_funded"` // rounds the balance above reserve covers at TotalStake
	Rationale      string          `json:"rationale"`
	SkipReason     string          `json:"skip_reason,omitempty"`
}

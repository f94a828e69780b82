package domain

// MaxFavoriteSquares caps the favourite square set of a profile.
const MaxFavoriteSquares = 10

// ParticipantProfile aggregates everything observed about one wallet.
type ParticipantProfile struct {
	Address string `json:"address"`

	TotalDeployed  uint64  `json:"total_deployed"` // lamports
	TotalWon       uint64  `json:"total_won"`      // lamports
	OREEarned      float64 `json:"ore_earned"`     // estimate, in ORE
	DeployCount    uint64  `json:"deploy_count"`
	RoundsPlayed   uint64  `json:"rounds_played"`
	Wins           uint64  `json:"wins"`
	FullOREWins    uint64  `json:"full_ore_wins"`
	MotherlodeWins uint64  `json:"motherlode_wins"`

	ClaimSOLCount uint64 `json:"claim_sol_count"`
	ClaimORECount uint64 `json:"claim_ore_count"`
	Automated     bool   `json:"automated"`

	AvgSquaresPerDeploy   float64       `json:"avg_squares_per_deploy"`
	FavoriteSquares       []SquareIndex `json:"favorite_squares"`
	AvgCompetitionSOL     float64       `json:"avg_competition_sol"`
	PrefersLowCompetition bool          `json:"prefers_low_competition"`
	HitMotherlode         bool          `json:"hit_motherlode"`
	PreferredSquareCount  int           `json:"preferred_square_count"`
	LastSeenSlot          int64         `json:"last_seen_slot"`
}

// Clone returns a deep copy.
func (p *ParticipantProfile) Clone() *ParticipantProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.FavoriteSquares = append([]SquareIndex(nil), p.FavoriteSquares...)
	return &c
}

// WinRate is wins per round played.
func (p *ParticipantProfile) WinRate() float64 {
	if p.RoundsPlayed == 0 {
		return 0
	}
	return float64(p.Wins) / float64(p.RoundsPlayed)
}

// ROI is (won - deployed) / deployed in SOL terms.
func (p *ParticipantProfile) ROI() float64 {
	if p.TotalDeployed == 0 {
		return 0
	}
	return (float64(p.TotalWon) - float64(p.TotalDeployed)) / float64(p.TotalDeployed)
}

// OREPerSOL is the ORE earned per SOL deployed.
func (p *ParticipantProfile) OREPerSOL() float64 {
	sol := LamportsToSOL(p.TotalDeployed)
	if sol == 0 {
		return 0
	}
	return p.OREEarned / sol
}

// AddFavorite records a square, keeping at most MaxFavoriteSquares entries.
// Newer squares push out the oldest.
func (p *ParticipantProfile) AddFavorite(s SquareIndex) {
	for _, f := range p.FavoriteSquares {
		if f == s {
			return
		}
	}
	p.FavoriteSquares = append(p.FavoriteSquares, s)
	if over := len(p.FavoriteSquares) - MaxFavoriteSquares; over > 0 {
		p.FavoriteSquares = append([]SquareIndex(nil), p.FavoriteSquares[over:]...)
	}
}

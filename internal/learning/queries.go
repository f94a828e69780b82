package learning

import (
	"math"
	"time"

	"ore-strategy-lab/internal/domain"
)

// PlayerScore is a ranked participant.
type PlayerScore struct {
	Address              string               `json:"address"`
	Score                float64              `json:"score"`
	RoundsPlayed         uint64               `json:"rounds_played"`
	Wins                 uint64               `json:"wins"`
	WinRate              float64              `json:"win_rate"`
	ROI                  float64              `json:"roi"`
	OREEarned            float64              `json:"ore_earned"`
	PreferredSquareCount int                  `json:"preferred_square_count"`
	FavoriteSquares      []domain.SquareIndex `json:"favorite_squares"`
}

func toPlayerScores(ranked []scoredProfile, limit int) []PlayerScore {
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]PlayerScore, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, PlayerScore{
			Address:              r.p.Address,
			Score:                r.score,
			RoundsPlayed:         r.p.RoundsPlayed,
			Wins:                 r.p.Wins,
			WinRate:              r.p.WinRate(),
			ROI:                  r.p.ROI(),
			OREEarned:            r.p.OREEarned,
			PreferredSquareCount: r.p.PreferredSquareCount,
			FavoriteSquares:      append([]domain.SquareIndex(nil), r.p.FavoriteSquares...),
		})
	}
	return out
}

// PlayersToCopy returns participants with at least 15 rounds and 3 wins,
// best first. limit <= 0 returns all of them.
func (e *Engine) PlayersToCopy(limit int) []PlayerScore {
	ranked := rankProfiles(e.book.Profiles(),
		func(p *domain.ParticipantProfile) bool { return p.RoundsPlayed >= 15 && p.Wins >= 3 },
		func(p *domain.ParticipantProfile) float64 {
			return p.ROI() * p.WinRate() * math.Min(float64(p.Wins)/10, 1)
		})
	return toPlayerScores(ranked, limit)
}

// TopPerformers returns up to n participants with at least 10 rounds,
// ranked by roi × win rate.
func (e *Engine) TopPerformers(n int) []PlayerScore {
	ranked := rankProfiles(e.book.Profiles(),
		func(p *domain.ParticipantProfile) bool { return p.RoundsPlayed >= 10 },
		func(p *domain.ParticipantProfile) float64 { return p.ROI() * p.WinRate() })
	return toPlayerScores(ranked, n)
}

// Summary is the learning report consumed by operators.
type Summary struct {
	TotalWinsTracked    uint64                    `json:"total_wins_tracked"`
	FullOREWins         uint64                    `json:"full_ore_wins"`
	TotalPlayersTracked int                       `json:"total_players_tracked"`
	StrategiesDetected  int                       `json:"strategies_detected"`
	BestStrategy        *domain.DetectedStrategy  `json:"best_strategy"`
	TopPlayers          []PlayerScore             `json:"top_players"`
	TopPerformers       []PlayerScore             `json:"top_performers"`
	Strategies          []domain.DetectedStrategy `json:"strategies"`
	TotalDeployedSOL    float64                   `json:"total_deployed_sol"`
	TrackedSquares      int                       `json:"tracked_squares"`
	GapEvents           uint64                    `json:"gap_events"`
	RoundsRecorded      uint64                    `json:"rounds_recorded"`
	AnalysisID          string                    `json:"analysis_id,omitempty"`
	AnalyzedAt          time.Time                 `json:"analyzed_at"`
}

// Summary reports the learning state. Board-level fields (TotalDeployedSOL,
// TrackedSquares, GapEvents) are left for the caller that owns the tracker.
func (e *Engine) Summary() Summary {
	s := Summary{
		TotalWinsTracked:    e.totalWins,
		FullOREWins:         e.fullOREWins,
		TotalPlayersTracked: e.book.ProfileCount(),
		StrategiesDetected:  len(e.strategies),
		TopPlayers:          e.PlayersToCopy(5),
		TopPerformers:       e.TopPerformers(10),
		Strategies:          e.Strategies(),
		RoundsRecorded:      e.rounds,
		AnalysisID:          e.analysisID,
		AnalyzedAt:          e.analyzedAt,
	}
	if best, ok := e.BestStrategy(); ok {
		s.BestStrategy = &best
	}
	return s
}

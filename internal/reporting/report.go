package reporting

import (
	"time"

	"ore-strategy-lab/internal/consensus"
	"ore-strategy-lab/internal/learning"
)

// Report is the learning report written by the report job and cmd/report.
type Report struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Summary     learning.Summary `json:"summary"`

	// Board statistics (sorted by square)
	Squares []SquareRow `json:"squares"`

	// Per square-count performance, counts that were never used are omitted
	Counts []CountRow `json:"square_counts"`

	// Consensus heuristics by hit rate
	Consensus []consensus.Performance `json:"consensus"`

	// Recent resolved rounds, newest first
	RecentRounds []RoundRow `json:"recent_rounds"`

	// Archive aggregates, present only with an analytical store
	EventKinds  []KindRow         `json:"event_kinds,omitempty"`
	ArchiveWins []ArchiveWinRow   `json:"archive_wins,omitempty"`
	Volume      []SquareVolumeRow `json:"archive_volume,omitempty"`
}

// SquareRow is one square of the board table.
type SquareRow struct {
	Square         int     `json:"square"`
	TimesDeployed  uint64  `json:"times_deployed"`
	TimesWon       uint64  `json:"times_won"`
	WinRate        float64 `json:"win_rate"`
	Edge           float64 `json:"edge"`
	Streak         int     `json:"streak"`
	AvgCompetition float64 `json:"avg_competition_sol"`
	DeployedSOL    float64 `json:"deployed_sol"`
	Heat           string  `json:"heat"`
}

// CountRow is the performance of deploys covering Count squares.
type CountRow struct {
	Count        int     `json:"count"`
	TimesUsed    uint64  `json:"times_used"`
	TimesWon     uint64  `json:"times_won"`
	WinRate      float64 `json:"win_rate"`
	ROI          float64 `json:"roi"`
	AvgOREEarned float64 `json:"avg_ore_earned"`
}

// RoundRow summarizes one resolved round.
type RoundRow struct {
	RoundID       uint64  `json:"round_id"`
	WinningSquare int     `json:"winning_square"`
	DeployedSOL   float64 `json:"deployed_sol"`
	OnWinnerSOL   float64 `json:"on_winner_sol"`
	Winners       int     `json:"winners"`
	Class         string  `json:"class"`
	Jackpot       bool    `json:"jackpot"`
}

// KindRow is the archived event count of one instruction kind.
type KindRow struct {
	Kind        string  `json:"kind"`
	Events      uint64  `json:"events"`
	Failed      uint64  `json:"failed"`
	Gaps        uint64  `json:"gaps"`
	LamportsSOL float64 `json:"sol"`
}

// ArchiveWinRow is how often a square won across the whole archive.
type ArchiveWinRow struct {
	Square     int     `json:"square"`
	Wins       uint64  `json:"wins"`
	Jackpots   uint64  `json:"jackpots"`
	AvgWinners float64 `json:"avg_winners"`
}

// SquareVolumeRow is the archived deploy volume on one square.
type SquareVolumeRow struct {
	Square      int     `json:"square"`
	DeployedSOL float64 `json:"deployed_sol"`
}

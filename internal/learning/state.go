package learning

import (
	"fmt"
	"time"

	"ore-strategy-lab/internal/domain"
)

// State is the persisted form of an Engine. Profiles are persisted by their owner.
type State struct {
	History     []WinRecord               `json:"history"`
	Counts      domain.CountStats         `json:"counts"`
	TotalWins   uint64                    `json:"total_wins"`
	FullOREWins uint64                    `json:"full_ore_wins"`
	Rounds      uint64                    `json:"rounds"`
	Strategies  []domain.DetectedStrategy `json:"strategies"`
	AnalysisID  string                    `json:"analysis_id"`
	AnalyzedAt  time.Time                 `json:"analyzed_at"`
}

// State returns a copy of the engine state.
func (e *Engine) State() State {
	return State{
		History:     e.History(),
		Counts:      e.counts,
		TotalWins:   e.totalWins,
		FullOREWins: e.fullOREWins,
		Rounds:      e.rounds,
		Strategies:  e.Strategies(),
		AnalysisID:  e.analysisID,
		AnalyzedAt:  e.analyzedAt,
	}
}

// Restore replaces the engine state with s.
func (e *Engine) Restore(s State) error {
	for i, c := range s.Counts {
		if i > 0 && c.Count != 0 && c.Count != i {
			return fmt.Errorf("restore learning state: count entry %d labelled %d", i, c.Count)
		}
	}
	if uint64(len(s.History)) > s.TotalWins {
		return fmt.Errorf("restore learning state: %d history entries exceed %d total wins", len(s.History), s.TotalWins)
	}

	history := s.History
	if over := len(history) - e.opts.MaxWinHistory; over > 0 {
		history = history[over:]
	}
	e.history = append([]WinRecord(nil), history...)
	e.counts = s.Counts
	for i := range e.counts {
		e.counts[i].Count = i
	}
	e.totalWins = s.TotalWins
	e.fullOREWins = s.FullOREWins
	e.rounds = s.Rounds
	e.strategies = append([]domain.DetectedStrategy(nil), s.Strategies...)
	e.analysisID = s.AnalysisID
	e.analyzedAt = s.AnalyzedAt
	return nil
}

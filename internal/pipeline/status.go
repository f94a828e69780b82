package pipeline

import (
	"sort"

	"ore-strategy-lab/internal/consensus"
	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/learning"
	"ore-strategy-lab/internal/tracker"
)

// Status is a point-in-time view of the pipeline for operators.
type Status struct {
	CurrentRound   uint64               `json:"current_round"`
	OpenRounds     []uint64             `json:"open_rounds"`
	RoundsResolved uint64               `json:"rounds_resolved"`
	Unresolved     uint64               `json:"unresolved_resets"`
	Profiles       int                  `json:"profiles"`
	PendingEvents  int                  `json:"pending_events"`
	PendingWrites  int                  `json:"pending_writes"` // outcomes and strategy runs
	WriteErrors    uint64               `json:"write_errors"`
	DeployVolume   float64              `json:"deploy_volume_sol"`
	Counters       tracker.Counters     `json:"counters"`
	LastOutcome    *domain.RoundOutcome `json:"last_outcome,omitempty"`
}

// Status reports progress counters.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{
		CurrentRound:   p.tracker.CurrentRound(),
		OpenRounds:     p.tracker.OpenRounds(),
		RoundsResolved: p.resolved,
		Unresolved:     p.unresolved,
		Profiles:       p.tracker.ProfileCount(),
		PendingEvents:  len(p.pending),
		PendingWrites:  len(p.outcomes) + len(p.runs),
		WriteErrors:    p.writeErrors,
		DeployVolume:   domain.LamportsToSOL(p.tracker.DeployVolume()),
		Counters:       p.tracker.Counters(),
	}
	if p.lastOutcome != nil {
		o := *p.lastOutcome
		s.LastOutcome = &o
	}
	return s
}

// Summary is the learning summary completed with board-level fields.
func (p *Pipeline) Summary() learning.Summary {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.learning.Summary()
	s.TotalDeployedSOL = domain.LamportsToSOL(p.tracker.SquareTotal())
	for _, st := range p.tracker.SquareStats() {
		if st.TimesDeployed > 0 {
			s.TrackedSquares++
		}
	}
	s.GapEvents = p.tracker.Counters().Gaps
	return s
}

// Strategies returns the latest detected strategies.
func (p *Pipeline) Strategies() []domain.DetectedStrategy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.learning.Strategies()
}

// SquareStats returns the square table.
func (p *Pipeline) SquareStats() [domain.BoardSize]domain.SquareStat {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tracker.SquareStats()
}

// Profiles returns copies of all tracked profiles sorted by address.
func (p *Pipeline) Profiles() []*domain.ParticipantProfile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tracker.Profiles()
}

// CountStats returns the learned per-count performance.
func (p *Pipeline) CountStats() domain.CountStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.learning.CountStats()
}

// ConsensusPerformance reports how often each heuristic picked the winner.
func (p *Pipeline) ConsensusPerformance() []consensus.Performance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consensus.Performance()
}

// LastDecision returns the most recent recommendation, if any.
func (p *Pipeline) LastDecision() (domain.Recommendation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastDecision == nil {
		return domain.Recommendation{}, false
	}
	return *p.lastDecision, true
}

func sortByDeployed(profiles []*domain.ParticipantProfile) {
	sort.SliceStable(profiles, func(i, j int) bool {
		if profiles[i].TotalDeployed != profiles[j].TotalDeployed {
			return profiles[i].TotalDeployed > profiles[j].TotalDeployed
		}
		return profiles[i].Address < profiles[j].Address
	})
}

package tracker

import (
	"fmt"

	"ore-strategy-lab/internal/domain"
)

// Snapshot is the persistable state of a Tracker. Open rounds are not part
// of it; they are rebuilt from the live round after a restart.
type Snapshot struct {
	Squares        [domain.BoardSize]domain.SquareStat `json:"squares"`
	CompetitionSum [domain.BoardSize]float64           `json:"competition_sum"`
	RecentWinners  []domain.SquareIndex                `json:"recent_winners"`
	Profiles       []*domain.ParticipantProfile        `json:"profiles"`
	CurrentRound   uint64                              `json:"current_round"`
	DeployVolume   uint64                              `json:"deploy_volume"`
	Counters       Counters                            `json:"counters"`
}

// Snapshot copies the tracker state.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Squares:        t.squares,
		CompetitionSum: t.compSum,
		RecentWinners:  t.RecentWinners(),
		Profiles:       t.Profiles(),
		CurrentRound:   t.currentRound,
		DeployVolume:   t.deployVolume,
		Counters:       t.Counters(),
	}
}

// Restore replaces the tracker state with s. Square entries are validated
// against their position; derived rates are recomputed from counts.
func (t *Tracker) Restore(s Snapshot) error {
	for i, st := range s.Squares {
		if int(st.Square) != i {
			return fmt.Errorf("restore: square %d stored at position %d", st.Square, i)
		}
	}
	for _, w := range s.RecentWinners {
		if !w.Valid() {
			return fmt.Errorf("restore: %w: recent winner %d", domain.ErrSquareOutOfRange, w)
		}
	}

	t.squares = s.Squares
	t.compSum = s.CompetitionSum
	t.recent = append([]domain.SquareIndex(nil), s.RecentWinners...)
	if over := len(t.recent) - t.opts.RecentWindow; over > 0 {
		t.recent = t.recent[over:]
	}
	t.profiles = make(map[string]*domain.ParticipantProfile, len(s.Profiles))
	for _, p := range s.Profiles {
		if p == nil || p.Address == "" {
			continue
		}
		t.profiles[p.Address] = p.Clone()
	}
	t.currentRound = s.CurrentRound
	t.deployVolume = s.DeployVolume
	t.gaps, t.failed, t.evictions = s.Counters.Gaps, s.Counters.Failed, s.Counters.Evictions
	t.book = newRoundBook(t.opts.MaxOpenRounds)
	t.recompute()
	return nil
}

// LoadSquareStats replaces only the square table, as loaded from storage.
// The competition sums are reconstructed from the stored averages.
func (t *Tracker) LoadSquareStats(stats [domain.BoardSize]domain.SquareStat) error {
	for i, st := range stats {
		if int(st.Square) != i {
			return fmt.Errorf("load square stats: square %d stored at position %d", st.Square, i)
		}
	}
	t.squares = stats
	for i, st := range stats {
		t.compSum[i] = st.AvgCompetition * float64(st.RoundsObserved)
	}
	if len(t.recent) == 0 {
		// no winner sequence yet: keep the stored RecentWins
		t.recomputeRates()
	} else {
		t.recompute()
	}
	return nil
}

// LoadProfiles merges stored profiles into the map, replacing entries with
// the same address.
func (t *Tracker) LoadProfiles(profiles []*domain.ParticipantProfile) {
	for _, p := range profiles {
		if p == nil || p.Address == "" {
			continue
		}
		t.profiles[p.Address] = p.Clone()
		t.enforceProfileCap(p.Address)
	}
}

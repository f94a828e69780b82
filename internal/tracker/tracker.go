// Package tracker maintains per-square and per-participant aggregates from
// the ORE event stream.
//
// Tracker is not safe for concurrent use; callers serialize Apply and
// RecordRoundResult behind a single writer.
package tracker

import (
	"fmt"
	"log"
	"math"
	"sort"

	"ore-strategy-lab/internal/domain"
)

// Defaults.
const (
	DefaultMaxOpenRounds = 8
	DefaultRecentWindow  = 100
	DefaultStreakCap     = 20
)

// Options configures a Tracker.
type Options struct {
	MaxOpenRounds int // rounds kept in the deployment book
	RecentWindow  int // resolved rounds counted by SquareStat.RecentWins
	StreakCap     int // |SquareStat.Streak| bound
	MaxProfiles   int // 0 = unbounded; otherwise least-recently-seen eviction
	Logger        *log.Logger
}

func (o *Options) withDefaults() {
	if o.MaxOpenRounds <= 0 {
		o.MaxOpenRounds = DefaultMaxOpenRounds
	}
	if o.RecentWindow <= 0 {
		o.RecentWindow = DefaultRecentWindow
	}
	if o.StreakCap <= 0 {
		o.StreakCap = DefaultStreakCap
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// Tracker owns the SquareStat table and the participant profile map.
type Tracker struct {
	opts   Options
	logger *log.Logger

	squares  [domain.BoardSize]domain.SquareStat
	compSum  [domain.BoardSize]float64 // SOL, for AvgCompetition
	recent   []domain.SquareIndex      // last RecentWindow winners, oldest first
	profiles map[string]*domain.ParticipantProfile
	book     *RoundBook

	currentRound uint64
	deployVolume uint64 // sum of deploy amounts
	gaps         uint64
	failed       uint64
	evictions    uint64
}

// New creates an empty tracker.
func New(opts Options) *Tracker {
	opts.withDefaults()
	t := &Tracker{
		opts:     opts,
		logger:   opts.Logger,
		profiles: make(map[string]*domain.ParticipantProfile),
		book:     newRoundBook(opts.MaxOpenRounds),
	}
	for i := range t.squares {
		t.squares[i].Square = domain.SquareIndex(i)
	}
	return t
}

// mustSquare guards every array index. An invalid index here means the
// decoder let bad data through, which is a bug.
func mustSquare(s domain.SquareIndex) int {
	if !s.Valid() {
		panic(fmt.Sprintf("tracker: square index %d out of range", s))
	}
	return int(s)
}

// BeginRound sets the round that subsequent deploys are booked against.
func (t *Tracker) BeginRound(id uint64) {
	t.currentRound = id
	_, evicted := t.book.open(id)
	for _, old := range evicted {
		t.logger.Printf("[tracker] dropped unresolved round %d from book", old)
	}
}

// CurrentRound returns the round deploys are booked against.
func (t *Tracker) CurrentRound() uint64 {
	return t.currentRound
}

// Apply folds one event into the aggregates. It does not deduplicate.
func (t *Tracker) Apply(ev domain.ParsedEvent) {
	if ev.Gap || ev.Kind == domain.KindUnknown {
		t.gaps++
		return
	}
	if !ev.Success {
		t.failed++
		return
	}

	addr := ev.Participant()
	if addr == "" {
		return
	}
	p := t.Touch(addr, ev.Slot)

	switch ev.Kind {
	case domain.KindDeploy:
		amount, squares, ok := ev.DeployAmount()
		if ok {
			t.applyDeploy(p, amount, squares)
		}
	case domain.KindClaimSOL:
		p.ClaimSOLCount++
	case domain.KindClaimORE, domain.KindClaimYield:
		p.ClaimORECount++
	case domain.KindAutomate:
		p.Automated = true
	}
}

func (t *Tracker) applyDeploy(p *domain.ParticipantProfile, amount uint64, squares []domain.SquareIndex) {
	distinct := domain.DistinctSquares(squares)
	for _, s := range squares {
		mustSquare(s)
	}

	t.deployVolume += amount
	for _, s := range distinct {
		st := &t.squares[mustSquare(s)]
		st.TimesDeployed++
		st.TotalDeployed += amount
	}

	p.TotalDeployed += amount
	p.DeployCount++
	n := float64(p.DeployCount)
	p.AvgSquaresPerDeploy += (float64(len(distinct)) - p.AvgSquaresPerDeploy) / n
	p.PreferredSquareCount = int(math.Round(p.AvgSquaresPerDeploy))
	for _, s := range distinct {
		p.AddFavorite(s)
	}

	entry, evicted := t.book.open(t.currentRound)
	for _, old := range evicted {
		t.logger.Printf("[tracker] dropped unresolved round %d from book", old)
	}
	for _, s := range distinct {
		entry.perSquare[s] += amount
	}
	entry.deploys = append(entry.deploys, domain.KnownDeploy{
		Address: p.Address,
		Amount:  amount,
		Squares: distinct,
	})
	if _, seen := entry.participants[p.Address]; !seen {
		entry.participants[p.Address] = struct{}{}
		p.RoundsPlayed++
	}
}

// Touch returns the live profile for addr, creating it on first sight and
// advancing its last-seen slot. The pointer stays valid until eviction;
// callers hold the same single-writer lock as for Apply.
func (t *Tracker) Touch(addr string, slot int64) *domain.ParticipantProfile {
	p, ok := t.profiles[addr]
	if !ok {
		p = &domain.ParticipantProfile{Address: addr}
		t.profiles[addr] = p
		t.enforceProfileCap(addr)
	}
	if slot > p.LastSeenSlot {
		p.LastSeenSlot = slot
	}
	return p
}

// enforceProfileCap evicts the least recently seen profile other than keep.
func (t *Tracker) enforceProfileCap(keep string) {
	if t.opts.MaxProfiles <= 0 || len(t.profiles) <= t.opts.MaxProfiles {
		return
	}
	var victim *domain.ParticipantProfile
	for addr, p := range t.profiles {
		if addr == keep {
			continue
		}
		if victim == nil || p.LastSeenSlot < victim.LastSeenSlot ||
			(p.LastSeenSlot == victim.LastSeenSlot && p.Address < victim.Address) {
			victim = p
		}
	}
	if victim != nil {
		delete(t.profiles, victim.Address)
		t.evictions++
	}
}

// RoundDeployments returns a copy of the ledger for round id.
func (t *Tracker) RoundDeployments(id uint64) (RoundDeployments, bool) {
	e, ok := t.book.rounds[id]
	if !ok {
		return RoundDeployments{RoundID: id}, false
	}
	return e.snapshot(), true
}

// CloseRound drops round id from the deployment book.
func (t *Tracker) CloseRound(id uint64) {
	delete(t.book.rounds, id)
}

// OpenRounds lists booked round ids in ascending order.
func (t *Tracker) OpenRounds() []uint64 {
	return t.book.ids()
}

// RecordRoundResult folds a resolved round into the square statistics.
func (t *Tracker) RecordRoundResult(o domain.RoundOutcome) {
	winner := mustSquare(o.WinningSquare)
	limit := t.opts.StreakCap

	t.recent = append(t.recent, o.WinningSquare)
	if over := len(t.recent) - t.opts.RecentWindow; over > 0 {
		t.recent = append([]domain.SquareIndex(nil), t.recent[over:]...)
	}

	for i := range t.squares {
		st := &t.squares[i]
		st.RoundsObserved++
		t.compSum[i] += domain.LamportsToSOL(o.Competitors[i])

		if i == winner {
			st.TimesWon++
			if st.Streak < 0 {
				st.Streak = 0
			}
			if st.Streak < limit {
				st.Streak++
			}
		} else {
			if st.Streak > 0 {
				st.Streak = 0
			}
			if st.Streak > -limit {
				st.Streak--
			}
		}
	}
	t.recompute()
}

// recompute derives rates and recent wins from counts so they never drift.
func (t *Tracker) recompute() {
	var recent [domain.BoardSize]int
	for _, s := range t.recent {
		recent[s]++
	}
	for i := range t.squares {
		t.squares[i].RecentWins = recent[i]
	}
	t.recomputeRates()
}

func (t *Tracker) recomputeRates() {
	for i := range t.squares {
		st := &t.squares[i]
		if st.RoundsObserved == 0 {
			st.WinRate, st.Edge, st.AvgCompetition = 0, 0, 0
			continue
		}
		st.WinRate = float64(st.TimesWon) / float64(st.RoundsObserved)
		st.Edge = st.WinRate - domain.UniformWinRate
		st.AvgCompetition = t.compSum[i] / float64(st.RoundsObserved)
	}
}

// SquareStats returns a copy of the square table.
func (t *Tracker) SquareStats() [domain.BoardSize]domain.SquareStat {
	return t.squares
}

// RecentWinners returns the last resolved winners, oldest first.
func (t *Tracker) RecentWinners() []domain.SquareIndex {
	return append([]domain.SquareIndex(nil), t.recent...)
}

// Profile returns a copy of addr's profile.
func (t *Tracker) Profile(addr string) (*domain.ParticipantProfile, bool) {
	p, ok := t.profiles[addr]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Profiles returns copies of all profiles sorted by address.
func (t *Tracker) Profiles() []*domain.ParticipantProfile {
	out := make([]*domain.ParticipantProfile, 0, len(t.profiles))
	for _, p := range t.profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// ProfileCount returns the number of tracked participants.
func (t *Tracker) ProfileCount() int {
	return len(t.profiles)
}

// SquareTotal sums TotalDeployed across all squares.
func (t *Tracker) SquareTotal() uint64 {
	var sum uint64
	for _, st := range t.squares {
		sum += st.TotalDeployed
	}
	return sum
}

// DeployVolume sums the amounts of all applied deploys.
func (t *Tracker) DeployVolume() uint64 {
	return t.deployVolume
}

// Counters reports events that did not mutate aggregates.
type Counters struct {
	Gaps      uint64 `json:"gaps"`
	Failed    uint64 `json:"failed"`
	Evictions uint64 `json:"evictions"`
}

// Counters returns the gap, failure and eviction counters.
func (t *Tracker) Counters() Counters {
	return Counters{Gaps: t.gaps, Failed: t.failed, Evictions: t.evictions}
}

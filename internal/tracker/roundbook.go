package tracker

import (
	"sort"

	"ore-strategy-lab/internal/domain"
)

// roundEntry accumulates one round's deployments until it resolves.
type roundEntry struct {
	id           uint64
	perSquare    [domain.BoardSize]uint64
	deploys      []domain.KnownDeploy
	participants map[string]struct{}
}

// RoundBook keeps the deployment ledger of recent open rounds. Only the
// newest max rounds are retained.
type RoundBook struct {
	max    int
	rounds map[uint64]*roundEntry
}

func newRoundBook(max int) *RoundBook {
	return &RoundBook{max: max, rounds: make(map[uint64]*roundEntry)}
}

// open returns the entry for id, creating it and evicting the oldest other
// rounds beyond capacity. The opened round is never evicted, even when it is
// older than every booked round. Evicted ids are returned.
func (b *RoundBook) open(id uint64) (*roundEntry, []uint64) {
	if e, ok := b.rounds[id]; ok {
		return e, nil
	}
	e := &roundEntry{id: id, participants: make(map[string]struct{})}
	b.rounds[id] = e

	var evicted []uint64
	for _, old := range b.ids() {
		if len(b.rounds) <= b.max {
			break
		}
		if old == id {
			continue
		}
		delete(b.rounds, old)
		evicted = append(evicted, old)
	}
	return e, evicted
}

func (b *RoundBook) ids() []uint64 {
	ids := make([]uint64, 0, len(b.rounds))
	for id := range b.rounds {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RoundDeployments is a copy of one round's ledger.
type RoundDeployments struct {
	RoundID   uint64
	PerSquare [domain.BoardSize]uint64
	Deploys   []domain.KnownDeploy
}

// Total sums the per-square vector.
func (d RoundDeployments) Total() uint64 {
	var t uint64
	for _, v := range d.PerSquare {
		t += v
	}
	return t
}

func (e *roundEntry) snapshot() RoundDeployments {
	out := RoundDeployments{RoundID: e.id, PerSquare: e.perSquare}
	out.Deploys = make([]domain.KnownDeploy, len(e.deploys))
	for i, d := range e.deploys {
		d.Squares = append([]domain.SquareIndex(nil), d.Squares...)
		out.Deploys[i] = d
	}
	return out
}

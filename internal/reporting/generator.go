package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ore-strategy-lab/internal/consensus"
	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/learning"
	"ore-strategy-lab/internal/storage"
	"ore-strategy-lab/internal/storage/clickhouse"
)

// DefaultRecentRounds is how many resolved rounds a report lists.
const DefaultRecentRounds = 20

// Source is the learned state a report is built from. *pipeline.Pipeline
// satisfies it.
type Source interface {
	Summary() learning.Summary
	SquareStats() [domain.BoardSize]domain.SquareStat
	CountStats() domain.CountStats
	ConsensusPerformance() []consensus.Performance
}

// EventArchive aggregates the analytical event archive.
type EventArchive interface {
	CountByKind(ctx context.Context) ([]clickhouse.KindCount, error)
	DeployVolumeBySquare(ctx context.Context) ([domain.BoardSize]uint64, error)
}

// WinArchive aggregates archived round outcomes.
type WinArchive interface {
	WinsBySquare(ctx context.Context) ([]clickhouse.SquareWin, error)
}

// Generator produces reports from the learned state and stored outcomes.
type Generator struct {
	source       Source
	outcomes     storage.RoundOutcomeStore
	events       EventArchive
	wins         WinArchive
	recentRounds int
	now          func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. outcomes may be nil.
func NewGenerator(source Source, outcomes storage.RoundOutcomeStore) *Generator {
	return &Generator{
		source:       source,
		outcomes:     outcomes,
		recentRounds: DefaultRecentRounds,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithArchive adds the ClickHouse aggregates. Either argument may be nil.
func (g *Generator) WithArchive(events EventArchive, wins WinArchive) *Generator {
	g.events = events
	g.wins = wins
	return g
}

// WithRecentRounds sets how many resolved rounds are listed.
func (g *Generator) WithRecentRounds(n int) *Generator {
	g.recentRounds = n
	return g
}

// Generate produces a complete learning report.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	r := &Report{
		GeneratedAt: g.now(),
		Summary:     g.source.Summary(),
		Squares:     squareRows(g.source.SquareStats()),
		Counts:      countRows(g.source.CountStats()),
		Consensus:   sortedPerformance(g.source.ConsensusPerformance()),
	}

	if g.outcomes != nil && g.recentRounds > 0 {
		recent, err := g.outcomes.ListRecent(ctx, g.recentRounds)
		if err != nil {
			return nil, fmt.Errorf("list recent rounds: %w", err)
		}
		r.RecentRounds = roundRows(recent)
	}

	if g.events != nil {
		kinds, err := g.events.CountByKind(ctx)
		if err != nil {
			return nil, fmt.Errorf("count events by kind: %w", err)
		}
		for _, k := range kinds {
			r.EventKinds = append(r.EventKinds, KindRow{
				Kind:        k.Kind,
				Events:      k.Events,
				Failed:      k.Failed,
				Gaps:        k.Gaps,
				LamportsSOL: domain.LamportsToSOL(k.Lamports),
			})
		}

		volume, err := g.events.DeployVolumeBySquare(ctx)
		if err != nil {
			return nil, fmt.Errorf("deploy volume by square: %w", err)
		}
		for sq, lamports := range volume {
			r.Volume = append(r.Volume, SquareVolumeRow{Square: sq, DeployedSOL: domain.LamportsToSOL(lamports)})
		}
	}

	if g.wins != nil {
		wins, err := g.wins.WinsBySquare(ctx)
		if err != nil {
			return nil, fmt.Errorf("wins by square: %w", err)
		}
		for _, w := range wins {
			r.ArchiveWins = append(r.ArchiveWins, ArchiveWinRow{
				Square:     int(w.Square),
				Wins:       w.Wins,
				Jackpots:   w.Jackpots,
				AvgWinners: w.AvgWinners,
			})
		}
	}

	return r, nil
}

func squareRows(stats [domain.BoardSize]domain.SquareStat) []SquareRow {
	rows := make([]SquareRow, len(stats))
	for i, s := range stats {
		rows[i] = SquareRow{
			Square:         i,
			TimesDeployed:  s.TimesDeployed,
			TimesWon:       s.TimesWon,
			WinRate:        s.WinRate,
			Edge:           s.Edge,
			Streak:         s.Streak,
			AvgCompetition: s.AvgCompetition,
			DeployedSOL:    domain.LamportsToSOL(s.TotalDeployed),
			Heat:           string(s.Heat()),
		}
	}
	return rows
}

func countRows(stats domain.CountStats) []CountRow {
	var rows []CountRow
	for n := 1; n < len(stats); n++ {
		s := stats[n]
		if s.TimesUsed == 0 {
			continue
		}
		rows = append(rows, CountRow{
			Count:        n,
			TimesUsed:    s.TimesUsed,
			TimesWon:     s.TimesWon,
			WinRate:      s.WinRate,
			ROI:          s.ROI,
			AvgOREEarned: s.AvgOREEarned,
		})
	}
	return rows
}

// sortedPerformance orders by hit rate descending, then kind.
func sortedPerformance(perf []consensus.Performance) []consensus.Performance {
	out := append([]consensus.Performance(nil), perf...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].HitRate != out[j].HitRate {
			return out[i].HitRate > out[j].HitRate
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

func roundRows(outcomes []*domain.RoundOutcome) []RoundRow {
	rows := make([]RoundRow, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, RoundRow{
			RoundID:       o.RoundID,
			WinningSquare: int(o.WinningSquare),
			DeployedSOL:   domain.LamportsToSOL(o.TotalDeployed),
			OnWinnerSOL:   domain.LamportsToSOL(o.CompetitionOnWinner()),
			Winners:       len(o.ResolvedWinners),
			Class:         string(o.Class),
			Jackpot:       o.IsJackpot,
		})
	}
	return rows
}

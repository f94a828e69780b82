package reporting

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"ore-strategy-lab/internal/consensus"
	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/learning"
	"ore-strategy-lab/internal/storage/clickhouse"
	"ore-strategy-lab/internal/storage/memory"
)

type fakeSource struct {
	summary learning.Summary
	squares [domain.BoardSize]domain.SquareStat
	counts  domain.CountStats
	perf    []consensus.Performance
}

func (f *fakeSource) Summary() learning.Summary                        { return f.summary }
func (f *fakeSource) SquareStats() [domain.BoardSize]domain.SquareStat { return f.squares }
func (f *fakeSource) CountStats() domain.CountStats                    { return f.counts }
func (f *fakeSource) ConsensusPerformance() []consensus.Performance    { return f.perf }

type fakeArchive struct{}

func (fakeArchive) CountByKind(context.Context) ([]clickhouse.KindCount, error) {
	return []clickhouse.KindCount{{Kind: "Deploy", Events: 3, Failed: 1, Lamports: 2_000_000_000}}, nil
}

func (fakeArchive) DeployVolumeBySquare(context.Context) ([domain.BoardSize]uint64, error) {
	var v [domain.BoardSize]uint64
	v[4] = 500_000_000
	return v, nil
}

func (fakeArchive) WinsBySquare(context.Context) ([]clickhouse.SquareWin, error) {
	return []clickhouse.SquareWin{{Square: 4, Wins: 2, Jackpots: 1, AvgWinners: 1.5}}, nil
}

func newFakeSource() *fakeSource {
	src := &fakeSource{counts: domain.NewCountStats()}
	for i := range src.squares {
		src.squares[i].Square = domain.SquareIndex(i)
	}
	src.squares[4] = domain.SquareStat{
		Square: 4, TimesDeployed: 9, RoundsObserved: 10, TimesWon: 2,
		TotalDeployed: 3_000_000_000, WinRate: 0.2, Edge: 0.16,
	}
	src.squares[9] = domain.SquareStat{Square: 9, RoundsObserved: 10, WinRate: 0}

	src.counts[5].TimesUsed = 4
	src.counts[5].TimesWon = 1
	src.counts.Recompute(5)

	best := domain.DetectedStrategy{
		Kind:             domain.StrategyLowCompetition,
		Name:             "low competition",
		SquareCount:      5,
		PreferredSquares: []domain.SquareIndex{4, 11},
		Confidence:       0.7,
		SampleSize:       30,
	}
	src.summary = learning.Summary{
		TotalWinsTracked:    12,
		TotalPlayersTracked: 3,
		StrategiesDetected:  1,
		BestStrategy:        &best,
		Strategies:          []domain.DetectedStrategy{best},
		TopPlayers: []learning.PlayerScore{
			{Address: "Whale111", Score: 1.2, RoundsPlayed: 20, Wins: 4, FavoriteSquares: []domain.SquareIndex{4}},
		},
		TotalDeployedSOL: 3,
		TrackedSquares:   1,
		RoundsRecorded:   10,
		AnalysisID:       "run-1",
	}
	src.perf = []consensus.Performance{
		{Kind: consensus.Momentum, Plays: 10, Hits: 1, HitRate: 0.1},
		{Kind: consensus.Kelly, Plays: 10, Hits: 3, HitRate: 0.3},
		{Kind: consensus.EdgeHunting, Plays: 10, Hits: 3, HitRate: 0.3},
	}
	return src
}

func TestGenerator_Generate(t *testing.T) {
	ctx := context.Background()
	outcomes := memory.NewRoundOutcomeStore()
	for id := uint64(1); id <= 3; id++ {
		o := &domain.RoundOutcome{
			RoundID:       id,
			WinningSquare: 4,
			TotalDeployed: 1_000_000_000,
			Class:         domain.OutcomeSplit,
			IsJackpot:     id == 3,
			ResolvedWinners: []domain.WinnerShare{
				{Address: "a", AmountBet: 1, AmountWon: 2, SharePct: 1},
			},
		}
		o.Competitors[4] = 250_000_000
		if err := outcomes.Save(ctx, o); err != nil {
			t.Fatalf("Save outcome failed: %v", err)
		}
	}

	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	gen := NewGenerator(newFakeSource(), outcomes).
		WithClock(func() time.Time { return fixed }).
		WithRecentRounds(2)

	r, err := gen.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !r.GeneratedAt.Equal(fixed) {
		t.Errorf("GeneratedAt = %v, want %v", r.GeneratedAt, fixed)
	}
	if len(r.Squares) != domain.BoardSize {
		t.Fatalf("expected %d square rows, got %d", domain.BoardSize, len(r.Squares))
	}
	if r.Squares[4].Heat != "HOT" || r.Squares[9].Heat != "COLD" || r.Squares[0].Heat != "NEUTRAL" {
		t.Errorf("unexpected heat: %s %s %s", r.Squares[4].Heat, r.Squares[9].Heat, r.Squares[0].Heat)
	}
	if r.Squares[4].DeployedSOL != 3 {
		t.Errorf("square 4 deployed = %v, want 3", r.Squares[4].DeployedSOL)
	}

	if len(r.Counts) != 1 || r.Counts[0].Count != 5 || r.Counts[0].WinRate != 0.25 {
		t.Errorf("unexpected count rows: %+v", r.Counts)
	}

	// hit rate desc, ties by kind
	if len(r.Consensus) != 3 ||
		r.Consensus[0].Kind != consensus.EdgeHunting ||
		r.Consensus[1].Kind != consensus.Kelly ||
		r.Consensus[2].Kind != consensus.Momentum {
		t.Errorf("unexpected consensus order: %+v", r.Consensus)
	}

	if len(r.RecentRounds) != 2 || r.RecentRounds[0].RoundID != 3 || !r.RecentRounds[0].Jackpot {
		t.Fatalf("unexpected recent rounds: %+v", r.RecentRounds)
	}
	if r.RecentRounds[0].OnWinnerSOL != 0.25 {
		t.Errorf("on winner = %v, want 0.25", r.RecentRounds[0].OnWinnerSOL)
	}

	if len(r.EventKinds) != 0 || len(r.ArchiveWins) != 0 {
		t.Error("expected no archive sections without an archive")
	}
}

func TestGenerator_WithArchive(t *testing.T) {
	gen := NewGenerator(newFakeSource(), nil).WithArchive(fakeArchive{}, fakeArchive{})

	r, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(r.EventKinds) != 1 || r.EventKinds[0].LamportsSOL != 2 {
		t.Errorf("unexpected event kinds: %+v", r.EventKinds)
	}
	if len(r.Volume) != domain.BoardSize || r.Volume[4].DeployedSOL != 0.5 {
		t.Errorf("unexpected volume: %+v", r.Volume)
	}
	if len(r.ArchiveWins) != 1 || r.ArchiveWins[0].Square != 4 {
		t.Errorf("unexpected archive wins: %+v", r.ArchiveWins)
	}
	if r.RecentRounds != nil {
		t.Error("expected no recent rounds without an outcome store")
	}

	md := RenderMarkdown(r)
	for _, want := range []string{"## Event Archive", "| Deploy | 3 | 1 | 0 | 2.0000 |", "| 4 | 2 | 1 | 1.50 |"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderMarkdown(t *testing.T) {
	r, err := NewGenerator(newFakeSource(), nil).
		WithClock(func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }).
		Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	md := RenderMarkdown(r)
	for _, want := range []string{
		"# ORE Learning Report",
		"Generated: 2025-03-01T00:00:00Z",
		"Analysis: run-1",
		"| Wins Tracked | 12 |",
		"Best: **low competition** (LOW_COMPETITION, 5 squares, confidence 0.70)",
		"| Whale111 |",
		"## Top Performers\n\nNo players qualify yet.",
		"| 4 | 9 | 2 | 0.2000 | +0.1600 |",
		"| EDGE_HUNTING | 10 | 3 | 0.3000 |",
		"No resolved rounds stored.",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
	if strings.Contains(md, "## Event Archive") {
		t.Error("archive section rendered without archive data")
	}
}

func TestRenderCSV(t *testing.T) {
	csv := RenderCSV([]SquareRow{{Square: 3, TimesDeployed: 2, TimesWon: 1, WinRate: 0.5, Heat: "HOT"}})
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines", len(lines))
	}
	if lines[1] != "3,2,1,0.500000,0.000000,0,0.000000,0.000000,HOT" {
		t.Errorf("unexpected row: %s", lines[1])
	}
}

func TestEncodeSummary_FieldNames(t *testing.T) {
	data, err := EncodeSummary(newFakeSource().summary)
	if err != nil {
		t.Fatalf("EncodeSummary failed: %v", err)
	}

	var decoded map[string]any
	if err := sonnet.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	for _, key := range []string{
		"total_wins_tracked", "total_players_tracked", "strategies_detected",
		"best_strategy", "top_players", "strategies", "total_deployed_sol",
		"tracked_squares", "gap_events",
	} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("summary JSON missing %q", key)
		}
	}

	best, ok := decoded["best_strategy"].(map[string]any)
	if !ok {
		t.Fatalf("best_strategy is %T", decoded["best_strategy"])
	}
	if best["kind"] != "LOW_COMPETITION" {
		t.Errorf("best_strategy.kind = %v", best["kind"])
	}
}

func TestWriteFiles(t *testing.T) {
	r, err := NewGenerator(newFakeSource(), nil).Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteFiles(dir, r)
	if err != nil {
		t.Fatalf("WriteFiles failed: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 files, got %d", len(paths))
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", p)
		}
	}
}

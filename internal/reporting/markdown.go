package reporting

import (
	"fmt"
	"strings"
	"time"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/learning"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	s := r.Summary

	// Header
	sb.WriteString("# ORE Learning Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if s.AnalysisID != "" {
		sb.WriteString(fmt.Sprintf("Analysis: %s at %s\n\n", s.AnalysisID, s.AnalyzedAt.Format(time.RFC3339)))
	}

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Rounds Recorded | %d |\n", s.RoundsRecorded))
	sb.WriteString(fmt.Sprintf("| Wins Tracked | %d |\n", s.TotalWinsTracked))
	sb.WriteString(fmt.Sprintf("| Full ORE Wins | %d |\n", s.FullOREWins))
	sb.WriteString(fmt.Sprintf("| Players Tracked | %d |\n", s.TotalPlayersTracked))
	sb.WriteString(fmt.Sprintf("| Strategies Detected | %d |\n", s.StrategiesDetected))
	sb.WriteString(fmt.Sprintf("| Total Deployed (SOL) | %.4f |\n", s.TotalDeployedSOL))
	sb.WriteString(fmt.Sprintf("| Tracked Squares | %d |\n", s.TrackedSquares))
	sb.WriteString(fmt.Sprintf("| Gap Events | %d |\n", s.GapEvents))
	sb.WriteString("\n")

	// Strategies
	sb.WriteString("## Detected Strategies\n\n")
	if s.BestStrategy != nil {
		sb.WriteString(fmt.Sprintf("Best: **%s** (%s, %d squares, confidence %.2f)\n\n",
			s.BestStrategy.Name, s.BestStrategy.Kind, s.BestStrategy.SquareCount, s.BestStrategy.Confidence))
	}
	if len(s.Strategies) > 0 {
		sb.WriteString("| Kind | Name | Squares | Stake (SOL) | Tier | Confidence | Avg ROI | Samples | Preferred |\n")
		sb.WriteString("|------|------|---------|-------------|------|------------|---------|---------|-----------|\n")
		for _, st := range s.Strategies {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.4f | %s | %.2f | %.4f | %d | %s |\n",
				st.Kind, st.Name, st.SquareCount, st.StakeSizeSOL, st.TargetTier,
				st.Confidence, st.AvgROI, st.SampleSize, formatSquares(st.PreferredSquares)))
		}
	} else {
		sb.WriteString("No strategies detected yet.\n")
	}
	sb.WriteString("\n")

	// Top players
	sb.WriteString("## Top Players\n\n")
	writePlayers(&sb, s.TopPlayers)

	sb.WriteString("## Top Performers\n\n")
	writePlayers(&sb, s.TopPerformers)

	// Board
	sb.WriteString("## Board\n\n")
	sb.WriteString("| Square | Deploys | Wins | WinRate | Edge | Streak | AvgComp (SOL) | Deployed (SOL) | Heat |\n")
	sb.WriteString("|--------|---------|------|---------|------|--------|---------------|----------------|------|\n")
	for _, sq := range r.Squares {
		sb.WriteString(fmt.Sprintf("| %d | %d | %d | %.4f | %+.4f | %d | %.4f | %.4f | %s |\n",
			sq.Square, sq.TimesDeployed, sq.TimesWon, sq.WinRate, sq.Edge, sq.Streak,
			sq.AvgCompetition, sq.DeployedSOL, sq.Heat))
	}
	sb.WriteString("\n")

	// Square counts
	sb.WriteString("## Square Count Performance\n\n")
	if len(r.Counts) > 0 {
		sb.WriteString("| Count | Used | Won | WinRate | ROI | Avg ORE |\n")
		sb.WriteString("|-------|------|-----|---------|-----|---------|\n")
		for _, c := range r.Counts {
			sb.WriteString(fmt.Sprintf("| %d | %d | %d | %.4f | %.4f | %.4f |\n",
				c.Count, c.TimesUsed, c.TimesWon, c.WinRate, c.ROI, c.AvgOREEarned))
		}
	} else {
		sb.WriteString("No resolved deploys yet.\n")
	}
	sb.WriteString("\n")

	// Consensus
	sb.WriteString("## Consensus Heuristics\n\n")
	if len(r.Consensus) > 0 {
		sb.WriteString("| Heuristic | Plays | Hits | HitRate |\n")
		sb.WriteString("|-----------|-------|------|---------|\n")
		for _, p := range r.Consensus {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.4f |\n", p.Kind, p.Plays, p.Hits, p.HitRate))
		}
	} else {
		sb.WriteString("No consensus history yet.\n")
	}
	sb.WriteString("\n")

	// Recent rounds
	sb.WriteString("## Recent Rounds\n\n")
	if len(r.RecentRounds) > 0 {
		sb.WriteString("| Round | Winner | Deployed (SOL) | On Winner (SOL) | Winners | Class | Jackpot |\n")
		sb.WriteString("|-------|--------|----------------|-----------------|---------|-------|---------|\n")
		for _, o := range r.RecentRounds {
			jackpot := ""
			if o.Jackpot {
				jackpot = "yes"
			}
			sb.WriteString(fmt.Sprintf("| %d | %d | %.4f | %.4f | %d | %s | %s |\n",
				o.RoundID, o.WinningSquare, o.DeployedSOL, o.OnWinnerSOL, o.Winners, o.Class, jackpot))
		}
	} else {
		sb.WriteString("No resolved rounds stored.\n")
	}
	sb.WriteString("\n")

	// Archive
	if len(r.EventKinds) > 0 || len(r.ArchiveWins) > 0 {
		sb.WriteString("## Event Archive\n\n")
	}
	if len(r.EventKinds) > 0 {
		sb.WriteString("| Kind | Events | Failed | Gaps | SOL |\n")
		sb.WriteString("|------|--------|--------|------|-----|\n")
		for _, k := range r.EventKinds {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %.4f |\n", k.Kind, k.Events, k.Failed, k.Gaps, k.LamportsSOL))
		}
		sb.WriteString("\n")
	}
	if len(r.ArchiveWins) > 0 {
		sb.WriteString("| Square | Wins | Jackpots | Avg Winners |\n")
		sb.WriteString("|--------|------|----------|-------------|\n")
		for _, w := range r.ArchiveWins {
			sb.WriteString(fmt.Sprintf("| %d | %d | %d | %.2f |\n", w.Square, w.Wins, w.Jackpots, w.AvgWinners))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func formatSquares(squares []domain.SquareIndex) string {
	if len(squares) == 0 {
		return "-"
	}
	parts := make([]string, len(squares))
	for i, sq := range squares {
		parts[i] = fmt.Sprintf("%d", sq)
	}
	return strings.Join(parts, ",")
}

func writePlayers(sb *strings.Builder, players []learning.PlayerScore) {
	if len(players) == 0 {
		sb.WriteString("No players qualify yet.\n\n")
		return
	}
	sb.WriteString("| Address | Score | Rounds | Wins | WinRate | ROI | ORE | Squares | Favorites |\n")
	sb.WriteString("|---------|-------|--------|------|---------|-----|-----|---------|-----------|\n")
	for _, p := range players {
		sb.WriteString(fmt.Sprintf("| %s | %.4f | %d | %d | %.4f | %.4f | %.4f | %d | %s |\n",
			p.Address, p.Score, p.RoundsPlayed, p.Wins, p.WinRate, p.ROI, p.OREEarned,
			p.PreferredSquareCount, formatSquares(p.FavoriteSquares)))
	}
	sb.WriteString("\n")
}

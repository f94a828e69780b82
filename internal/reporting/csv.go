package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders the board table as CSV string.
func RenderCSV(squares []SquareRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("square,times_deployed,times_won,win_rate,edge,streak,")
	sb.WriteString("avg_competition_sol,deployed_sol,heat\n")

	// Rows
	for _, s := range squares {
		sb.WriteString(fmt.Sprintf("%d,%d,%d,%.6f,%.6f,%d,%.6f,%.6f,%s\n",
			s.Square,
			s.TimesDeployed,
			s.TimesWon,
			s.WinRate,
			s.Edge,
			s.Streak,
			s.AvgCompetition,
			s.DeployedSOL,
			s.Heat,
		))
	}

	return sb.String()
}

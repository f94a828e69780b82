package consensus

import "fmt"

// Kind is the closed set of board heuristics.
type Kind uint8

const (
	Momentum Kind = iota + 1
	ContrarianValue
	EdgeHunting
	StreakReversal
	LowCompetition
	WhaleFollowing
	PatternDetection
	Kelly
	Quadrant
	MeanReversion
)

// Kinds lists every heuristic in evaluation order.
var Kinds = []Kind{
	Momentum, ContrarianValue, EdgeHunting, StreakReversal, LowCompetition,
	WhaleFollowing, PatternDetection, Kelly, Quadrant, MeanReversion,
}

func (k Kind) String() string {
	switch k {
	case Momentum:
		return "MOMENTUM"
	case ContrarianValue:
		return "CONTRARIAN_VALUE"
	case EdgeHunting:
		return "EDGE_HUNTING"
	case StreakReversal:
		return "STREAK_REVERSAL"
	case LowCompetition:
		return "LOW_COMPETITION"
	case WhaleFollowing:
		return "WHALE_FOLLOWING"
	case PatternDetection:
		return "PATTERN_DETECTION"
	case Kelly:
		return "KELLY"
	case Quadrant:
		return "QUADRANT"
	case MeanReversion:
		return "MEAN_REVERSION"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

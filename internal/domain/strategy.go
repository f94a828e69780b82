package domain

import "fmt"

// StrategyKind is the closed set of detected strategy families.
type StrategyKind uint8

const (
	StrategyLowSquare StrategyKind = iota + 1
	StrategyHighCoverage
	StrategyMotherlode
	StrategyLowCompetition
	StrategyFullORE
	StrategyCopyTopPlayer
)

func (k StrategyKind) String() string {
	switch k {
	case StrategyLowSquare:
		return "LOW_SQUARE"
	case StrategyHighCoverage:
		return "HIGH_COVERAGE"
	case StrategyMotherlode:
		return "MOTHERLODE"
	case StrategyLowCompetition:
		return "LOW_COMPETITION"
	case StrategyFullORE:
		return "FULL_ORE"
	case StrategyCopyTopPlayer:
		return "COPY_TOP_PLAYER"
	default:
		return fmt.Sprintf("StrategyKind(%d)", uint8(k))
	}
}

// MarshalText encodes the kind by name.
func (k StrategyKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *StrategyKind) UnmarshalText(b []byte) error {
	parsed, err := ParseStrategyKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseStrategyKind is the inverse of String.
func ParseStrategyKind(s string) (StrategyKind, error) {
	for k := StrategyLowSquare; k <= StrategyCopyTopPlayer; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown strategy kind %q", s)
}

// CompetitionTier buckets a round's total deployment.
type CompetitionTier uint8

const (
	TierVeryLow CompetitionTier = iota
	TierLow
	TierMedium
	TierHigh
	TierVeryHigh
)

// Tier thresholds in SOL (upper bounds, exclusive).
const (
	TierVeryLowMaxSOL = 0.5
	TierLowMaxSOL     = 2.0
	TierMediumMaxSOL  = 10.0
	TierHighMaxSOL    = 50.0
)

// TierForSOL classifies a round total.
func TierForSOL(totalSOL float64) CompetitionTier {
	switch {
	case totalSOL < TierVeryLowMaxSOL:
		return TierVeryLow
	case totalSOL < TierLowMaxSOL:
		return TierLow
	case totalSOL < TierMediumMaxSOL:
		return TierMedium
	case totalSOL < TierHighMaxSOL:
		return TierHigh
	default:
		return TierVeryHigh
	}
}

// OREMultiplier is the relative ORE yield expected at the tier.
func (t CompetitionTier) OREMultiplier() float64 {
	switch t {
	case TierVeryLow:
		return 2.0
	case TierLow:
		return 1.5
	case TierMedium:
		return 1.0
	case TierHigh:
		return 0.5
	default:
		return 0.25
	}
}

func (t CompetitionTier) String() string {
	switch t {
	case TierVeryLow:
		return "VERY_LOW"
	case TierLow:
		return "LOW"
	case TierMedium:
		return "MEDIUM"
	case TierHigh:
		return "HIGH"
	case TierVeryHigh:
		return "VERY_HIGH"
	default:
		return fmt.Sprintf("CompetitionTier(%d)", uint8(t))
	}
}

// MarshalText encodes the tier by name.
func (t CompetitionTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name.
func (t *CompetitionTier) UnmarshalText(b []byte) error {
	for c := TierVeryLow; c <= TierVeryHigh; c++ {
		if c.String() == string(b) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("unknown competition tier %q", string(b))
}

// DetectedStrategy is one heuristic mined from win history.
// The list is regenerated wholesale on every analysis pass.
type DetectedStrategy struct {
	Kind             StrategyKind    `json:"kind"`
	Name             string          `json:"name"`
	SquareCount      int             `json:"square_count"`
	StakeSizeSOL     float64         `json:"stake_size_sol"`
	TargetTier       CompetitionTier `json:"target_tier"`
	PreferredSquares []SquareIndex   `json:"preferred_squares"`
	Confidence       float64         `json:"confidence"`
	AvgROI           float64         `json:"avg_roi"`
	SampleSize       int             `json:"sample_size"`
	Consistent       bool            `json:"consistent"`
	ExampleAddresses []string        `json:"example_addresses"`
}

// Score ranks strategies: average ROI weighted by confidence.
func (s DetectedStrategy) Score() float64 {
	return s.AvgROI * s.Confidence
}

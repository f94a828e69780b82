package domain

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
)

// BoardSize is the number of squares on the 5x5 board.
const (
	BoardSize  = 25
	BoardWidth = 5
)

// UniformWinRate is the expected win rate of any square under a fair draw.
const UniformWinRate = 1.0 / BoardSize

// ErrSquareOutOfRange is returned for square indices outside [0, 25).
var ErrSquareOutOfRange = errors.New("square index out of range")

// SquareIndex is a validated board position in [0, 25).
type SquareIndex uint8

// NewSquareIndex validates i. Out of range values are rejected, never wrapped.
func NewSquareIndex(i int) (SquareIndex, error) {
	if i < 0 || i >= BoardSize {
		return 0, fmt.Errorf("%w: %d", ErrSquareOutOfRange, i)
	}
	return SquareIndex(i), nil
}

// MustSquare is NewSquareIndex for constants; it panics on invalid input.
func MustSquare(i int) SquareIndex {
	s, err := NewSquareIndex(i)
	if err != nil {
		panic(err)
	}
	return s
}

// Valid reports whether s is within the board.
func (s SquareIndex) Valid() bool { return s < BoardSize }

// Int returns s as an int for indexing.
func (s SquareIndex) Int() int { return int(s) }

// Row returns the board row (0-4).
func (s SquareIndex) Row() int { return int(s) / BoardWidth }

// Col returns the board column (0-4).
func (s SquareIndex) Col() int { return int(s) % BoardWidth }

// MarshalJSON encodes the index as a number. Without it a []SquareIndex
// would be written as a base64 byte string.
func (s SquareIndex) MarshalJSON() ([]byte, error) {
	return strconv.AppendUint(nil, uint64(s), 10), nil
}

// SquaresFromMask expands a bitmask into ascending square indices.
// Set bits at positions >= 25 are returned separately as dropped.
func SquaresFromMask(mask uint64) (squares []SquareIndex, dropped []uint8) {
	for mask != 0 {
		bit := bits.TrailingZeros64(mask)
		mask &^= 1 << bit
		if bit < BoardSize {
			squares = append(squares, SquareIndex(bit))
		} else {
			dropped = append(dropped, uint8(bit))
		}
	}
	return squares, dropped
}

// MaskFromSquares packs squares into a bitmask. Invalid indices are ignored.
func MaskFromSquares(squares []SquareIndex) uint32 {
	var mask uint32
	for _, s := range squares {
		if s.Valid() {
			mask |= 1 << s
		}
	}
	return mask
}

// DistinctSquares returns squares with duplicates and invalid entries removed,
// preserving first-seen order.
func DistinctSquares(squares []SquareIndex) []SquareIndex {
	var seen uint32
	out := make([]SquareIndex, 0, len(squares))
	for _, s := range squares {
		if !s.Valid() || seen&(1<<s) != 0 {
			continue
		}
		seen |= 1 << s
		out = append(out, s)
	}
	return out
}

// SquareStat holds running aggregates for one square.
type SquareStat struct {
	Square         SquareIndex `json:"square"`
	TimesDeployed  uint64      `json:"times_deployed"`  // deploy events referencing the square
	RoundsObserved uint64      `json:"rounds_observed"` // resolved rounds while tracking
	TimesWon       uint64      `json:"times_won"`
	TotalDeployed  uint64      `json:"total_deployed"`  // lamports
	WinRate        float64     `json:"win_rate"`        // TimesWon / RoundsObserved
	Edge           float64     `json:"edge"`            // WinRate - UniformWinRate
	Streak         int         `json:"streak"`          // positive = consecutive wins
	AvgCompetition float64     `json:"avg_competition"` // SOL deployed on the square per observed round
	RecentWins     int         `json:"recent_wins"`
}

// Heat classifies a square's win rate against the uniform expectation.
type Heat string

const (
	HeatHot     Heat = "HOT"
	HeatNeutral Heat = "NEUTRAL"
	HeatCold    Heat = "COLD"
)

// Heat returns HOT above 1.5x the uniform rate and COLD below 0.5x.
func (s SquareStat) Heat() Heat {
	switch {
	case s.RoundsObserved == 0:
		return HeatNeutral
	case s.WinRate > UniformWinRate*1.5:
		return HeatHot
	case s.WinRate < UniformWinRate*0.5:
		return HeatCold
	default:
		return HeatNeutral
	}
}

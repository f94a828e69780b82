package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSquareIndex(t *testing.T) {
	for _, i := range []int{0, 12, 24} {
		s, err := NewSquareIndex(i)
		require.NoError(t, err)
		assert.Equal(t, i, s.Int())
	}

	for _, i := range []int{-1, 25, 255, 256} {
		_, err := NewSquareIndex(i)
		assert.True(t, errors.Is(err, ErrSquareOutOfRange), "index %d", i)
	}
}

func TestSquaresFromMask(t *testing.T) {
	mask := uint64(1<<0 | 1<<4 | 1<<12 | 1<<24)
	squares, dropped := SquaresFromMask(mask)

	assert.Equal(t, []SquareIndex{0, 4, 12, 24}, squares)
	assert.Empty(t, dropped)
}

func TestSquaresFromMask_DropsHighBits(t *testing.T) {
	mask := uint64(1<<3 | 1<<25 | 1<<31 | 1<<63)
	squares, dropped := SquaresFromMask(mask)

	assert.Equal(t, []SquareIndex{3}, squares)
	assert.Equal(t, []uint8{25, 31, 63}, dropped)
	for _, s := range squares {
		assert.Less(t, s.Int(), BoardSize)
	}
}

func TestMaskFromSquares_RoundTrip(t *testing.T) {
	in := []SquareIndex{1, 7, 19}
	out, _ := SquaresFromMask(uint64(MaskFromSquares(in)))
	assert.Equal(t, in, out)
}

func TestDistinctSquares(t *testing.T) {
	got := DistinctSquares([]SquareIndex{7, 3, 7, 30, 3, 24})
	assert.Equal(t, []SquareIndex{7, 3, 24}, got)
}

func TestSquareRowCol(t *testing.T) {
	s := MustSquare(13)
	assert.Equal(t, 2, s.Row())
	assert.Equal(t, 3, s.Col())
}

func TestSquareStatHeat(t *testing.T) {
	assert.Equal(t, HeatNeutral, SquareStat{}.Heat())
	assert.Equal(t, HeatHot, SquareStat{RoundsObserved: 100, WinRate: 0.07}.Heat())
	assert.Equal(t, HeatCold, SquareStat{RoundsObserved: 100, WinRate: 0.01}.Heat())
	assert.Equal(t, HeatNeutral, SquareStat{RoundsObserved: 100, WinRate: 0.04}.Heat())
}

func TestProfileAddFavoriteCapped(t *testing.T) {
	p := &ParticipantProfile{}
	for i := 0; i < 15; i++ {
		p.AddFavorite(MustSquare(i))
	}
	p.AddFavorite(MustSquare(14))

	require.Len(t, p.FavoriteSquares, MaxFavoriteSquares)
	assert.Equal(t, SquareIndex(5), p.FavoriteSquares[0])
	assert.Equal(t, SquareIndex(14), p.FavoriteSquares[9])
}

func TestProfileClone(t *testing.T) {
	p := &ParticipantProfile{Address: "w", FavoriteSquares: []SquareIndex{1}}
	c := p.Clone()
	c.FavoriteSquares[0] = 9

	assert.Equal(t, SquareIndex(1), p.FavoriteSquares[0])
}

func TestSquareIndex_JSONList(t *testing.T) {
	raw, err := json.Marshal([]SquareIndex{3, 7})
	require.NoError(t, err)
	assert.JSONEq(t, `[3,7]`, string(raw))

	var back []SquareIndex
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, []SquareIndex{3, 7}, back)
}

package decoder

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/solana"
)

func returnData(b []byte) *solana.ReturnData {
	return &solana.ReturnData{
		ProgramID: domain.OREProgramID,
		Data:      base64.StdEncoding.EncodeToString(b),
	}
}

func TestDecodeRoundResult_ReturnData(t *testing.T) {
	meta := &solana.TransactionMeta{
		ReturnData: returnData(ResetReturnData(812, domain.MustSquare(9), 5*domain.GramsPerORE)),
	}

	r, ok := DecodeRoundResult(meta)
	require.True(t, ok)
	assert.Equal(t, uint64(812), r.RoundID)
	assert.Equal(t, domain.MustSquare(9), r.WinningSquare)
	assert.True(t, r.Motherlode)
	assert.Equal(t, domain.ResultFromReturnData, r.Source)
	assert.True(t, r.Resolved())
}

func TestDecodeRoundResult_ReturnDataWithoutMotherlodeWord(t *testing.T) {
	full := ResetReturnData(3, domain.MustSquare(1), 0)
	meta := &solana.TransactionMeta{ReturnData: returnData(full[:48])}

	r, ok := DecodeRoundResult(meta)
	require.True(t, ok)
	assert.False(t, r.Motherlode)
}

func TestDecodeRoundResult_PrefersReturnDataOverLogs(t *testing.T) {
	meta := &solana.TransactionMeta{
		ReturnData:  returnData(ResetReturnData(40, domain.MustSquare(2), 0)),
		LogMessages: []string{"Program log: Winning square: 11"},
	}

	r, ok := DecodeRoundResult(meta)
	require.True(t, ok)
	assert.Equal(t, domain.MustSquare(2), r.WinningSquare)
	assert.Equal(t, domain.ResultFromReturnData, r.Source)
}

func TestDecodeRoundResult_FallsBackToLogs(t *testing.T) {
	tests := []struct {
		name       string
		logs       []string
		square     int
		motherlode bool
	}{
		{"colon form", []string{"Program log: Reset", "Program log: Winning square: 14"}, 14, false},
		{"snake case", []string{"Program log: winning_square=3 MOTHERLODE"}, 3, true},
		{"skips large numbers", []string{"Program log: round 9000 winning_square 31 then 6"}, 6, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, ok := DecodeRoundResult(&solana.TransactionMeta{LogMessages: tc.logs})
			require.True(t, ok)
			assert.Equal(t, domain.MustSquare(tc.square), r.WinningSquare)
			assert.Equal(t, tc.motherlode, r.Motherlode)
			assert.Equal(t, domain.ResultFromLogs, r.Source)
			assert.False(t, r.Resolved(), "log fallback never carries a round id")
		})
	}
}

func TestDecodeRoundResult_InvalidReturnDataFallsThrough(t *testing.T) {
	bad := ResetReturnData(40, 0, 0)
	bad[32] = 40 // winning square out of range
	meta := &solana.TransactionMeta{
		ReturnData:  returnData(bad),
		LogMessages: []string{"Program log: Winning square: 20"},
	}

	r, ok := DecodeRoundResult(meta)
	require.True(t, ok)
	assert.Equal(t, domain.MustSquare(20), r.WinningSquare)
	assert.Equal(t, domain.ResultFromLogs, r.Source)
}

func TestDecodeRoundResult_NothingFound(t *testing.T) {
	_, ok := DecodeRoundResult(nil)
	assert.False(t, ok)

	_, ok = DecodeRoundResult(&solana.TransactionMeta{
		ReturnData:  &solana.ReturnData{ProgramID: domain.OREProgramID, Data: "AAAA"},
		LogMessages: []string{"Program log: Instruction: Reset"},
	})
	assert.False(t, ok)
}

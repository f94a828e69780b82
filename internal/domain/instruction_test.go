package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindFromDiscriminator(t *testing.T) {
	assert.Equal(t, KindDeploy, KindFromDiscriminator(6))
	assert.Equal(t, KindAutomate, KindFromDiscriminator(0))
	assert.Equal(t, KindLiq, KindFromDiscriminator(25))
	assert.Equal(t, KindUnknown, KindFromDiscriminator(1))
	assert.Equal(t, KindUnknown, KindFromDiscriminator(200))
}

func TestParseInstructionKind(t *testing.T) {
	for _, k := range AllInstructionKinds() {
		parsed, err := ParseInstructionKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseInstructionKind("Mine")
	assert.Error(t, err)
}

func TestTierForSOL(t *testing.T) {
	cases := []struct {
		sol  float64
		want CompetitionTier
	}{
		{0, TierVeryLow},
		{0.49, TierVeryLow},
		{0.5, TierLow},
		{1.99, TierLow},
		{2, TierMedium},
		{9.9, TierMedium},
		{10, TierHigh},
		{49.9, TierHigh},
		{50, TierVeryHigh},
		{1000, TierVeryHigh},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TierForSOL(tc.sol), "sol=%v", tc.sol)
	}
}

func TestStrategyKindText(t *testing.T) {
	for k := StrategyLowSquare; k <= StrategyCopyTopPlayer; k++ {
		b, err := k.MarshalText()
		require.NoError(t, err)

		var got StrategyKind
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, k, got)
	}
}

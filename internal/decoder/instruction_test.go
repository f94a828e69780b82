package decoder

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ore-strategy-lab/internal/domain"
)

func squares(idx ...int) []domain.SquareIndex {
	out := make([]domain.SquareIndex, len(idx))
	for i, v := range idx {
		out[i] = domain.MustSquare(v)
	}
	return out
}

func TestDecode_RoundTripEveryKind(t *testing.T) {
	winner := domain.MustSquare(17)

	payloads := map[domain.InstructionKind]domain.DecodedInstruction{
		domain.KindDeploy: DeployInstruction(25_000_000, squares(0, 4, 12, 24)),
		domain.KindAutomate: {
			Kind: domain.KindAutomate, Discriminator: byte(domain.KindAutomate),
			Automate: &domain.AutomateFields{
				AmountLamports:  1_000_000,
				DepositLamports: 50_000_000,
				FeeLamports:     5_000,
				Mask:            0x1FFFFFF,
				Strategy:        2,
				Reload:          true,
			},
		},
		domain.KindDeposit: {
			Kind: domain.KindDeposit, Discriminator: byte(domain.KindDeposit),
			Deposit: &domain.DepositFields{Amount: 3 * domain.GramsPerORE, CompoundFee: 1234},
		},
		domain.KindWithdraw: {
			Kind: domain.KindWithdraw, Discriminator: byte(domain.KindWithdraw),
			Amount: &domain.AmountFields{Amount: 987654321},
		},
		domain.KindClaimYield: {
			Kind: domain.KindClaimYield, Discriminator: byte(domain.KindClaimYield),
			Amount: &domain.AmountFields{Amount: 42},
		},
		domain.KindReset: {
			Kind: domain.KindReset, Discriminator: byte(domain.KindReset),
			Reset: &domain.ResetFields{RoundID: 7001, WinningSquare: &winner, Motherlode: true},
		},
	}

	for _, kind := range domain.AllInstructionKinds() {
		if kind == domain.KindUnknown {
			continue
		}
		t.Run(kind.String(), func(t *testing.T) {
			in, ok := payloads[kind]
			if !ok {
				in = domain.DecodedInstruction{Kind: kind, Discriminator: byte(kind)}
			}

			got, err := Decode(domain.OREProgramID, Encode(in))
			require.NoError(t, err)
			assert.Equal(t, in, got)
		})
	}
}

func TestDecode_UnknownDiscriminator(t *testing.T) {
	got, err := Decode(domain.OREProgramID, []byte{7, 1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, domain.KindUnknown, got.Kind)
	assert.Equal(t, byte(7), got.Discriminator)

	assert.Equal(t, []byte{7}, Encode(got))
}

func TestDecode_LittleEndianFields(t *testing.T) {
	data := []byte{
		6,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x03, 0x00, 0x00, 0x00,
	}

	got, err := Decode(domain.OREProgramID, data)
	require.NoError(t, err)
	require.NotNil(t, got.Deploy)
	assert.Equal(t, uint64(0x0807060504030201), got.Deploy.AmountLamports)
	assert.Equal(t, uint32(3), got.Deploy.Mask)
	assert.Equal(t, squares(0, 1), got.Deploy.Squares)
}

func TestDecode_DeployMaskExpansion(t *testing.T) {
	data := make([]byte, deployLen)
	data[0] = byte(domain.KindDeploy)
	binary.LittleEndian.PutUint64(data[1:9], 10)
	binary.LittleEndian.PutUint32(data[9:13], 1<<0|1<<4|1<<12|1<<24)

	got, err := Decode(domain.OREProgramID, data)
	require.NoError(t, err)
	assert.Equal(t, squares(0, 4, 12, 24), got.Deploy.Squares)
	assert.Empty(t, got.Deploy.DroppedBits)
}

func TestDecode_DeployDropsHighBits(t *testing.T) {
	data := make([]byte, deployLen)
	data[0] = byte(domain.KindDeploy)
	binary.LittleEndian.PutUint32(data[9:13], 0xFE000001)

	got, err := Decode(domain.OREProgramID, data)
	require.NoError(t, err)
	assert.Equal(t, squares(0), got.Deploy.Squares)
	assert.Equal(t, []uint8{25, 26, 27, 28, 29, 30, 31}, got.Deploy.DroppedBits)
	for _, s := range got.Deploy.Squares {
		assert.Less(t, int(s), domain.BoardSize)
	}
}

func TestDecode_Truncated(t *testing.T) {
	cases := map[string][]byte{
		"empty":      {},
		"deploy":     make([]byte, deployLen-1),
		"automate":   append([]byte{byte(domain.KindAutomate)}, make([]byte, 40)...),
		"deposit":    {byte(domain.KindDeposit), 1, 2, 3},
		"withdraw":   {byte(domain.KindWithdraw)},
		"claimYield": {byte(domain.KindClaimYield), 0, 0},
	}
	cases["deploy"][0] = byte(domain.KindDeploy)

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(domain.OREProgramID, data)
			assert.ErrorIs(t, err, ErrTruncated)
		})
	}
}

func TestDecode_ResetWithoutPayload(t *testing.T) {
	got, err := Decode(domain.OREProgramID, []byte{byte(domain.KindReset)})
	require.NoError(t, err)
	assert.Equal(t, domain.KindReset, got.Kind)
	assert.Nil(t, got.Reset)
}

func TestDecode_LegacyResetOutOfRangeSquare(t *testing.T) {
	data := make([]byte, resetLen)
	data[0] = byte(domain.KindReset)
	binary.LittleEndian.PutUint64(data[1:9], 55)
	data[9] = 30

	got, err := Decode(domain.OREProgramID, data)
	require.NoError(t, err)
	require.NotNil(t, got.Reset)
	assert.Equal(t, uint64(55), got.Reset.RoundID)
	assert.Nil(t, got.Reset.WinningSquare)
}

func TestDecode_ForeignProgram(t *testing.T) {
	_, err := Decode("11111111111111111111111111111111", []byte{6})
	assert.ErrorIs(t, err, ErrForeignProgram)
}

func TestEncode_DeployPrefersSquaresOverMask(t *testing.T) {
	ix := domain.DecodedInstruction{
		Kind: domain.KindDeploy,
		Deploy: &domain.DeployFields{
			AmountLamports: 1,
			Mask:           0xFFFF,
			Squares:        squares(3, 3, 7),
		},
	}
	data := Encode(ix)
	assert.Equal(t, uint32(1<<3|1<<7), binary.LittleEndian.Uint32(data[9:13]))
}

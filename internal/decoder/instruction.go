// Package decoder turns raw ORE instruction bytes and transaction metadata
// into typed domain events.
package decoder

import (
	"encoding/binary"
	"errors"
	"fmt"

	"ore-strategy-lab/internal/domain"
)

var (
	// ErrTruncated is returned when an instruction is shorter than its kind requires.
	ErrTruncated = errors.New("instruction truncated")
	// ErrForeignProgram is returned when the instruction targets another program.
	ErrForeignProgram = errors.New("instruction for foreign program")
)

// Fixed minimum byte lengths, discriminator included.
const (
	deployLen   = 13 // disc + amount u64 + mask u32
	automateLen = 42 // disc + amount + deposit + fee + mask u64 + strategy u8 + reload u64
	depositLen  = 17 // disc + amount + compound_fee
	amountLen   = 9  // disc + amount
	resetLen    = 11 // disc + round_id + winning_square u8 + motherlode u8 (legacy)
)

// MinLength returns the minimum encoded length for kind.
func MinLength(kind domain.InstructionKind) int {
	switch kind {
	case domain.KindDeploy:
		return deployLen
	case domain.KindAutomate:
		return automateLen
	case domain.KindDeposit:
		return depositLen
	case domain.KindWithdraw, domain.KindClaimYield:
		return amountLen
	default:
		return 1
	}
}

// Decode parses one ORE instruction. Unknown discriminators decode to
// KindUnknown without error. Truncated buffers return ErrTruncated; the
// caller skips the instruction and keeps going.
func Decode(programID string, data []byte) (domain.DecodedInstruction, error) {
	if programID != domain.OREProgramID {
		return domain.DecodedInstruction{}, fmt.Errorf("%w: %s", ErrForeignProgram, programID)
	}
	return decodeData(data)
}

func decodeData(data []byte) (domain.DecodedInstruction, error) {
	if len(data) == 0 {
		return domain.DecodedInstruction{Kind: domain.KindUnknown}, fmt.Errorf("%w: empty data", ErrTruncated)
	}

	ix := domain.DecodedInstruction{
		Kind:          domain.KindFromDiscriminator(data[0]),
		Discriminator: data[0],
	}
	if need := MinLength(ix.Kind); len(data) < need {
		return ix, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrTruncated, ix.Kind, need, len(data))
	}

	switch ix.Kind {
	case domain.KindDeploy:
		mask := binary.LittleEndian.Uint32(data[9:13])
		squares, dropped := domain.SquaresFromMask(uint64(mask))
		ix.Deploy = &domain.DeployFields{
			AmountLamports: readUint64LE(data, 1),
			Mask:           mask,
			Squares:        squares,
			DroppedBits:    dropped,
		}
	case domain.KindAutomate:
		ix.Automate = &domain.AutomateFields{
			AmountLamports:  readUint64LE(data, 1),
			DepositLamports: readUint64LE(data, 9),
			FeeLamports:     readUint64LE(data, 17),
			Mask:            readUint64LE(data, 25),
			Strategy:        data[33],
			Reload:          readUint64LE(data, 34) != 0,
		}
	case domain.KindDeposit:
		ix.Deposit = &domain.DepositFields{
			Amount:      readUint64LE(data, 1),
			CompoundFee: readUint64LE(data, 9),
		}
	case domain.KindWithdraw, domain.KindClaimYield:
		ix.Amount = &domain.AmountFields{Amount: readUint64LE(data, 1)}
	case domain.KindReset:
		if len(data) >= resetLen {
			ix.Reset = decodeLegacyReset(data)
		}
	}

	return ix, nil
}

func decodeLegacyReset(data []byte) *domain.ResetFields {
	r := &domain.ResetFields{
		RoundID:    readUint64LE(data, 1),
		Motherlode: data[10] != 0,
	}
	if sq, err := domain.NewSquareIndex(int(data[9])); err == nil {
		r.WinningSquare = &sq
	}
	return r
}

// readUint64LE reads a little-endian uint64 at offset. Callers check bounds.
func readUint64LE(data []byte, offset int) uint64 {
	return binary.LittleEndian.Uint64(data[offset : offset+8])
}

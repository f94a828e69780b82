package decoder

import (
	"encoding/binary"

	"ore-strategy-lab/internal/domain"
)

// Encode serialises an instruction back to its on-chain byte layout.
// Kinds without payload encode as the discriminator alone. Deploy squares
// are re-packed into the mask; an explicit Mask is used when Squares is empty.
func Encode(ix domain.DecodedInstruction) []byte {
	disc := byte(ix.Kind)
	if ix.Kind == domain.KindUnknown {
		disc = ix.Discriminator
	}

	switch {
	case ix.Kind == domain.KindDeploy && ix.Deploy != nil:
		buf := make([]byte, deployLen)
		buf[0] = disc
		binary.LittleEndian.PutUint64(buf[1:9], ix.Deploy.AmountLamports)
		mask := ix.Deploy.Mask
		if len(ix.Deploy.Squares) > 0 {
			mask = domain.MaskFromSquares(ix.Deploy.Squares)
		}
		binary.LittleEndian.PutUint32(buf[9:13], mask)
		return buf

	case ix.Kind == domain.KindAutomate && ix.Automate != nil:
		a := ix.Automate
		buf := make([]byte, automateLen)
		buf[0] = disc
		binary.LittleEndian.PutUint64(buf[1:9], a.AmountLamports)
		binary.LittleEndian.PutUint64(buf[9:17], a.DepositLamports)
		binary.LittleEndian.PutUint64(buf[17:25], a.FeeLamports)
		binary.LittleEndian.PutUint64(buf[25:33], a.Mask)
		buf[33] = a.Strategy
		if a.Reload {
			binary.LittleEndian.PutUint64(buf[34:42], 1)
		}
		return buf

	case ix.Kind == domain.KindDeposit && ix.Deposit != nil:
		buf := make([]byte, depositLen)
		buf[0] = disc
		binary.LittleEndian.PutUint64(buf[1:9], ix.Deposit.Amount)
		binary.LittleEndian.PutUint64(buf[9:17], ix.Deposit.CompoundFee)
		return buf

	case (ix.Kind == domain.KindWithdraw || ix.Kind == domain.KindClaimYield) && ix.Amount != nil:
		buf := make([]byte, amountLen)
		buf[0] = disc
		binary.LittleEndian.PutUint64(buf[1:9], ix.Amount.Amount)
		return buf

	case ix.Kind == domain.KindReset && ix.Reset != nil:
		buf := make([]byte, resetLen)
		buf[0] = disc
		binary.LittleEndian.PutUint64(buf[1:9], ix.Reset.RoundID)
		buf[9] = 0xFF
		if ix.Reset.WinningSquare != nil {
			buf[9] = byte(*ix.Reset.WinningSquare)
		}
		if ix.Reset.Motherlode {
			buf[10] = 1
		}
		return buf
	}

	return []byte{disc}
}

// DeployInstruction builds a Deploy instruction for the given squares.
func DeployInstruction(amountLamports uint64, squares []domain.SquareIndex) domain.DecodedInstruction {
	return domain.DecodedInstruction{
		Kind:          domain.KindDeploy,
		Discriminator: byte(domain.KindDeploy),
		Deploy: &domain.DeployFields{
			AmountLamports: amountLamports,
			Mask:           domain.MaskFromSquares(squares),
			Squares:        domain.DistinctSquares(squares),
		},
	}
}

// ResetReturnData builds the structured reset event carried in return data:
// disc(8) round_id(8) start_slot(8) end_slot(8) winning_square(8) top_miner_reward(8) motherlode(8).
func ResetReturnData(roundID uint64, winning domain.SquareIndex, motherlodeGrams uint64) []byte {
	buf := make([]byte, 56)
	binary.LittleEndian.PutUint64(buf[8:16], roundID)
	binary.LittleEndian.PutUint64(buf[32:40], uint64(winning))
	binary.LittleEndian.PutUint64(buf[48:56], motherlodeGrams)
	return buf
}

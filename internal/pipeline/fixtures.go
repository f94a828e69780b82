package pipeline

import (
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"

	"ore-strategy-lab/internal/decoder"
	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/solana"
)

// FixturePlayer is a scripted participant of the fixture stream.
type FixturePlayer struct {
	Address string
	Amount  uint64 // lamports per square
	Squares []domain.SquareIndex
}

// FixturePlayers is the default roster: a concentrated whale, a wide coverer
// and two small low-square players.
var FixturePlayers = []FixturePlayer{
	{Address: "Whale1111111111111111111111111111111111111", Amount: 200_000_000, Squares: squares(0, 6, 12, 18, 24)},
	{Address: "Cover1111111111111111111111111111111111111", Amount: 2_000_000, Squares: squares(0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11)},
	{Address: "Small1111111111111111111111111111111111111", Amount: 10_000_000, Squares: squares(7)},
	{Address: "Pair11111111111111111111111111111111111111", Amount: 5_000_000, Squares: squares(3, 12)},
}

const fixtureBoard = "Board11111111111111111111111111111111111111"

func squares(ids ...int) []domain.SquareIndex {
	out := make([]domain.SquareIndex, len(ids))
	for i, id := range ids {
		out[i] = domain.SquareIndex(id)
	}
	return out
}

// FixtureWinner is the winning square of a fixture round.
func FixtureWinner(roundID uint64) domain.SquareIndex {
	return domain.SquareIndex((roundID * 7) % domain.BoardSize)
}

// FixtureStream returns a deterministic transaction stream for rounds
// [first, first+n). Each round holds one deploy per player followed by a
// Reset carrying the round result in return data. Slots increase strictly.
func FixtureStream(first uint64, n int, players []FixturePlayer) []*solana.Transaction {
	var out []*solana.Transaction
	slot := int64(1_000)
	for r := first; r < first+uint64(n); r++ {
		for i, pl := range players {
			data := decoder.Encode(decoder.DeployInstruction(pl.Amount, pl.Squares))
			out = append(out, fixtureTx(fmt.Sprintf("fx-%d-%d", r, i), slot, pl.Address, data, nil))
			slot++
		}
		reset := decoder.Encode(domain.DecodedInstruction{Kind: domain.KindReset, Discriminator: byte(domain.KindReset)})
		meta := &solana.TransactionMeta{ReturnData: &solana.ReturnData{
			ProgramID: domain.OREProgramID,
			Data:      base64.StdEncoding.EncodeToString(decoder.ResetReturnData(r, FixtureWinner(r), 0)),
		}}
		out = append(out, fixtureTx(fmt.Sprintf("fx-%d-reset", r), slot, players[0].Address, reset, meta))
		slot++
	}
	return out
}

func fixtureTx(sig string, slot int64, signer string, data []byte, meta *solana.TransactionMeta) *solana.Transaction {
	if meta == nil {
		meta = &solana.TransactionMeta{}
	}
	return &solana.Transaction{
		Slot:      slot,
		Signature: sig,
		BlockTime: 1_700_000_000 + slot,
		Meta:      meta,
		Message: &solana.TransactionMessage{
			AccountKeys: []string{signer, fixtureBoard, domain.OREProgramID},
			Instructions: []solana.CompiledInstruction{
				{ProgramIDIndex: 2, Accounts: []int{0, 0, 1}, Data: base58.Encode(data)},
			},
		},
	}
}

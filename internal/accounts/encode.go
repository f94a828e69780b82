package accounts

import (
	"encoding/binary"

	"github.com/mr-tron/base58"

	"ore-strategy-lab/internal/domain"
)

// writer is the inverse of cursor. It leaves the header zeroed.
type writer struct {
	buf []byte
	off int
}

func newWriter(size int) *writer { return &writer{buf: make([]byte, size), off: HeaderSize} }

func (w *writer) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.off:w.off+8], v)
	w.off += 8
}

func (w *writer) board(v *[domain.BoardSize]uint64) {
	for _, x := range v {
		w.u64(x)
	}
}

func (w *writer) raw(b []byte) {
	copy(w.buf[w.off:], b)
	w.off += len(b)
}

// pubkey writes a base58 key; an empty or invalid key is written as zeros.
func (w *writer) pubkey(s string) {
	var k [32]byte
	if b, err := base58.Decode(s); err == nil && len(b) == 32 {
		copy(k[:], b)
	}
	w.raw(k[:])
}

// MarshalBinary encodes the board in its on-chain layout.
func (b *Board) MarshalBinary() ([]byte, error) {
	w := newWriter(BoardLen)
	w.u64(b.RoundID)
	w.u64(b.StartSlot)
	w.u64(b.EndSlot)
	return w.buf, nil
}

// MarshalBinary encodes the round in its on-chain layout.
func (r *Round) MarshalBinary() ([]byte, error) {
	w := newWriter(RoundLen)
	w.u64(r.ID)
	w.board(&r.Deployed)
	w.raw(r.SlotHash[:])
	w.board(&r.Count)
	w.u64(r.ExpiresAt)
	w.u64(r.Motherlode)
	w.pubkey(r.RentPayer)
	w.pubkey(r.TopMiner)
	w.u64(r.TopMinerReward)
	w.u64(r.TotalDeployed)
	w.u64(r.TotalMiners)
	w.u64(r.TotalVaulted)
	w.u64(r.TotalWinnings)
	return w.buf, nil
}

// MarshalBinary encodes the treasury in its on-chain layout.
func (t *Treasury) MarshalBinary() ([]byte, error) {
	w := newWriter(TreasuryLen)
	w.u64(t.Balance)
	w.u64(t.BufferA)
	w.u64(t.Motherlode)
	w.raw(t.MinerRewardsFactor[:])
	w.raw(t.StakeRewardsFactor[:])
	w.u64(t.BufferB)
	w.u64(t.TotalRefined)
	w.u64(t.TotalStaked)
	w.u64(t.TotalUnclaimed)
	return w.buf, nil
}

// MarshalBinary encodes the miner in its on-chain layout.
func (m *Miner) MarshalBinary() ([]byte, error) {
	w := newWriter(MinerLen)
	w.pubkey(m.Authority)
	w.board(&m.Deployed)
	w.board(&m.Cumulative)
	w.u64(m.CheckpointFee)
	w.u64(m.CheckpointID)
	w.u64(uint64(m.LastClaimOREAt))
	w.u64(uint64(m.LastClaimSOLAt))
	w.raw(m.RewardsFactor[:])
	w.u64(m.RewardsSOL)
	w.u64(m.RewardsORE)
	w.u64(m.RefinedORE)
	w.u64(m.RoundID)
	w.u64(m.LifetimeRewardsSOL)
	w.u64(m.LifetimeRewardsORE)
	w.u64(m.LifetimeDeployed)
	return w.buf, nil
}

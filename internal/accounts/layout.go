// Package accounts reads the ORE program's fixed-layout account records.
//
// Every record starts with an 8-byte discriminator header that is skipped;
// the remaining fields are little-endian and packed without padding.
package accounts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/mr-tron/base58"

	"ore-strategy-lab/internal/domain"
)

// HeaderSize is the account discriminator prefix.
const HeaderSize = 8

// Record sizes including the header.
const (
	BoardLen    = HeaderSize + 3*8
	RoundLen    = HeaderSize + 8 + 25*8 + 32 + 25*8 + 2*8 + 2*32 + 5*8
	TreasuryLen = HeaderSize + 3*8 + 2*16 + 4*8
	MinerLen    = HeaderSize + 32 + 2*25*8 + 4*8 + 16 + 7*8
)

var (
	// ErrShortAccount is returned when account data is smaller than its layout.
	ErrShortAccount = errors.New("account data too short")
	// ErrAccountNotFound is returned when the account does not exist on chain.
	ErrAccountNotFound = errors.New("account not found")
)

// Board is the singleton tracking the live round.
type Board struct {
	RoundID   uint64
	StartSlot uint64
	EndSlot   uint64
}

// Round is one round's deployment state.
type Round struct {
	ID             uint64
	Deployed       [domain.BoardSize]uint64 // lamports per square
	SlotHash       [32]byte
	Count          [domain.BoardSize]uint64 // miners per square
	ExpiresAt      uint64
	Motherlode     uint64 // ORE grams paid if the motherlode hit
	RentPayer      string
	TopMiner       string
	TopMinerReward uint64
	TotalDeployed  uint64
	TotalMiners    uint64
	TotalVaulted   uint64
	TotalWinnings  uint64
}

// Treasury holds protocol-wide balances.
type Treasury struct {
	Balance            uint64
	BufferA            uint64
	Motherlode         uint64
	MinerRewardsFactor [16]byte
	StakeRewardsFactor [16]byte
	BufferB            uint64
	TotalRefined       uint64
	TotalStaked        uint64
	TotalUnclaimed     uint64
}

// Miner is one authority's mining account.
type Miner struct {
	Authority          string
	Deployed           [domain.BoardSize]uint64
	Cumulative         [domain.BoardSize]uint64
	CheckpointFee      uint64
	CheckpointID       uint64
	LastClaimOREAt     int64
	LastClaimSOLAt     int64
	RewardsFactor      [16]byte
	RewardsSOL         uint64
	RewardsORE         uint64
	RefinedORE         uint64
	RoundID            uint64
	LifetimeRewardsSOL uint64
	LifetimeRewardsORE uint64
	LifetimeDeployed   uint64
}

// cursor walks a record front to back. Bounds are checked once up front by
// the Parse functions.
type cursor struct {
	data []byte
	off  int
}

func newCursor(data []byte) *cursor { return &cursor{data: data, off: HeaderSize} }

func (c *cursor) u64() uint64 {
	v := binary.LittleEndian.Uint64(c.data[c.off : c.off+8])
	c.off += 8
	return v
}

func (c *cursor) i64() int64 { return int64(c.u64()) }

func (c *cursor) board(dst *[domain.BoardSize]uint64) {
	for i := range dst {
		dst[i] = c.u64()
	}
}

func (c *cursor) bytes16(dst *[16]byte) {
	copy(dst[:], c.data[c.off:c.off+16])
	c.off += 16
}

func (c *cursor) bytes32(dst *[32]byte) {
	copy(dst[:], c.data[c.off:c.off+32])
	c.off += 32
}

func (c *cursor) pubkey() string {
	var k [32]byte
	c.bytes32(&k)
	return base58.Encode(k[:])
}

func checkSize(kind string, data []byte, want int) error {
	if len(data) < want {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrShortAccount, kind, want, len(data))
	}
	return nil
}

// ParseBoard decodes a Board account.
func ParseBoard(data []byte) (*Board, error) {
	if err := checkSize("board", data, BoardLen); err != nil {
		return nil, err
	}
	c := newCursor(data)
	return &Board{RoundID: c.u64(), StartSlot: c.u64(), EndSlot: c.u64()}, nil
}

// ParseRound decodes a Round account.
func ParseRound(data []byte) (*Round, error) {
	if err := checkSize("round", data, RoundLen); err != nil {
		return nil, err
	}
	c := newCursor(data)
	r := &Round{ID: c.u64()}
	c.board(&r.Deployed)
	c.bytes32(&r.SlotHash)
	c.board(&r.Count)
	r.ExpiresAt = c.u64()
	r.Motherlode = c.u64()
	r.RentPayer = c.pubkey()
	r.TopMiner = c.pubkey()
	r.TopMinerReward = c.u64()
	r.TotalDeployed = c.u64()
	r.TotalMiners = c.u64()
	r.TotalVaulted = c.u64()
	r.TotalWinnings = c.u64()
	return r, nil
}

// ParseTreasury decodes the Treasury account.
func ParseTreasury(data []byte) (*Treasury, error) {
	if err := checkSize("treasury", data, TreasuryLen); err != nil {
		return nil, err
	}
	c := newCursor(data)
	t := &Treasury{Balance: c.u64(), BufferA: c.u64(), Motherlode: c.u64()}
	c.bytes16(&t.MinerRewardsFactor)
	c.bytes16(&t.StakeRewardsFactor)
	t.BufferB = c.u64()
	t.TotalRefined = c.u64()
	t.TotalStaked = c.u64()
	t.TotalUnclaimed = c.u64()
	return t, nil
}

// ParseMiner decodes a Miner account.
func ParseMiner(data []byte) (*Miner, error) {
	if err := checkSize("miner", data, MinerLen); err != nil {
		return nil, err
	}
	c := newCursor(data)
	m := &Miner{Authority: c.pubkey()}
	c.board(&m.Deployed)
	c.board(&m.Cumulative)
	m.CheckpointFee = c.u64()
	m.CheckpointID = c.u64()
	m.LastClaimOREAt = c.i64()
	m.LastClaimSOLAt = c.i64()
	c.bytes16(&m.RewardsFactor)
	m.RewardsSOL = c.u64()
	m.RewardsORE = c.u64()
	m.RefinedORE = c.u64()
	m.RoundID = c.u64()
	m.LifetimeRewardsSOL = c.u64()
	m.LifetimeRewardsORE = c.u64()
	m.LifetimeDeployed = c.u64()
	return m, nil
}

// RNG folds the slot hash into the round's random value. It returns false
// while the hash is unset (all zero) or the round was skipped (all 0xFF).
func (r *Round) RNG() (uint64, bool) {
	allZero, allOnes := true, true
	for _, b := range r.SlotHash {
		if b != 0x00 {
			allZero = false
		}
		if b != 0xFF {
			allOnes = false
		}
	}
	if allZero || allOnes {
		return 0, false
	}
	h := r.SlotHash[:]
	return binary.LittleEndian.Uint64(h[0:8]) ^
		binary.LittleEndian.Uint64(h[8:16]) ^
		binary.LittleEndian.Uint64(h[16:24]) ^
		binary.LittleEndian.Uint64(h[24:32]), true
}

// WinningSquare returns the revealed square, or false before the reveal.
func (r *Round) WinningSquare() (domain.SquareIndex, bool) {
	rng, ok := r.RNG()
	if !ok {
		return 0, false
	}
	return domain.SquareIndex(rng % domain.BoardSize), true
}

// IsMotherlode reports whether the revealed round hit the motherlode
// (1 in 625).
func (r *Round) IsMotherlode() bool {
	rng, ok := r.RNG()
	return ok && bits.Reverse64(rng)%625 == 0
}

// RoundResult converts a revealed round into decoder-shaped result fields.
func (r *Round) RoundResult() (domain.RoundResultFields, bool) {
	sq, ok := r.WinningSquare()
	if !ok {
		return domain.RoundResultFields{}, false
	}
	return domain.RoundResultFields{
		RoundID:       r.ID,
		WinningSquare: sq,
		Motherlode:    r.IsMotherlode(),
		Source:        domain.ResultFromAccount,
	}, true
}

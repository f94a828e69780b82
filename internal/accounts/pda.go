package accounts

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ErrNoViableBump is returned when every bump seed lands on the curve.
var ErrNoViableBump = errors.New("no viable bump seed")

const pdaMarker = "ProgramDerivedAddress"

// Seed prefixes of the ORE program accounts.
var (
	seedBoard    = []byte("board")
	seedRound    = []byte("round")
	seedMiner    = []byte("miner")
	seedTreasury = []byte("treasury")
)

// FindProgramAddress derives a program address from seeds, searching bump
// seeds from 255 down until the hash falls off the ed25519 curve.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	program, err := decodePubkey(programID)
	if err != nil {
		return "", 0, fmt.Errorf("decode program id: %w", err)
	}

	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{byte(bump)})
		h.Write(program)
		h.Write([]byte(pdaMarker))
		sum := h.Sum(nil)

		if !isOnCurve(sum) {
			return base58.Encode(sum), uint8(bump), nil
		}
	}
	return "", 0, ErrNoViableBump
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

func decodePubkey(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("pubkey %q has %d bytes", s, len(b))
	}
	return b, nil
}

// BoardAddress derives the board PDA.
func BoardAddress(programID string) (string, error) {
	addr, _, err := FindProgramAddress([][]byte{seedBoard}, programID)
	return addr, err
}

// RoundAddress derives the PDA of round id.
func RoundAddress(programID string, id uint64) (string, error) {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], id)
	addr, _, err := FindProgramAddress([][]byte{seedRound, le[:]}, programID)
	return addr, err
}

// MinerAddress derives the miner PDA for an authority.
func MinerAddress(programID, authority string) (string, error) {
	auth, err := decodePubkey(authority)
	if err != nil {
		return "", fmt.Errorf("decode authority: %w", err)
	}
	addr, _, err := FindProgramAddress([][]byte{seedMiner, auth}, programID)
	return addr, err
}

// TreasuryAddress derives the treasury PDA.
func TreasuryAddress(programID string) (string, error) {
	addr, _, err := FindProgramAddress([][]byte{seedTreasury}, programID)
	return addr, err
}

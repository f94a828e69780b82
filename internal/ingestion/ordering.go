package ingestion

import (
	"errors"
	"sort"

	"ore-strategy-lab/internal/solana"
)

// ErrInvalidOrdering is returned when signatures are not properly ordered.
var ErrInvalidOrdering = errors.New("signatures are not in deterministic order")

// SortSignatures orders signatures by (slot ASC, signature ASC). RPC pages
// arrive newest first; the pipeline consumes them oldest first.
func SortSignatures(sigs []solana.SignatureInfo) {
	sort.Slice(sigs, func(i, j int) bool {
		return compareSignatures(sigs[i], sigs[j]) < 0
	})
}

// ValidateSignatureOrdering checks that sigs are strictly ordered.
// Returns ErrInvalidOrdering if not; duplicates count as misordered.
func ValidateSignatureOrdering(sigs []solana.SignatureInfo) error {
	for i := 1; i < len(sigs); i++ {
		if compareSignatures(sigs[i-1], sigs[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// DedupeSignatures drops repeated signatures, keeping the first occurrence.
func DedupeSignatures(sigs []solana.SignatureInfo) []solana.SignatureInfo {
	seen := make(map[string]struct{}, len(sigs))
	out := sigs[:0]
	for _, s := range sigs {
		if _, ok := seen[s.Signature]; ok {
			continue
		}
		seen[s.Signature] = struct{}{}
		out = append(out, s)
	}
	return out
}

// compareSignatures returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (slot ASC, signature ASC)
func compareSignatures(a, b solana.SignatureInfo) int {
	if a.Slot != b.Slot {
		if a.Slot < b.Slot {
			return -1
		}
		return 1
	}
	if a.Signature != b.Signature {
		if a.Signature < b.Signature {
			return -1
		}
		return 1
	}
	return 0
}

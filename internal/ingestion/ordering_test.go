package ingestion

import (
	"errors"
	"testing"

	"ore-strategy-lab/internal/solana"
)

func TestSortSignatures(t *testing.T) {
	// Intentionally newest first, as returned by getSignaturesForAddress
	sigs := []solana.SignatureInfo{
		{Slot: 300, Signature: "c"},
		{Slot: 200, Signature: "b"},
		{Slot: 100, Signature: "z"},
		{Slot: 100, Signature: "a"},
	}

	SortSignatures(sigs)

	expected := []struct {
		slot int64
		sig  string
	}{
		{100, "a"},
		{100, "z"},
		{200, "b"},
		{300, "c"},
	}
	for i, exp := range expected {
		if sigs[i].Slot != exp.slot || sigs[i].Signature != exp.sig {
			t.Errorf("Index %d: got (%d, %s), want (%d, %s)", i, sigs[i].Slot, sigs[i].Signature, exp.slot, exp.sig)
		}
	}
}

func TestSortSignatures_Empty(t *testing.T) {
	var sigs []solana.SignatureInfo
	SortSignatures(sigs) // Should not panic
}

func TestValidateSignatureOrdering(t *testing.T) {
	ordered := []solana.SignatureInfo{{Slot: 1, Signature: "a"}, {Slot: 1, Signature: "b"}, {Slot: 2, Signature: "a"}}
	if err := ValidateSignatureOrdering(ordered); err != nil {
		t.Errorf("Expected nil error for ordered signatures, got %v", err)
	}

	unordered := []solana.SignatureInfo{{Slot: 2, Signature: "a"}, {Slot: 1, Signature: "b"}}
	if err := ValidateSignatureOrdering(unordered); !errors.Is(err, ErrInvalidOrdering) {
		t.Errorf("Expected ErrInvalidOrdering, got %v", err)
	}

	duplicate := []solana.SignatureInfo{{Slot: 1, Signature: "a"}, {Slot: 1, Signature: "a"}}
	if err := ValidateSignatureOrdering(duplicate); !errors.Is(err, ErrInvalidOrdering) {
		t.Errorf("Expected ErrInvalidOrdering for duplicates, got %v", err)
	}
}

func TestDedupeSignatures(t *testing.T) {
	sigs := []solana.SignatureInfo{{Signature: "a"}, {Signature: "b"}, {Signature: "a"}}
	out := DedupeSignatures(sigs)
	if len(out) != 2 || out[0].Signature != "a" || out[1].Signature != "b" {
		t.Errorf("Unexpected dedupe result: %+v", out)
	}
}

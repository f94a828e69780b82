package solana

import (
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"
)

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// Failed reports whether the transaction behind the signature errored on chain.
func (s SignatureInfo) Failed() bool {
	return s.Err != nil
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}

// Transaction represents a Solana transaction fetched with "json" encoding.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds), 0 if unknown
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// Succeeded reports whether the transaction executed without error.
// A transaction without metadata is treated as failed.
func (t *Transaction) Succeeded() bool {
	return t != nil && t.Meta != nil && t.Meta.Err == nil
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err         interface{}
	LogMessages []string
	ReturnData  *ReturnData
}

// ReturnData is the program return data attached to a transaction.
type ReturnData struct {
	ProgramID string
	Data      string // base64 encoded
}

// Bytes decodes the base64 payload.
func (r *ReturnData) Bytes() ([]byte, error) {
	if r == nil || r.Data == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(r.Data)
	if err != nil {
		return nil, fmt.Errorf("decode return data: %w", err)
	}
	return b, nil
}

// TransactionMessage contains the parsed transaction message.
type TransactionMessage struct {
	AccountKeys  []string
	Instructions []CompiledInstruction
}

// CompiledInstruction is a top-level instruction referencing account keys by index.
type CompiledInstruction struct {
	ProgramIDIndex int
	Accounts       []int
	Data           string // base58 encoded
}

// DecodeData returns the raw instruction bytes.
func (ix CompiledInstruction) DecodeData() ([]byte, error) {
	if ix.Data == "" {
		return nil, nil
	}
	b, err := base58.Decode(ix.Data)
	if err != nil {
		return nil, fmt.Errorf("decode instruction data: %w", err)
	}
	return b, nil
}

// ProgramID resolves the instruction's program address against the message keys.
func (m *TransactionMessage) ProgramID(ix CompiledInstruction) (string, bool) {
	if m == nil || ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(m.AccountKeys) {
		return "", false
	}
	return m.AccountKeys[ix.ProgramIDIndex], true
}

// ResolveAccounts maps account indices to addresses, skipping indices out of range.
func (m *TransactionMessage) ResolveAccounts(ix CompiledInstruction) []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(ix.Accounts))
	for _, idx := range ix.Accounts {
		if idx >= 0 && idx < len(m.AccountKeys) {
			out = append(out, m.AccountKeys[idx])
		}
	}
	return out
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// Bytes decodes the base64 account data.
func (a *AccountInfo) Bytes() ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return b, nil
}

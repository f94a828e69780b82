package stub

import (
	"context"
	"encoding/base64"
	"sync"

	"ore-strategy-lab/internal/solana"
)

// RPCClient implements solana.RPCClient over in-memory fixtures.
// Unknown transactions and accounts return nil, nil like a real node.
type RPCClient struct {
	mu           sync.RWMutex
	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo // newest first
	Accounts     map[string]*solana.AccountInfo
	Balances     map[string]uint64
	Slot         int64

	// Calls counts GetTransaction invocations.
	Calls int
}

var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
		Accounts:     make(map[string]*solana.AccountInfo),
		Balances:     make(map[string]uint64),
	}
}

// GetTransaction returns a stored transaction.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	return c.Transactions[signature], nil
}

// GetSignaturesForAddress pages over stored signatures honouring Before, Until and Limit.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sigs := c.Signatures[address]
	start := 0
	if opts != nil && opts.Before != "" {
		start = len(sigs)
		for i, s := range sigs {
			if s.Signature == opts.Before {
				start = i + 1
				break
			}
		}
	}

	var out []solana.SignatureInfo
	for _, s := range sigs[start:] {
		if opts != nil && opts.Until != "" && s.Signature == opts.Until {
			break
		}
		out = append(out, s)
		if opts != nil && opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// GetAccountInfo returns a stored account.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Accounts[pubkey], nil
}

// GetBalance returns a stored balance (zero when absent).
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Balances[pubkey], nil
}

// GetSlot returns the configured slot.
func (c *RPCClient) GetSlot(context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Slot, nil
}

// AddTransaction stores a transaction and prepends its signature to the
// program's signature list so that newest-first order is kept.
func (c *RPCClient) AddTransaction(program string, tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
	bt := tx.BlockTime
	info := solana.SignatureInfo{Signature: tx.Signature, Slot: tx.Slot, BlockTime: &bt}
	if tx.Meta != nil {
		info.Err = tx.Meta.Err
	}
	c.Signatures[program] = append([]solana.SignatureInfo{info}, c.Signatures[program]...)
}

// SetAccount stores raw account bytes.
func (c *RPCClient) SetAccount(pubkey, owner string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = &solana.AccountInfo{
		Owner: owner,
		Data:  base64.StdEncoding.EncodeToString(data),
	}
}

// SetBalance stores a lamport balance.
func (c *RPCClient) SetBalance(pubkey string, lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[pubkey] = lamports
}

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/observability"
	"ore-strategy-lab/internal/solana"
	"ore-strategy-lab/internal/storage"
)

const (
	defaultPageSize = 1000
	defaultMaxPages = 10
	maxRetries      = 3
	baseRetryDelay  = 500 * time.Millisecond
)

// PollerOptions contains configuration for creating a Poller.
type PollerOptions struct {
	RPC        solana.RPCClient
	ProgramID  string
	Signatures storage.SignatureStore
	Processor  Processor
	PageSize   int           // Default: 1000 signatures per getSignaturesForAddress call
	MaxPages   int           // Default: 10 pages per poll
	RetryDelay time.Duration // Default: 500ms, doubled per GetTransaction retry
	Logger     *log.Logger
}

// Poller pulls new program signatures since the stored cursor and feeds the
// transactions to the processor in (slot, signature) order.
type Poller struct {
	rpc        solana.RPCClient
	programID  string
	signatures storage.SignatureStore
	processor  Processor
	pageSize   int
	maxPages   int
	retryDelay time.Duration
	logger     *log.Logger
}

// NewPoller creates a new signature poller.
func NewPoller(opts PollerOptions) *Poller {
	if opts.ProgramID == "" {
		opts.ProgramID = domain.OREProgramID
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = baseRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Poller{
		rpc:        opts.RPC,
		programID:  opts.ProgramID,
		signatures: opts.Signatures,
		processor:  opts.Processor,
		pageSize:   opts.PageSize,
		maxPages:   opts.MaxPages,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger,
	}
}

// PollResult contains statistics from one poll.
type PollResult struct {
	Fetched    int // signatures returned by RPC
	Processed  int // transactions fed to the processor
	Duplicates int // already processed signatures
	Missing    int // signatures whose transaction was not available
	Foreign    int // transactions that did not invoke the program
	HighSlot   int64
	Duration   time.Duration
}

// Poll processes every signature newer than the cursor, bounded by MaxPages.
func (p *Poller) Poll(ctx context.Context) (*PollResult, error) {
	until := ""
	if p.signatures != nil {
		cur, err := p.signatures.Cursor(ctx)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("load cursor: %w", err)
		default:
			until = cur.Signature
		}
	}
	return p.run(ctx, until, p.maxPages*p.pageSize)
}

// Backfill processes the newest limit signatures regardless of the cursor.
// Already processed signatures are still skipped.
func (p *Poller) Backfill(ctx context.Context, limit int) (*PollResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("backfill: %w: limit must be positive", storage.ErrInvalidInput)
	}
	return p.run(ctx, "", limit)
}

func (p *Poller) run(ctx context.Context, until string, limit int) (*PollResult, error) {
	start := time.Now()
	result := &PollResult{}

	sigs, err := p.collect(ctx, until, limit)
	if err != nil {
		return result, err
	}
	result.Fetched = len(sigs)

	sigs = DedupeSignatures(sigs)
	SortSignatures(sigs)

	for _, sig := range sigs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if p.signatures != nil {
			done, err := p.signatures.IsProcessed(ctx, sig.Signature)
			if err != nil {
				return result, fmt.Errorf("check signature %s: %w", sig.Signature, err)
			}
			if done {
				result.Duplicates++
				observability.RecordDuplicate()
				continue
			}
		}

		tx, err := p.getTransaction(ctx, sig.Signature)
		if err != nil {
			return result, fmt.Errorf("get transaction %s: %w", sig.Signature, err)
		}
		if tx == nil {
			// not yet available at this commitment; retried on the next poll
			p.logger.Printf("[poller] transaction %s not available", sig.Signature)
			result.Missing++
			break
		}

		_, ok, err := p.processor.ProcessTransaction(ctx, tx)
		if err != nil {
			return result, fmt.Errorf("process %s: %w", sig.Signature, err)
		}
		if ok {
			result.Processed++
		} else {
			result.Foreign++
		}

		if p.signatures != nil {
			if err := p.signatures.MarkProcessed(ctx, sig.Signature, sig.Slot); err != nil {
				return result, fmt.Errorf("mark %s: %w", sig.Signature, err)
			}
		}
		if sig.Slot > result.HighSlot {
			result.HighSlot = sig.Slot
		}
	}

	result.Duration = time.Since(start)
	if result.Processed > 0 || result.Duplicates > 0 {
		p.logger.Printf("[poller] fetched=%d processed=%d duplicates=%d missing=%d foreign=%d high_slot=%d in %v",
			result.Fetched, result.Processed, result.Duplicates, result.Missing, result.Foreign, result.HighSlot, result.Duration)
	}
	return result, nil
}

// collect pages backwards from the newest signature until the cursor, an
// empty page or limit signatures.
func (p *Poller) collect(ctx context.Context, until string, limit int) ([]solana.SignatureInfo, error) {
	var (
		out    []solana.SignatureInfo
		before string
	)
	for len(out) < limit {
		opts := &solana.SignaturesOpts{Before: before, Until: until, Limit: p.pageSize}
		if rest := limit - len(out); rest < opts.Limit {
			opts.Limit = rest
		}

		began := time.Now()
		page, err := p.rpc.GetSignaturesForAddress(ctx, p.programID, opts)
		observability.RecordRPCLatency("getSignaturesForAddress", time.Since(began).Seconds())
		if err != nil {
			return nil, fmt.Errorf("get signatures: %w", err)
		}
		out = append(out, page...)
		if len(page) < opts.Limit {
			break
		}
		before = page[len(page)-1].Signature
	}
	return out, nil
}

// getTransaction fetches a transaction with exponential backoff retry.
func (p *Poller) getTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		began := time.Now()
		tx, err := p.rpc.GetTransaction(ctx, signature)
		observability.RecordRPCLatency("getTransaction", time.Since(began).Seconds())
		if err == nil {
			return tx, nil
		}
		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		delay := p.retryDelay * time.Duration(1<<attempt)
		p.logger.Printf("[poller] retry %d/%d for GetTransaction %s after %v: %v", attempt+1, maxRetries, signature, delay, err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

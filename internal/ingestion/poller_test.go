package ingestion

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/pipeline"
	"ore-strategy-lab/internal/solana"
	"ore-strategy-lab/internal/solana/stub"
	"ore-strategy-lab/internal/storage/memory"
)

// recordingProcessor records the signatures it is fed.
type recordingProcessor struct {
	mu      sync.Mutex
	seen    []string
	foreign map[string]bool
	fail    string
}

func (p *recordingProcessor) ProcessTransaction(_ context.Context, tx *solana.Transaction) (domain.ParsedEvent, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tx.Signature == p.fail {
		return domain.ParsedEvent{}, true, errors.New("boom")
	}
	p.seen = append(p.seen, tx.Signature)
	return domain.ParsedEvent{Signature: tx.Signature}, !p.foreign[tx.Signature], nil
}

func (p *recordingProcessor) signatures() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}

func addTx(rpc *stub.RPCClient, sig string, slot int64) {
	rpc.AddTransaction(domain.OREProgramID, &solana.Transaction{
		Signature: sig,
		Slot:      slot,
		Meta:      &solana.TransactionMeta{},
		Message:   &solana.TransactionMessage{},
	})
}

func newTestPoller(rpc solana.RPCClient, sigs *memory.SignatureStore, proc Processor, pageSize int) *Poller {
	return NewPoller(PollerOptions{
		RPC:        rpc,
		Signatures: sigs,
		Processor:  proc,
		PageSize:   pageSize,
		RetryDelay: time.Millisecond,
		Logger:     log.New(&bytes.Buffer{}, "", 0),
	})
}

func TestPoller_ProcessesInChainOrder(t *testing.T) {
	rpc := stub.NewRPCClient()
	addTx(rpc, "b", 10)
	addTx(rpc, "a", 10)
	addTx(rpc, "c", 11)
	addTx(rpc, "d", 12)

	sigs := memory.NewSignatureStore()
	proc := &recordingProcessor{foreign: map[string]bool{"c": true}}
	p := newTestPoller(rpc, sigs, proc, 2)

	res, err := p.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "d"}, proc.signatures())
	assert.Equal(t, 4, res.Fetched)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 1, res.Foreign)
	assert.Equal(t, int64(12), res.HighSlot)

	cur, err := sigs.Cursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "d", cur.Signature)
}

func TestPoller_ResumesFromCursor(t *testing.T) {
	rpc := stub.NewRPCClient()
	addTx(rpc, "a", 1)
	addTx(rpc, "b", 2)

	sigs := memory.NewSignatureStore()
	proc := &recordingProcessor{}
	p := newTestPoller(rpc, sigs, proc, 10)
	ctx := context.Background()

	_, err := p.Poll(ctx)
	require.NoError(t, err)

	addTx(rpc, "c", 3)
	res, err := p.Poll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, []string{"a", "b", "c"}, proc.signatures())

	res, err = p.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Fetched)
}

func TestPoller_BackfillSkipsProcessed(t *testing.T) {
	rpc := stub.NewRPCClient()
	addTx(rpc, "a", 1)
	addTx(rpc, "b", 2)
	addTx(rpc, "c", 3)

	sigs := memory.NewSignatureStore()
	ctx := context.Background()
	require.NoError(t, sigs.MarkProcessed(ctx, "b", 2))

	proc := &recordingProcessor{}
	p := newTestPoller(rpc, sigs, proc, 10)

	res, err := p.Backfill(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, []string{"c"}, proc.signatures())

	_, err = p.Backfill(ctx, 0)
	assert.Error(t, err)
}

func TestPoller_StopsAtMissingTransaction(t *testing.T) {
	rpc := stub.NewRPCClient()
	addTx(rpc, "a", 1)
	rpc.Signatures[domain.OREProgramID] = append(
		[]solana.SignatureInfo{{Signature: "gone", Slot: 2}},
		rpc.Signatures[domain.OREProgramID]...,
	)
	addTx(rpc, "c", 3)

	sigs := memory.NewSignatureStore()
	proc := &recordingProcessor{}
	p := newTestPoller(rpc, sigs, proc, 10)

	res, err := p.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Missing)
	assert.Equal(t, []string{"a"}, proc.signatures())

	done, err := sigs.IsProcessed(context.Background(), "c")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestPoller_ProcessorErrorLeavesSignatureUnmarked(t *testing.T) {
	rpc := stub.NewRPCClient()
	addTx(rpc, "a", 1)

	sigs := memory.NewSignatureStore()
	p := newTestPoller(rpc, sigs, &recordingProcessor{fail: "a"}, 10)

	_, err := p.Poll(context.Background())
	require.Error(t, err)

	done, err := sigs.IsProcessed(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestPoller_FeedsPipeline(t *testing.T) {
	rpc := stub.NewRPCClient()
	for _, tx := range pipeline.FixtureStream(1, 2, pipeline.FixturePlayers) {
		rpc.AddTransaction(domain.OREProgramID, tx)
	}

	pl := pipeline.New(pipeline.Options{Logger: log.New(&bytes.Buffer{}, "", 0)})
	pl.BeginRound(1)
	p := newTestPoller(rpc, memory.NewSignatureStore(), pl, 3)

	res, err := p.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, res.Processed)
	status := pl.Status()
	assert.Equal(t, uint64(2), status.RoundsResolved)
	assert.Equal(t, uint64(3), status.CurrentRound)
}

// downArchive rejects the first failures inserts.
type downArchive struct {
	*memory.EventStore
	failures int
}

func (a *downArchive) InsertEvents(ctx context.Context, events []domain.ParsedEvent) error {
	if a.failures > 0 {
		a.failures--
		return errors.New("clickhouse down")
	}
	return a.EventStore.InsertEvents(ctx, events)
}

func TestPoller_ArchiveFailureDoesNotReplayDeploy(t *testing.T) {
	rpc := stub.NewRPCClient()
	deploy := pipeline.FixtureStream(1, 1, pipeline.FixturePlayers)[0]
	rpc.AddTransaction(domain.OREProgramID, deploy)

	archive := &downArchive{EventStore: memory.NewEventStore(), failures: 1}
	pl := pipeline.New(pipeline.Options{
		Stores:         pipeline.Stores{Events: archive},
		EventBatchSize: 1,
		Logger:         log.New(&bytes.Buffer{}, "", 0),
	})
	pl.BeginRound(1)
	sigs := memory.NewSignatureStore()
	p := newTestPoller(rpc, sigs, pl, 10)
	ctx := context.Background()

	res, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	done, err := sigs.IsProcessed(ctx, deploy.Signature)
	require.NoError(t, err)
	assert.True(t, done)

	_, err = p.Poll(ctx)
	require.NoError(t, err)
	_, err = p.Backfill(ctx, 10)
	require.NoError(t, err)

	// 200_000_000 lamports on each of five squares, counted once
	var total uint64
	for _, st := range pl.SquareStats() {
		total += st.TotalDeployed
	}
	assert.Equal(t, uint64(1_000_000_000), total)

	require.NoError(t, pl.Flush(ctx))
	assert.Len(t, archive.Events(), 1)
}

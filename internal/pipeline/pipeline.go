// Package pipeline wires the decoder, tracker, resolver and learning engines
// into a single-writer event processor with persistence hooks.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"ore-strategy-lab/internal/accounts"
	"ore-strategy-lab/internal/consensus"
	"ore-strategy-lab/internal/decoder"
	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/learning"
	"ore-strategy-lab/internal/observability"
	"ore-strategy-lab/internal/optimizer"
	"ore-strategy-lab/internal/resolver"
	"ore-strategy-lab/internal/solana"
	"ore-strategy-lab/internal/storage"
	"ore-strategy-lab/internal/tracker"
)

// Defaults.
const (
	DefaultConsensusSquares = 5
	DefaultWhaleCount       = 10
	DefaultEventBatchSize   = 500
)

// LearningStateKey is the StateStore key of the learning engine snapshot.
const LearningStateKey = "learning"

// RoundResults reads a round's revealed result from chain state. It returns
// false while the round is unrevealed. *accounts.Reader satisfies it.
type RoundResults interface {
	RoundResult(ctx context.Context, id uint64) (domain.RoundResultFields, bool, error)
}

// Stores are the optional persistence backends. Nil stores are skipped.
type Stores struct {
	SquareStats storage.SquareStatStore
	Profiles    storage.ProfileStore
	Outcomes    storage.RoundOutcomeStore
	Strategies  storage.StrategyStore
	Events      storage.EventStore
	State       storage.StateStore
}

// Options configures a Pipeline.
type Options struct {
	ProgramID string

	Tracker   tracker.Options
	Resolver  resolver.Options
	Learning  learning.Options
	Consensus consensus.Options
	Optimizer optimizer.Options

	ConsensusSquares int // squares requested from the consensus merge
	WhaleCount       int // top profiles by deployment fed to whale following
	EventBatchSize   int // archived events buffered before a flush

	Stores       Stores
	RoundResults RoundResults // optional, fills Resets whose outcome was not decoded
	Logger       *log.Logger
}

func (o *Options) withDefaults() {
	if o.ProgramID == "" {
		o.ProgramID = domain.OREProgramID
	}
	if o.ConsensusSquares <= 0 {
		o.ConsensusSquares = DefaultConsensusSquares
	}
	if o.WhaleCount <= 0 {
		o.WhaleCount = DefaultWhaleCount
	}
	if o.EventBatchSize <= 0 {
		o.EventBatchSize = DefaultEventBatchSize
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	for _, l := range []**log.Logger{&o.Tracker.Logger, &o.Learning.Logger, &o.Consensus.Logger, &o.Optimizer.Logger} {
		if *l == nil {
			*l = o.Logger
		}
	}
}

// Pipeline runs decode, apply, resolve, learn, analyze and decide behind one
// mutex. All engine state is owned here.
type Pipeline struct {
	mu        sync.Mutex
	persistMu sync.Mutex // serializes store writes
	opts      Options
	logger    *log.Logger
	clock     func() time.Time

	classifier *decoder.Classifier
	tracker    *tracker.Tracker
	resolver   *resolver.Resolver
	learning   *learning.Engine
	consensus  *consensus.Engine
	optimizer  *optimizer.Optimizer

	pending      []domain.ParsedEvent   // events not yet archived
	outcomes     []domain.RoundOutcome  // outcomes not yet saved
	runs         []*storage.StrategyRun // strategy runs not yet saved
	writeErrors  uint64
	lastRecs     []consensus.Recommendation
	savedRun     string
	lastOutcome  *domain.RoundOutcome
	resolved     uint64
	unresolved   uint64
	lastDecision *domain.Recommendation
}

// New creates a pipeline with empty engines.
func New(opts Options) *Pipeline {
	opts.withDefaults()
	t := tracker.New(opts.Tracker)
	return &Pipeline{
		opts:   opts,
		logger: opts.Logger,
		clock:  func() time.Time { return time.Now().UTC() },
		classifier: decoder.NewClassifier(decoder.ClassifierOptions{
			ProgramID: opts.ProgramID,
			Logger:    opts.Logger,
		}),
		tracker:   t,
		resolver:  resolver.New(opts.Resolver),
		learning:  learning.New(t, opts.Learning),
		consensus: consensus.New(opts.Consensus),
		optimizer: optimizer.New(opts.Optimizer),
	}
}

// WithClock sets a custom clock for strategy run timestamps.
func (p *Pipeline) WithClock(clock func() time.Time) *Pipeline {
	p.clock = clock
	return p
}

// Load restores engine state from the configured stores. Missing data is
// not an error; a fresh deployment starts empty.
func (p *Pipeline) Load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.opts.Stores
	if st.SquareStats != nil {
		stats, err := st.SquareStats.Load(ctx)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return fmt.Errorf("load square stats: %w", err)
		default:
			if err := p.tracker.LoadSquareStats(stats); err != nil {
				return err
			}
		}
	}

	if st.Profiles != nil {
		profiles, err := st.Profiles.LoadAll(ctx)
		if err != nil {
			return fmt.Errorf("load profiles: %w", err)
		}
		p.tracker.LoadProfiles(profiles)
	}

	if st.State != nil {
		raw, err := st.State.Get(ctx, LearningStateKey)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return fmt.Errorf("load learning state: %w", err)
		default:
			var s learning.State
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("decode learning state: %w", err)
			}
			if err := p.learning.Restore(s); err != nil {
				return err
			}
			p.savedRun = s.AnalysisID
		}
	}

	if st.Outcomes != nil {
		recent, err := st.Outcomes.ListRecent(ctx, consensusHistory(p.opts.Consensus))
		if err != nil {
			return fmt.Errorf("load round history: %w", err)
		}
		rounds := make([]consensus.Round, 0, len(recent))
		for i := len(recent) - 1; i >= 0; i-- {
			rounds = append(rounds, consensus.RoundFromOutcome(*recent[i]))
		}
		p.consensus.LoadHistory(rounds)
		if len(recent) > 0 && p.tracker.CurrentRound() == 0 {
			p.tracker.BeginRound(recent[0].RoundID + 1)
		}
	}

	p.logger.Printf("[pipeline] loaded %d profiles, %d rounds of history, %d wins",
		p.tracker.ProfileCount(), len(p.consensus.History()), p.learning.TotalWins())
	return nil
}

func consensusHistory(o consensus.Options) int {
	if o.MaxHistory > 0 {
		return o.MaxHistory
	}
	return consensus.DefaultMaxHistory
}

// ProcessTransaction classifies tx and feeds the resulting event. It returns
// false when the transaction does not touch the program.
//
// Once an event is applied it is never reported as failed: store writes that
// fail stay queued and are retried on the next write or Flush. A caller that
// replayed the transaction would count it twice.
func (p *Pipeline) ProcessTransaction(ctx context.Context, tx *solana.Transaction) (domain.ParsedEvent, bool, error) {
	ev, ok := p.classifier.Classify(tx)
	if !ok {
		return domain.ParsedEvent{}, false, nil
	}
	p.ProcessEvent(ctx, ev)
	return ev, true, nil
}

// ProcessEvent applies one event. A successful Reset carrying a round result
// resolves the booked round and returns its outcome. Store failures are
// logged and retried later.
func (p *Pipeline) ProcessEvent(ctx context.Context, ev domain.ParsedEvent) *domain.RoundOutcome {
	if ev.CompletionUnknown && p.opts.RoundResults != nil && isLiveReset(ev) {
		p.fillFromAccount(ctx, &ev)
	}

	p.mu.Lock()
	p.tracker.Apply(ev)
	observability.RecordEvent(ev)
	if p.opts.Stores.Events != nil {
		p.pending = append(p.pending, ev)
	}

	var outcome *domain.RoundOutcome
	if isLiveReset(ev) {
		if ev.RoundResult != nil {
			outcome = p.resolveLocked(ev)
			p.queueRunLocked(p.pendingRunLocked())
		} else {
			p.unresolved++
		}
	}
	if outcome != nil && outcome.RoundID != 0 && p.opts.Stores.Outcomes != nil {
		p.outcomes = append(p.outcomes, *outcome)
	}
	due := len(p.outcomes) > 0 || len(p.runs) > 0 || len(p.pending) >= p.opts.EventBatchSize
	p.mu.Unlock()

	if due {
		if err := p.persist(ctx, false); err != nil {
			p.logger.Printf("[pipeline] store write deferred: %v", err)
		}
	}
	return outcome
}

func isLiveReset(ev domain.ParsedEvent) bool {
	return ev.Kind == domain.KindReset && ev.Success && !ev.Gap
}

// fillFromAccount resolves a Reset whose logs carried no result by reading
// the round account of the tracked round.
func (p *Pipeline) fillFromAccount(ctx context.Context, ev *domain.ParsedEvent) {
	id := p.CurrentRound()
	if id == 0 {
		return
	}
	res, ok, err := p.opts.RoundResults.RoundResult(ctx, id)
	switch {
	case err != nil:
		p.logger.Printf("[pipeline] %s: read round %d: %v", ev.Signature, id, err)
	case !ok:
		p.logger.Printf("[pipeline] %s: round %d not revealed yet", ev.Signature, id)
	default:
		ev.RoundResult = &res
		ev.CompletionUnknown = false
	}
}

// persist writes queued outcomes, strategy runs and archived events. The
// event batch is written when it is full or when all is set. Anything that
// fails goes back to the front of its queue.
func (p *Pipeline) persist(ctx context.Context, all bool) error {
	p.persistMu.Lock()
	defer p.persistMu.Unlock()

	p.mu.Lock()
	outcomes, runs := p.outcomes, p.runs
	p.outcomes, p.runs = nil, nil
	var batch []domain.ParsedEvent
	if len(p.pending) > 0 && (all || len(p.pending) >= p.opts.EventBatchSize) {
		batch, p.pending = p.pending, nil
	}
	p.mu.Unlock()

	st := p.opts.Stores
	var (
		errs         []error
		keptOutcomes []domain.RoundOutcome
		keptRuns     []*storage.StrategyRun
	)
	for i := range outcomes {
		err := st.Outcomes.Save(ctx, &outcomes[i])
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			errs = append(errs, fmt.Errorf("save round outcome %d: %w", outcomes[i].RoundID, err))
			keptOutcomes = append(keptOutcomes, outcomes[i])
		}
	}
	for _, run := range runs {
		if err := p.saveRun(ctx, run); err != nil {
			errs = append(errs, err)
			keptRuns = append(keptRuns, run)
		}
	}
	if len(batch) > 0 {
		if err := st.Events.InsertEvents(ctx, batch); err != nil {
			errs = append(errs, fmt.Errorf("archive events: %w", err))
		} else {
			batch = nil
		}
	}

	if len(errs) == 0 {
		return nil
	}
	p.mu.Lock()
	p.outcomes = append(keptOutcomes, p.outcomes...)
	p.runs = append(keptRuns, p.runs...)
	p.pending = append(batch, p.pending...)
	p.writeErrors++
	p.mu.Unlock()
	return errors.Join(errs...)
}

// resolveLocked closes the round named by a Reset event. Round id 0 means the
// log fallback could not read it; the tracked round is used instead.
func (p *Pipeline) resolveLocked(ev domain.ParsedEvent) *domain.RoundOutcome {
	rr := ev.RoundResult
	if !rr.WinningSquare.Valid() {
		p.logger.Printf("[pipeline] %s: winning square %d out of range", ev.Signature, rr.WinningSquare)
		p.unresolved++
		return nil
	}

	id := rr.RoundID
	if id == 0 {
		id = p.tracker.CurrentRound()
	}
	book, ok := p.tracker.RoundDeployments(id)
	if !ok {
		p.logger.Printf("[pipeline] round %d resolved with no booked deploys", id)
	}

	o := p.resolver.Resolve(id, rr.WinningSquare, book.PerSquare, book.Deploys, rr.Motherlode)
	o.Slot = ev.Slot

	p.tracker.RecordRoundResult(o)
	wins := p.learning.RecordRound(o, book.Deploys)
	p.consensus.RecordHits(p.lastRecs, o.WinningSquare)
	p.lastRecs = nil
	p.consensus.AddRound(consensus.RoundFromOutcome(o))

	p.tracker.CloseRound(id)
	if id >= p.tracker.CurrentRound() {
		p.tracker.BeginRound(id + 1)
	}
	p.resolved++
	p.lastOutcome = &o
	observability.RecordRoundResolved(o.Class, wins)

	out := o
	return &out
}

func (p *Pipeline) queueRunLocked(run *storage.StrategyRun) {
	if run != nil && p.opts.Stores.Strategies != nil {
		p.runs = append(p.runs, run)
	}
}

// pendingRunLocked returns the latest analysis when it has not been saved.
func (p *Pipeline) pendingRunLocked() *storage.StrategyRun {
	id := p.learning.AnalysisID()
	if id == "" || id == p.savedRun {
		return nil
	}
	p.savedRun = id
	observability.RecordAnalysis(len(p.learning.Strategies()), p.tracker.ProfileCount())
	return &storage.StrategyRun{
		RunID:      id,
		CreatedAt:  p.clock(),
		Strategies: p.learning.Strategies(),
	}
}

func (p *Pipeline) saveRun(ctx context.Context, run *storage.StrategyRun) error {
	if run == nil || p.opts.Stores.Strategies == nil {
		return nil
	}
	if err := p.opts.Stores.Strategies.Save(ctx, run); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("save strategy run: %w", err)
	}
	return nil
}

// BeginRound points the tracker at the live round, e.g. after reading the board.
func (p *Pipeline) BeginRound(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id != p.tracker.CurrentRound() {
		p.tracker.BeginRound(id)
	}
}

// CurrentRound returns the round deploys are booked against.
func (p *Pipeline) CurrentRound() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tracker.CurrentRound()
}

// Analyze forces a strategy detection pass and persists the run.
func (p *Pipeline) Analyze(ctx context.Context) ([]domain.DetectedStrategy, error) {
	p.mu.Lock()
	strategies := p.learning.AnalyzeAndDetectStrategies()
	p.queueRunLocked(p.pendingRunLocked())
	p.mu.Unlock()

	return strategies, p.persist(ctx, false)
}

// Decide builds the stake recommendation for the live round. With a nil
// live view the tracker's booked deployments of the current round are used.
func (p *Pipeline) Decide(balance uint64, live *accounts.LiveRound) domain.Recommendation {
	p.mu.Lock()
	defer p.mu.Unlock()

	state := optimizer.RoundState{RoundID: p.tracker.CurrentRound()}
	if live != nil {
		state.RoundID = live.RoundID
		state.Deployed = live.Deployed
	} else if book, ok := p.tracker.RoundDeployments(state.RoundID); ok {
		state.Deployed = book.PerSquare
	}
	for i, st := range p.tracker.SquareStats() {
		state.WinRates[i] = st.WinRate
	}

	p.consensus.SetWhales(p.whalesLocked())
	p.lastRecs = p.consensus.Recommendations(state.Deployed)
	merged := p.consensus.Consensus(state.Deployed, p.opts.ConsensusSquares)
	hint := optimizer.ConsensusHint{Squares: merged.Squares, Confidence: merged.Confidence}

	rec := p.optimizer.Decide(balance, state, hint, p.learning.CountStats())
	observability.RecordDecision(rec)
	p.lastDecision = &rec
	return rec
}

// whalesLocked maps the largest deployers to their favourite squares.
func (p *Pipeline) whalesLocked() map[string][]domain.SquareIndex {
	profiles := p.tracker.Profiles()
	sortByDeployed(profiles)
	if len(profiles) > p.opts.WhaleCount {
		profiles = profiles[:p.opts.WhaleCount]
	}
	out := make(map[string][]domain.SquareIndex, len(profiles))
	for _, pr := range profiles {
		if pr.TotalDeployed == 0 || len(pr.FavoriteSquares) == 0 {
			continue
		}
		out[pr.Address] = pr.FavoriteSquares
	}
	return out
}

// Flush writes every queued record and snapshots every engine to the
// stores. Records that fail stay queued for the next Flush.
func (p *Pipeline) Flush(ctx context.Context) error {
	if err := p.persist(ctx, true); err != nil {
		return err
	}

	p.mu.Lock()
	stats := p.tracker.SquareStats()
	profiles := p.tracker.Profiles()
	state := p.learning.State()
	p.mu.Unlock()

	st := p.opts.Stores
	if st.SquareStats != nil {
		if err := st.SquareStats.Save(ctx, stats); err != nil {
			return fmt.Errorf("save square stats: %w", err)
		}
	}
	if st.Profiles != nil && len(profiles) > 0 {
		if err := st.Profiles.UpsertMany(ctx, profiles); err != nil {
			return fmt.Errorf("save profiles: %w", err)
		}
	}
	if st.State != nil {
		raw, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("encode learning state: %w", err)
		}
		if err := st.State.Put(ctx, LearningStateKey, raw); err != nil {
			return fmt.Errorf("save learning state: %w", err)
		}
	}
	return nil
}

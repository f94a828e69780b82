package ingestion

import (
	"context"
	"log"
	"time"

	"ore-strategy-lab/internal/observability"
)

// Trigger wakes the runner before its next scheduled poll.
type Trigger interface {
	Subscribe(ctx context.Context) (<-chan struct{}, error)
}

// Runner polls the program continuously. Polls happen on a fixed interval
// and whenever the trigger fires.
type Runner struct {
	poller       *Poller
	trigger      Trigger
	rounds       RoundSource
	tracker      RoundTracker
	pollInterval time.Duration
	logger       *log.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Poller       *Poller
	Trigger      Trigger      // optional, e.g. a logsSubscribe trigger
	Rounds       RoundSource  // optional, read once at start
	Tracker      RoundTracker // receives the round read from Rounds
	PollInterval time.Duration
	Logger       *log.Logger
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	pollInterval := opts.PollInterval
	if pollInterval == 0 {
		pollInterval = 2 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		poller:       opts.Poller,
		trigger:      opts.Trigger,
		rounds:       opts.Rounds,
		tracker:      opts.Tracker,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run starts continuous ingestion.
// It blocks until context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.syncRound(ctx)

	var wake <-chan struct{}
	if r.trigger != nil {
		ch, err := r.trigger.Subscribe(ctx)
		if err != nil {
			r.logger.Printf("[runner] trigger unavailable, polling only: %v", err)
		} else {
			wake = ch
		}
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.logger.Printf("[runner] started, poll interval: %v", r.pollInterval)
	r.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Println("[runner] stopping")
			return ctx.Err()

		case _, ok := <-wake:
			if !ok {
				r.logger.Println("[runner] trigger closed, polling only")
				wake = nil
				continue
			}
			r.pollOnce(ctx)

		case <-ticker.C:
			r.pollOnce(ctx)
		}
	}
}

// syncRound points the tracker at the live round so that deploys seen before
// the first Reset are booked correctly.
func (r *Runner) syncRound(ctx context.Context) {
	if r.rounds == nil || r.tracker == nil {
		return
	}
	id, err := r.rounds.CurrentRoundID(ctx)
	if err != nil {
		r.logger.Printf("[runner] read current round: %v", err)
		return
	}
	r.tracker.BeginRound(id)
	r.logger.Printf("[runner] tracking round %d", id)
}

func (r *Runner) pollOnce(ctx context.Context) {
	if _, err := r.poller.Poll(ctx); err != nil {
		if ctx.Err() == nil {
			r.logger.Printf("[runner] poll failed: %v", err)
		}
		return
	}
	observability.MarkIngestion(time.Now().Unix())
}

// Package scheduler runs the periodic learning jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"ore-strategy-lab/internal/observability"
)

// ErrUnknownJob is returned by RunNow for an unregistered job name.
var ErrUnknownJob = errors.New("unknown job")

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

// Scheduler wraps a seconds-resolution cron. A job whose previous run is
// still in progress is skipped rather than queued.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	logger *log.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

type job struct {
	name    string
	spec    string
	fn      JobFunc
	running sync.Mutex
}

// New creates a Scheduler. Jobs run with ctx and stop being scheduled on Stop.
func New(ctx context.Context, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	cronLogger := cron.PrintfLogger(logger)
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		ctx:    ctx,
		logger: logger,
		jobs:   make(map[string]*job),
	}
}

// Register adds a job. An empty spec registers the job for RunNow only.
func (s *Scheduler) Register(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("register %s: already registered", name)
	}
	j := &job{name: name, spec: spec, fn: fn}

	if spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { s.run(j) }); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	s.jobs[name] = j
	return nil
}

// Jobs returns the registered job names with their specs, sorted by name.
func (s *Scheduler) Jobs() [][2]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][2]string, 0, len(s.jobs))
	for name, j := range s.jobs {
		out = append(out, [2]string{name, j.spec})
	}
	sort.Slice(out, func(i, k int) bool { return out[i][0] < out[k][0] })
	return out
}

// RunNow executes a job synchronously, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(j)
}

// Start begins scheduling in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Printf("scheduler started with %d jobs", len(s.Jobs()))
}

// Stop halts scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Println("scheduler stopped")
	case <-ctx.Done():
		s.logger.Println("scheduler stop timed out with jobs still running")
	}
}

func (s *Scheduler) run(j *job) error {
	if !j.running.TryLock() {
		s.logger.Printf("job %s: previous run still in progress, skipping", j.name)
		observability.RecordJobRun(j.name, "skipped", 0)
		return nil
	}
	defer j.running.Unlock()

	start := time.Now()
	err := j.fn(s.ctx)
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		s.logger.Printf("job %s failed after %s: %v", j.name, elapsed.Round(time.Millisecond), err)
	}
	observability.RecordJobRun(j.name, status, elapsed.Seconds())
	return err
}

package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"ore-strategy-lab/internal/accounts"
	"ore-strategy-lab/internal/app"
	"ore-strategy-lab/internal/config"
	"ore-strategy-lab/internal/domain"
	"ore-strategy-lab/internal/observability"
	"ore-strategy-lab/internal/pipeline"
	"ore-strategy-lab/internal/reporting"
	"ore-strategy-lab/internal/scheduler"
	"ore-strategy-lab/internal/solana"
)

// Job names.
const (
	jobAnalyze = "analyze"
	jobFlush   = "flush"
	jobReport  = "report"
)

// Board view limits.
const (
	defaultBoardRounds = 10
	maxBoardRounds     = 100
)

// chainReader reads ORE accounts. *accounts.Reader satisfies it.
type chainReader interface {
	CurrentRoundID(ctx context.Context) (uint64, error)
	LiveRound(ctx context.Context) (*accounts.LiveRound, error)
	Treasury(ctx context.Context) (*accounts.Treasury, error)
	Miner(ctx context.Context, authority string) (*accounts.Miner, error)
	RecentRounds(ctx context.Context, n int) ([]accounts.RoundSummary, error)
}

// Server holds all components of the service.
type Server struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	backends *app.Backends
	rpc      solana.RPCClient
	reader   chainReader
	sched    *scheduler.Scheduler
	logger   *log.Logger

	// State
	mu          sync.Mutex
	started     time.Time
	lastAnalyze time.Time
	lastFlush   time.Time
	lastReport  time.Time

	// Stats
	analyzeRuns int
	flushRuns   int
	reportRuns  int
}

func (s *Server) registerJobs(sched *scheduler.Scheduler) error {
	jobs := []struct {
		name string
		spec string
		fn   scheduler.JobFunc
	}{
		{jobAnalyze, s.cfg.Schedule.Analyze, s.runAnalyze},
		{jobFlush, s.cfg.Schedule.Flush, s.runFlush},
		{jobReport, s.cfg.Schedule.Report, s.runReport},
	}
	for _, j := range jobs {
		if err := sched.Register(j.name, j.spec, j.fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) runAnalyze(ctx context.Context) error {
	strategies, err := s.pipeline.Analyze(ctx)

	s.mu.Lock()
	s.lastAnalyze = time.Now()
	s.analyzeRuns++
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	s.logger.Printf("Analysis found %d strategies", len(strategies))
	return nil
}

func (s *Server) runFlush(ctx context.Context) error {
	err := s.pipeline.Flush(ctx)

	s.mu.Lock()
	s.lastFlush = time.Now()
	s.flushRuns++
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func (s *Server) runReport(ctx context.Context) error {
	start := time.Now()

	gen := reporting.NewGenerator(s.pipeline, s.backends.Stores.Outcomes)
	if s.backends.EventArchive != nil {
		gen = gen.WithArchive(s.backends.EventArchive, s.backends.OutcomeArchive)
	}
	report, err := gen.Generate(ctx)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}
	paths, err := reporting.WriteFiles(s.cfg.Report.OutputDir, report)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.lastReport = time.Now()
	s.reportRuns++
	s.mu.Unlock()

	s.logger.Printf("Report written in %v: %v", time.Since(start), paths)
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/summary", s.handleSummary)
	mux.HandleFunc("/strategies", s.handleStrategies)
	mux.HandleFunc("/recommendation", s.handleRecommendation)
	mux.HandleFunc("/board", s.handleBoard)

	return mux
}

// StatusResponse is the /status body.
type StatusResponse struct {
	Status      string          `json:"status"`
	Uptime      string          `json:"uptime"`
	Started     time.Time       `json:"started"`
	LastAnalyze time.Time       `json:"last_analyze,omitempty"`
	LastFlush   time.Time       `json:"last_flush,omitempty"`
	LastReport  time.Time       `json:"last_report,omitempty"`
	AnalyzeRuns int             `json:"analyze_runs"`
	FlushRuns   int             `json:"flush_runs"`
	ReportRuns  int             `json:"report_runs"`
	Backend     string          `json:"backend"`
	Pipeline    pipeline.Status `json:"pipeline"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ps := s.pipeline.Status()

	s.mu.Lock()
	resp := StatusResponse{
		Status:      "running",
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Started:     s.started,
		LastAnalyze: s.lastAnalyze,
		LastFlush:   s.lastFlush,
		LastReport:  s.lastReport,
		AnalyzeRuns: s.analyzeRuns,
		FlushRuns:   s.flushRuns,
		ReportRuns:  s.reportRuns,
		Backend:     s.cfg.Storage.Backend,
		Pipeline:    ps,
	}
	s.mu.Unlock()

	s.writeJSON(w, resp)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	data, err := reporting.EncodeSummary(s.pipeline.Summary())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	strategies := s.pipeline.Strategies()
	if strategies == nil {
		strategies = []domain.DetectedStrategy{}
	}
	s.writeJSON(w, strategies)
}

// handleRecommendation decides for the live round. The balance comes from the
// balance query parameter in SOL, or from the configured wallet.
func (s *Server) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	balance, err := s.balance(ctx, r.URL.Query().Get("balance"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var live *accounts.LiveRound
	if s.reader != nil {
		live, err = s.reader.LiveRound(ctx)
		if err != nil {
			s.logger.Printf("Live round unavailable, using tracked deployments: %v", err)
			live = nil
		}
	}

	s.writeJSON(w, s.pipeline.Decide(balance, live))
}

// BoardResponse is the /board body. Parts that could not be read are left
// empty and named in Errors.
type BoardResponse struct {
	Round        *accounts.LiveRound     `json:"round,omitempty"`
	Treasury     *accounts.Treasury      `json:"treasury,omitempty"`
	Miner        *accounts.Miner         `json:"miner,omitempty"`
	RecentRounds []accounts.RoundSummary `json:"recent_rounds"`
	Errors       []string                `json:"errors,omitempty"`
}

// handleBoard reports on-chain state: the live round, the treasury, the
// configured wallet's miner and up to ?rounds= completed rounds.
func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	n := defaultBoardRounds
	if v := r.URL.Query().Get("rounds"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > maxBoardRounds {
			http.Error(w, fmt.Sprintf("rounds must be between 1 and %d", maxBoardRounds), http.StatusBadRequest)
			return
		}
		n = parsed
	}
	if s.reader == nil {
		http.Error(w, "account reader not configured", http.StatusServiceUnavailable)
		return
	}

	ctx := r.Context()
	resp := BoardResponse{RecentRounds: []accounts.RoundSummary{}}
	fail := func(part string, err error) {
		resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", part, err))
	}

	if live, err := s.reader.LiveRound(ctx); err != nil {
		fail("round", err)
	} else {
		resp.Round = live
	}
	if t, err := s.reader.Treasury(ctx); err != nil {
		fail("treasury", err)
	} else {
		resp.Treasury = t
	}
	if wallet := s.cfg.Strategy.Wallet; wallet != "" {
		if m, err := s.reader.Miner(ctx, wallet); err != nil {
			fail("miner", err)
		} else {
			resp.Miner = m
		}
	}
	if recent, err := s.reader.RecentRounds(ctx, n); err != nil {
		fail("recent rounds", err)
	} else if recent != nil {
		resp.RecentRounds = recent
	}

	status := http.StatusOK
	if resp.Round == nil && resp.Treasury == nil {
		status = http.StatusBadGateway
	}
	s.writeJSONStatus(w, status, resp)
}

func (s *Server) balance(ctx context.Context, param string) (uint64, error) {
	if param != "" {
		sol, err := strconv.ParseFloat(param, 64)
		if err != nil || sol < 0 || math.IsNaN(sol) || math.IsInf(sol, 0) {
			return 0, fmt.Errorf("invalid balance %q", param)
		}
		return domain.SOLToLamports(sol), nil
	}
	if s.cfg.Strategy.Wallet == "" || s.rpc == nil {
		return 0, fmt.Errorf("balance parameter required when no wallet is configured")
	}
	lamports, err := s.rpc.GetBalance(ctx, s.cfg.Strategy.Wallet)
	if err != nil {
		return 0, fmt.Errorf("read wallet balance: %w", err)
	}
	return lamports, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	s.writeJSONStatus(w, http.StatusOK, v)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, status int, v any) {
	data, err := sonnet.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

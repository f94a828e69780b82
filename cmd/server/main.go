// Package main runs the ORE strategy lab service:
// - Ingestion (continuous): signature polling woken by logsSubscribe
// - Learning jobs (cron): strategy analysis, snapshot flush, report
// - HTTP: health, metrics, status, summary, strategies, recommendation
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ore-strategy-lab/internal/accounts"
	"ore-strategy-lab/internal/app"
	"ore-strategy-lab/internal/config"
	"ore-strategy-lab/internal/ingestion"
	"ore-strategy-lab/internal/pipeline"
	"ore-strategy-lab/internal/scheduler"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	configPath := flag.String("config", os.Getenv("ORE_CONFIG"), "Path to YAML config file")
	httpAddr := flag.String("http-addr", "", "HTTP listen address (overrides server.addr)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of the configured backend")
	backfill := flag.Int("backfill", 0, "Number of recent program signatures to backfill before polling")
	flag.Parse()

	// Setup logger
	logger := app.NewLogger("server")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if *useMemory {
		cfg.Storage.Backend = config.BackendMemory
	}
	if *httpAddr != "" {
		cfg.Server.Addr = *httpAddr
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create stores
	backends, err := app.OpenBackends(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer backends.Close()
	logger.Printf("Storage backend: %s (clickhouse archive: %t)", cfg.Storage.Backend, backends.EventArchive != nil)

	rpc := app.NewRPC(cfg)
	reader, err := accounts.NewReader(rpc, cfg.Ingestion.ProgramID)
	if err != nil {
		logger.Fatalf("Failed to create account reader: %v", err)
	}

	opts, err := app.PipelineOptions(cfg, backends.Stores, app.NewLogger("pipeline"))
	if err != nil {
		logger.Fatalf("Invalid strategy options: %v", err)
	}
	opts.RoundResults = reader
	p := pipeline.New(opts)
	if err := p.Load(ctx); err != nil {
		logger.Fatalf("Failed to restore state: %v", err)
	}

	server := &Server{
		cfg:      cfg,
		pipeline: p,
		backends: backends,
		rpc:      rpc,
		reader:   reader,
		logger:   logger,
		started:  time.Now(),
	}

	sched := scheduler.New(ctx, app.NewLogger("scheduler"))
	if err := server.registerJobs(sched); err != nil {
		logger.Fatalf("Failed to register jobs: %v", err)
	}
	server.sched = sched

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Printf("Starting HTTP server on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("HTTP server error: %v", err)
		}
	}()

	if *backfill > 0 {
		server.backfill(ctx, *backfill)
	}

	sched.Start()
	err = server.runIngestion(ctx)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 20*time.Second)
	defer stop()
	sched.Stop(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP shutdown: %v", err)
	}
	if err := p.Flush(shutdownCtx); err != nil {
		logger.Printf("Final flush failed: %v", err)
	}

	done <- err
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// runIngestion polls program signatures until ctx is cancelled.
func (s *Server) runIngestion(ctx context.Context) error {
	s.logger.Println("Starting ingestion...")

	poller := ingestion.NewPoller(ingestion.PollerOptions{
		RPC:        s.rpc,
		ProgramID:  s.cfg.Ingestion.ProgramID,
		Signatures: s.backends.Signatures,
		Processor:  s.pipeline,
		PageSize:   s.cfg.Ingestion.PageSize,
		MaxPages:   s.cfg.Ingestion.MaxPages,
		Logger:     app.NewLogger("poller"),
	})

	runnerOpts := ingestion.RunnerOptions{
		Poller:       poller,
		Rounds:       s.reader,
		Tracker:      s.pipeline,
		PollInterval: s.cfg.Ingestion.PollInterval,
		Logger:       app.NewLogger("ingestion"),
	}
	if ws := app.NewWS(s.cfg, app.NewLogger("ws")); ws != nil {
		defer ws.Close()
		runnerOpts.Trigger = ingestion.NewLogsTrigger(ws, s.cfg.Ingestion.ProgramID, runnerOpts.Logger)
	} else {
		s.logger.Println("No WebSocket endpoint configured, polling only")
	}

	return ingestion.NewRunner(runnerOpts).Run(ctx)
}

func (s *Server) backfill(ctx context.Context, limit int) {
	poller := ingestion.NewPoller(ingestion.PollerOptions{
		RPC:        s.rpc,
		ProgramID:  s.cfg.Ingestion.ProgramID,
		Signatures: s.backends.Signatures,
		Processor:  s.pipeline,
		PageSize:   s.cfg.Ingestion.PageSize,
		Logger:     app.NewLogger("backfill"),
	})
	res, err := poller.Backfill(ctx, limit)
	if err != nil {
		s.logger.Printf("Backfill failed: %v", err)
		return
	}
	s.logger.Printf("Backfilled %d transactions (%d duplicates, %d missing) in %v",
		res.Processed, res.Duplicates, res.Missing, res.Duration)
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// Package main ingests the most recent ORE program transactions once, then
// runs a strategy analysis and flushes the learned state.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"ore-strategy-lab/internal/accounts"
	"ore-strategy-lab/internal/app"
	"ore-strategy-lab/internal/config"
	"ore-strategy-lab/internal/ingestion"
	"ore-strategy-lab/internal/pipeline"
)

func main() {
	// Parse flags (env vars as defaults)
	configPath := flag.String("config", os.Getenv("ORE_CONFIG"), "Path to YAML config file")
	limit := flag.Int("limit", 1000, "Number of recent program signatures to ingest")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage (dry run)")
	syncRound := flag.Bool("sync-round", true, "Read the board to book deploys against the live round")
	flag.Parse()

	// Setup logger
	logger := app.NewLogger("backfill")

	if *limit <= 0 {
		logger.Fatal("--limit must be positive")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if *useMemory {
		cfg.Storage.Backend = config.BackendMemory
	}

	// Stop on first signal
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backends, err := app.OpenBackends(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer backends.Close()

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

	if *syncRound {
		if id, err := reader.CurrentRoundID(ctx); err != nil {
			logger.Printf("Read current round: %v", err)
		} else {
			p.BeginRound(id)
			logger.Printf("Tracking round %d", id)
		}
	}

	poller := ingestion.NewPoller(ingestion.PollerOptions{
		RPC:        rpc,
		ProgramID:  cfg.Ingestion.ProgramID,
		Signatures: backends.Signatures,
		Processor:  p,
		PageSize:   cfg.Ingestion.PageSize,
		Logger:     logger,
	})

	res, err := poller.Backfill(ctx, *limit)
	if err != nil {
		logger.Printf("Backfill stopped early: %v", err)
	}
	if res != nil {
		logger.Printf("Fetched %d signatures: %d processed, %d duplicates, %d missing, %d foreign, high slot %d, took %v",
			res.Fetched, res.Processed, res.Duplicates, res.Missing, res.Foreign, res.HighSlot, res.Duration)
	}

	// Persist whatever was ingested, even after an interrupted run
	saveCtx := context.WithoutCancel(ctx)

	strategies, err := p.Analyze(saveCtx)
	if err != nil {
		logger.Printf("Analysis failed: %v", err)
	} else {
		logger.Printf("Analysis found %d strategies", len(strategies))
	}

	if err := p.Flush(saveCtx); err != nil {
		logger.Fatalf("Flush failed: %v", err)
	}

	status := p.Status()
	logger.Printf("Resolved %d rounds, tracking %d profiles, current round %d",
		status.RoundsResolved, status.Profiles, status.CurrentRound)
}

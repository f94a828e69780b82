// Package app assembles the pipeline, its stores and the RPC clients from
// configuration. The binaries share it.
package app

import (
	"context"
	"fmt"
	"log"
	"os"

	"ore-strategy-lab/internal/config"
	"ore-strategy-lab/internal/consensus"
	"ore-strategy-lab/internal/learning"
	"ore-strategy-lab/internal/optimizer"
	"ore-strategy-lab/internal/pipeline"
	"ore-strategy-lab/internal/resolver"
	"ore-strategy-lab/internal/solana"
	"ore-strategy-lab/internal/storage"
	chstore "ore-strategy-lab/internal/storage/clickhouse"
	"ore-strategy-lab/internal/storage/memory"
	"ore-strategy-lab/internal/storage/migrations"
	pgstore "ore-strategy-lab/internal/storage/postgres"
	"ore-strategy-lab/internal/storage/sqlite"
	"ore-strategy-lab/internal/tracker"
)

// Backends holds the opened stores.
type Backends struct {
	Stores     pipeline.Stores
	Signatures storage.SignatureStore

	// Set only when a ClickHouse DSN is configured
	EventArchive   *chstore.EventStore
	OutcomeArchive *chstore.RoundOutcomeStore

	cleanup []func()
}

// Close releases every connection.
func (b *Backends) Close() {
	for i := len(b.cleanup) - 1; i >= 0; i-- {
		b.cleanup[i]()
	}
	b.cleanup = nil
}

// NewLogger returns a stdout logger with a "[component] " prefix.
func NewLogger(component string) *log.Logger {
	return log.New(os.Stdout, "["+component+"] ", log.LstdFlags|log.Lshortfile)
}

// OpenBackends connects the configured storage backend and, when set, the
// ClickHouse archive. Schemas are migrated before use.
func OpenBackends(ctx context.Context, cfg *config.Config) (*Backends, error) {
	b := &Backends{}

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		b.Stores = pipeline.Stores{
			SquareStats: memory.NewSquareStatStore(),
			Profiles:    memory.NewProfileStore(),
			Outcomes:    memory.NewRoundOutcomeStore(),
			Strategies:  memory.NewStrategyStore(),
			State:       memory.NewStateStore(),
		}
		b.Signatures = memory.NewSignatureStore()

	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.Storage.SqlitePath)
		if err != nil {
			return nil, err
		}
		b.cleanup = append(b.cleanup, func() { db.Close() })
		if err := migrations.RunSqliteMigrations(ctx, db); err != nil {
			b.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		b.Stores = pipeline.Stores{
			SquareStats: sqlite.NewSquareStatStore(db),
			Profiles:    sqlite.NewProfileStore(db),
			Outcomes:    sqlite.NewRoundOutcomeStore(db),
			Strategies:  sqlite.NewStrategyStore(db),
			State:       sqlite.NewStateStore(db),
		}
		b.Signatures = sqlite.NewSignatureStore(db)

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		b.cleanup = append(b.cleanup, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			b.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		b.Stores = pipeline.Stores{
			SquareStats: pgstore.NewSquareStatStore(pool),
			Profiles:    pgstore.NewProfileStore(pool),
			Outcomes:    pgstore.NewRoundOutcomeStore(pool),
			Strategies:  pgstore.NewStrategyStore(pool),
			State:       pgstore.NewStateStore(pool),
		}
		b.Signatures = pgstore.NewSignatureStore(pool)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Storage.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		b.cleanup = append(b.cleanup, func() { conn.Close() })

		b.EventArchive = chstore.NewEventStore(conn)
		b.OutcomeArchive = chstore.NewRoundOutcomeStore(conn)
		b.Stores.Events = b.EventArchive
		b.Stores.Outcomes = storage.NewTeeOutcomeStore(b.Stores.Outcomes, b.OutcomeArchive)
	}

	return b, nil
}

// PipelineOptions maps the configuration onto the engine options.
func PipelineOptions(cfg *config.Config, stores pipeline.Stores, logger *log.Logger) (pipeline.Options, error) {
	sizing, err := optimizer.ParseSizing(cfg.Strategy.Sizing)
	if err != nil {
		return pipeline.Options{}, err
	}

	return pipeline.Options{
		ProgramID: cfg.Ingestion.ProgramID,
		Tracker: tracker.Options{
			MaxOpenRounds: cfg.Learning.MaxOpenRounds,
			MaxProfiles:   cfg.Learning.MaxProfiles,
		},
		Resolver: resolver.Options{},
		Learning: learning.Options{
			MaxWinHistory:          cfg.Learning.MaxWinHistory,
			AnalyzeEvery:           cfg.Learning.AnalyzeEvery,
			MinSamples:             cfg.Learning.MinSamples,
			LowCompetitionLamports: cfg.Learning.LowCompetitionLamports(),
		},
		Consensus: consensus.Options{},
		Optimizer: optimizer.Options{
			MinWalletSOL:      cfg.Strategy.MinWalletSOL,
			MaxBetPerRoundSOL: cfg.Strategy.MaxBetPerRoundSOL,
			CostPerSquareSOL:  cfg.Strategy.CostPerSquareSOL,
			Sizing:            sizing,
		},
		ConsensusSquares: cfg.Strategy.ConsensusSquares,
		WhaleCount:       cfg.Strategy.WhaleCount,
		EventBatchSize:   cfg.Ingestion.EventBatchSize,
		Stores:           stores,
		Logger:           logger,
	}, nil
}

// NewRPC creates the JSON-RPC client.
func NewRPC(cfg *config.Config) *solana.HTTPClient {
	opts := []solana.ClientOption{solana.WithMaxRetries(cfg.RPC.MaxRetries)}
	if cfg.RPC.Timeout > 0 {
		opts = append(opts, solana.WithTimeout(cfg.RPC.Timeout))
	}
	if cfg.RPC.Commitment != "" {
		opts = append(opts, solana.WithCommitment(cfg.RPC.Commitment))
	}
	return solana.NewHTTPClient(cfg.RPC.URL, opts...)
}

// NewWS creates the logsSubscribe client, or nil when no WS URL is set.
func NewWS(cfg *config.Config, logger *log.Logger) *solana.WSClientImpl {
	if cfg.RPC.WSURL == "" {
		return nil
	}
	wsCfg := solana.DefaultWSConfig()
	if cfg.RPC.Commitment != "" {
		wsCfg.Commitment = cfg.RPC.Commitment
	}
	wsCfg.Logger = logger
	return solana.NewWSClient(cfg.RPC.WSURL, &wsCfg)
}

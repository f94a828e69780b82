// Package config loads service configuration from an optional YAML file
// with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"ore-strategy-lab/internal/domain"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Config is the full service configuration.
type Config struct {
	RPC       RPCConfig       `yaml:"rpc"`
	Storage   StorageConfig   `yaml:"storage"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Learning  LearningConfig  `yaml:"learning"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Server    ServerConfig    `yaml:"server"`
	Report    ReportConfig    `yaml:"report"`
}

// RPCConfig configures the Solana endpoints.
type RPCConfig struct {
	URL        string        `yaml:"url"`
	WSURL      string        `yaml:"ws_url"` // empty disables the logs trigger
	Commitment string        `yaml:"commitment"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// StorageConfig selects the persistence backend. ClickHouse is optional and
// only archives events and outcomes.
type StorageConfig struct {
	Backend       string `yaml:"backend"` // memory, sqlite or postgres; empty picks postgres when a DSN is set
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
	SqlitePath    string `yaml:"sqlite_path"`
}

// IngestionConfig tunes the signature poller.
type IngestionConfig struct {
	ProgramID      string        `yaml:"program_id"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	PageSize       int           `yaml:"page_size"`
	MaxPages       int           `yaml:"max_pages"`
	EventBatchSize int           `yaml:"event_batch_size"`
}

// LearningConfig tunes the tracker and learning engine.
type LearningConfig struct {
	MaxWinHistory     int     `yaml:"max_win_history"`
	AnalyzeEvery      int     `yaml:"analyze_every"`
	MinSamples        int     `yaml:"min_samples"`
	LowCompetitionSOL float64 `yaml:"low_competition_sol"`
	MaxProfiles       int     `yaml:"max_profiles"`
	MaxOpenRounds     int     `yaml:"max_open_rounds"`
}

// StrategyConfig tunes the optimizer.
type StrategyConfig struct {
	Wallet            string  `yaml:"wallet"`
	MinWalletSOL      float64 `yaml:"min_wallet_sol"`
	MaxBetPerRoundSOL float64 `yaml:"max_bet_per_round_sol"`
	CostPerSquareSOL  float64 `yaml:"cost_per_square_sol"`
	Sizing            string  `yaml:"sizing"` // even or kelly
	ConsensusSquares  int     `yaml:"consensus_squares"`
	WhaleCount        int     `yaml:"whale_count"`
}

// ScheduleConfig holds cron specs with a leading seconds field.
// An empty spec disables the job.
type ScheduleConfig struct {
	Analyze string `yaml:"analyze"`
	Flush   string `yaml:"flush"`
	Report  string `yaml:"report"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ReportConfig configures report output.
type ReportConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		RPC: RPCConfig{
			URL:        "https://api.mainnet-beta.solana.com",
			Commitment: "confirmed",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Storage: StorageConfig{
			SqlitePath: "ore-strategy-lab.db",
		},
		Ingestion: IngestionConfig{
			ProgramID:      domain.OREProgramID,
			PollInterval:   2 * time.Second,
			PageSize:       1000,
			MaxPages:       10,
			EventBatchSize: 500,
		},
		Strategy: StrategyConfig{
			Sizing:           "even",
			ConsensusSquares: 5,
			WhaleCount:       10,
		},
		Schedule: ScheduleConfig{
			Analyze: "0 */5 * * * *",
			Flush:   "*/30 * * * * *",
			Report:  "0 0 * * * *",
		},
		Server: ServerConfig{Addr: ":9090"},
		Report: ReportConfig{OutputDir: "output"},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.resolveBackend()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("ORE_RPC_URL", &c.RPC.URL)
	str("ORE_WS_URL", &c.RPC.WSURL)
	str("ORE_COMMITMENT", &c.RPC.Commitment)
	str("ORE_STORAGE", &c.Storage.Backend)
	str("POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("CLICKHOUSE_DSN", &c.Storage.ClickhouseDSN)
	str("SQLITE_PATH", &c.Storage.SqlitePath)
	str("ORE_PROGRAM_ID", &c.Ingestion.ProgramID)
	str("ORE_WALLET", &c.Strategy.Wallet)
	str("ORE_SIZING", &c.Strategy.Sizing)
	str("ORE_HTTP_ADDR", &c.Server.Addr)
	str("ORE_REPORT_DIR", &c.Report.OutputDir)

	if v, ok := lookup("ORE_POLL_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ORE_POLL_INTERVAL: %w", err)
		}
		c.Ingestion.PollInterval = d
	}
	for key, dst := range map[string]*float64{
		"ORE_MIN_WALLET_SOL": &c.Strategy.MinWalletSOL,
		"ORE_MAX_BET_SOL":    &c.Strategy.MaxBetPerRoundSOL,
	} {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}
	return nil
}

func (c *Config) resolveBackend() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend != "" {
		return
	}
	if c.Storage.PostgresDSN != "" {
		c.Storage.Backend = BackendPostgres
	} else {
		c.Storage.Backend = BackendSQLite
	}
}

var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var problems []string

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SqlitePath == "" {
			problems = append(problems, "storage.sqlite_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			problems = append(problems, "storage.postgres_dsn is required for the postgres backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown storage backend %q", c.Storage.Backend))
	}

	if c.RPC.URL == "" {
		problems = append(problems, "rpc.url is required")
	}
	if c.Ingestion.ProgramID == "" {
		problems = append(problems, "ingestion.program_id is required")
	}
	if c.Ingestion.PollInterval < 100*time.Millisecond {
		problems = append(problems, "ingestion.poll_interval must be at least 100ms")
	}
	if c.Ingestion.PageSize < 0 || c.Ingestion.PageSize > 1000 {
		problems = append(problems, "ingestion.page_size must be within [0, 1000]")
	}

	switch strings.ToLower(strings.TrimSpace(c.Strategy.Sizing)) {
	case "", "even", "kelly":
	default:
		problems = append(problems, fmt.Sprintf("unknown strategy.sizing %q", c.Strategy.Sizing))
	}
	if c.Strategy.MinWalletSOL < 0 || c.Strategy.MaxBetPerRoundSOL < 0 {
		problems = append(problems, "strategy amounts must not be negative")
	}
	if c.Strategy.ConsensusSquares < 0 || c.Strategy.ConsensusSquares > domain.BoardSize {
		problems = append(problems, "strategy.consensus_squares must be within [0, 25]")
	}

	for name, spec := range map[string]string{
		"analyze": c.Schedule.Analyze,
		"flush":   c.Schedule.Flush,
		"report":  c.Schedule.Report,
	} {
		if spec == "" {
			continue
		}
		if _, err := cronParser.Parse(spec); err != nil {
			problems = append(problems, fmt.Sprintf("schedule.%s: %v", name, err))
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// LowCompetitionLamports converts the SOL threshold.
func (c LearningConfig) LowCompetitionLamports() uint64 {
	return domain.SOLToLamports(c.LowCompetitionSOL)
}

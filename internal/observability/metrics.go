// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ore-strategy-lab/internal/domain"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	TransactionsProcessed prometheus.Counter
	EventsClassified      *prometheus.CounterVec
	DecodeGaps            prometheus.Counter
	FailedTransactions    prometheus.Counter
	DuplicateSignatures   prometheus.Counter
	HighestSlotSeen       prometheus.Gauge
	RPCCallLatency        *prometheus.HistogramVec

	// Learning metrics
	RoundsResolved     *prometheus.CounterVec
	WinsRecorded       prometheus.Counter
	AnalysisRuns       prometheus.Counter
	StrategiesDetected prometheus.Gauge
	ProfilesTracked    prometheus.Gauge

	// Decision metrics
	Decisions            *prometheus.CounterVec
	LastStakeSOL         prometheus.Gauge
	LastExpectedValue    prometheus.Gauge
	LastRecommendedCount prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Scheduled job metrics
	JobRunsTotal *prometheus.CounterVec
	JobDuration  *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "ore_strategy_lab"
	}

	return &Metrics{
		// Ingestion metrics
		TransactionsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "transactions_processed_total",
			Help:      "Total number of ORE transactions fed to the pipeline",
		}),
		EventsClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_classified_total",
			Help:      "Total number of classified ORE events by instruction kind",
		}, []string{"kind"}),
		DecodeGaps: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "decode_gaps_total",
			Help:      "Total number of ORE instructions that could not be decoded",
		}),
		FailedTransactions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "failed_transactions_total",
			Help:      "Total number of failed ORE transactions observed",
		}),
		DuplicateSignatures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "duplicate_signatures_total",
			Help:      "Total number of signatures skipped because they were already processed",
		}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot seen",
		}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "Latency of RPC calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Learning metrics
		RoundsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "rounds_resolved_total",
			Help:      "Total number of resolved rounds by outcome class",
		}, []string{"class"}),
		WinsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "wins_recorded_total",
			Help:      "Total number of wins recorded in the win history",
		}),
		AnalysisRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "analysis_runs_total",
			Help:      "Total number of strategy detection passes",
		}),
		StrategiesDetected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "strategies_detected",
			Help:      "Number of strategies found by the latest analysis",
		}),
		ProfilesTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "profiles_tracked",
			Help:      "Number of participant profiles held in memory",
		}),

		// Decision metrics
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "decisions_total",
			Help:      "Total number of stake decisions by result",
		}, []string{"result", "tier"}),
		LastStakeSOL: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "last_stake_sol",
			Help:      "Total stake of the latest recommendation in SOL",
		}),
		LastExpectedValue: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "last_expected_value",
			Help:      "Model EV of the latest recommendation",
		}),
		LastRecommendedCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "last_square_count",
			Help:      "Square count of the latest recommendation",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Scheduled job metrics
		JobRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Total number of scheduled job runs",
		}, []string{"job", "status"}),
		JobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled jobs",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
		}, []string{"job"}),

		// Health metrics
		LastSuccessfulIngestion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last successful ingestion poll",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEvent counts one classified event.
func RecordEvent(ev domain.ParsedEvent) {
	DefaultMetrics.TransactionsProcessed.Inc()
	DefaultMetrics.EventsClassified.WithLabelValues(ev.Kind.String()).Inc()
	if ev.Gap {
		DefaultMetrics.DecodeGaps.Inc()
	}
	if !ev.Success {
		DefaultMetrics.FailedTransactions.Inc()
	}
	if ev.Slot > 0 {
		DefaultMetrics.HighestSlotSeen.Set(float64(ev.Slot))
	}
}

// RecordDuplicate counts a skipped, already processed signature.
func RecordDuplicate() {
	DefaultMetrics.DuplicateSignatures.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRoundResolved counts a resolved round and the wins it produced.
func RecordRoundResolved(class domain.OutcomeClass, wins int) {
	DefaultMetrics.RoundsResolved.WithLabelValues(string(class)).Inc()
	DefaultMetrics.WinsRecorded.Add(float64(wins))
}

// RecordAnalysis records a strategy detection pass.
func RecordAnalysis(strategies, profiles int) {
	DefaultMetrics.AnalysisRuns.Inc()
	DefaultMetrics.StrategiesDetected.Set(float64(strategies))
	DefaultMetrics.ProfilesTracked.Set(float64(profiles))
}

// RecordDecision records a stake decision.
func RecordDecision(rec domain.Recommendation) {
	result := "skip"
	if rec.ShouldStake {
		result = "stake"
	}
	DefaultMetrics.Decisions.WithLabelValues(result, rec.Tier.String()).Inc()
	DefaultMetrics.LastStakeSOL.Set(domain.LamportsToSOL(rec.TotalStake))
	DefaultMetrics.LastExpectedValue.Set(rec.ExpectedValue)
	DefaultMetrics.LastRecommendedCount.Set(float64(rec.SquareCount))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordJobRun records a scheduled job run.
func RecordJobRun(job, status string, durationSeconds float64) {
	DefaultMetrics.JobRunsTotal.WithLabelValues(job, status).Inc()
	DefaultMetrics.JobDuration.WithLabelValues(job).Observe(durationSeconds)
}

// MarkIngestion records a successful ingestion poll at unix time ts.
func MarkIngestion(ts int64) {
	DefaultMetrics.LastSuccessfulIngestion.Set(float64(ts))
}

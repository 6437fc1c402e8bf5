package proof

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job outcomes of one poll
const (
	OutcomeCompleted = "completed"
	OutcomePending   = "pending"
	OutcomeDiscarded = "discarded"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
)

// Aggregation outcomes
const (
	AggregationUpdated   = "updated"
	AggregationSuspended = "suspended"
	AggregationFailed    = "failed"
)

// Metrics are the poller's prometheus instruments
type Metrics struct {
	cycles        prometheus.Counter
	cycleFailures prometheus.Counter
	cycleDuration prometheus.Histogram
	jobs          *prometheus.CounterVec
	aggregations  *prometheus.CounterVec
}

// NewMetrics registers the instruments on reg. A nil reg leaves them
// unregistered, which tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: "leaderboard",
			Subsystem: "poller",
			Name:      "cycles_total",
			Help:      "Poll cycles started",
		}),
		cycleFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "leaderboard",
			Subsystem: "poller",
			Name:      "cycle_failures_total",
			Help:      "Poll cycles aborted by a store error or cancellation",
		}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "leaderboard",
			Subsystem: "poller",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a poll cycle",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leaderboard",
			Subsystem: "poller",
			Name:      "jobs_total",
			Help:      "Polled proof jobs by outcome",
		}, []string{"outcome"}),
		aggregations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leaderboard",
			Subsystem: "aggregator",
			Name:      "runs_total",
			Help:      "Per-user nullifier aggregations by outcome",
		}, []string{"outcome"}),
	}
}

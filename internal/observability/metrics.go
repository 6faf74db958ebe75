package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FollowEdgeMutations counts follow graph writes by operation and outcome.
	FollowEdgeMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_follow_edge_mutations_total",
		Help: "Follow edge mutations by operation and result",
	}, []string{"operation", "result"})

	// ReconcileChanges counts rows written by reconciliation, by kind and action.
	ReconcileChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_reconcile_changes_total",
		Help: "Rows created or updated by reconciliation runs",
	}, []string{"kind", "action"})

	// DeployStepDuration records how long each deploy step took.
	DeployStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chirp_deploy_step_duration_seconds",
		Help:    "Duration of deploy steps in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})

	// DeploySteps counts deploy step outcomes.
	DeploySteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_deploy_steps_total",
		Help: "Deploy step executions by step and status",
	}, []string{"step", "status"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chirp_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// RecordFollowMutation increments the follow mutation counter.
func RecordFollowMutation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	FollowEdgeMutations.WithLabelValues(operation, result).Inc()
}

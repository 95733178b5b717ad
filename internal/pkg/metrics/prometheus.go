package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ledger metrics
	versionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "confledger",
			Subsystem: "ledger",
			Name:      "versions_created_total",
			Help:      "Total number of configuration versions committed",
		},
		[]string{"bump"},
	)

	versionsRestoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "confledger",
			Subsystem: "ledger",
			Name:      "versions_restored_total",
			Help:      "Total number of snapshot restorations",
		},
		[]string{"outcome"},
	)

	versionsCleanedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "confledger",
			Subsystem: "ledger",
			Name:      "versions_cleaned_total",
			Help:      "Total number of versions removed by retention cleanup",
		},
	)

	// Rollback metrics
	rollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "confledger",
			Subsystem: "rollback",
			Name:      "executions_total",
			Help:      "Total number of rollback executions",
		},
		[]string{"risk", "outcome"},
	)

	rollbackDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "confledger",
			Subsystem: "rollback",
			Name:      "execution_duration_seconds",
			Help:      "Duration of rollback executions in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	// Probe metrics
	probeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "confledger",
			Subsystem: "probes",
			Name:      "duration_seconds",
			Help:      "Duration of scenario probe runs in seconds",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30},
		},
		[]string{"probe", "outcome"},
	)
)

// RecordVersionCreated increments the version commit counter
func RecordVersionCreated(bump string) {
	versionsCreatedTotal.WithLabelValues(bump).Inc()
}

// RecordVersionRestored increments the restore counter
func RecordVersionRestored(outcome string) {
	versionsRestoredTotal.WithLabelValues(outcome).Inc()
}

// RecordVersionsCleaned adds to the retention cleanup counter
func RecordVersionsCleaned(n int) {
	versionsCleanedTotal.Add(float64(n))
}

// RecordRollback records a rollback execution
func RecordRollback(risk, outcome string, seconds float64) {
	rollbacksTotal.WithLabelValues(risk, outcome).Inc()
	rollbackDuration.Observe(seconds)
}

// RecordProbe records a single probe run
func RecordProbe(probe, outcome string, seconds float64) {
	probeDuration.WithLabelValues(probe, outcome).Observe(seconds)
}

// Handler returns an HTTP handler exposing /metrics and /healthz
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

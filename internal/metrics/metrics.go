// Package metrics exposes Prometheus metrics for tracked operations and poll sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every pbctl metric. It is separate from the default
// registry so that textfile output contains only pbctl series.
var Registry = prometheus.NewRegistry()

var (
	// Poll metrics
	pollAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pbctl",
			Subsystem: "poll",
			Name:      "attempts_total",
			Help:      "Total number of poll attempts by session kind",
		},
		[]string{"kind"},
	)

	pollSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pbctl",
			Subsystem: "poll",
			Name:      "sessions_total",
			Help:      "Total number of finished poll sessions by kind and result",
		},
		[]string{"kind", "result"},
	)

	// Tracked operation metrics
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pbctl",
			Subsystem: "lifecycle",
			Name:      "operations_total",
			Help:      "Total number of tracked operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pbctl",
			Subsystem: "lifecycle",
			Name:      "operation_duration_seconds",
			Help:      "Duration of tracked operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 500ms to ~4min
		},
		[]string{"operation"},
	)

	// Control-plane API metrics
	apiCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pbctl",
			Subsystem: "gateway",
			Name:      "api_calls_total",
			Help:      "Total number of control-plane API calls by provider, call and result",
		},
		[]string{"provider", "call", "result"},
	)
)

func init() {
	Registry.MustRegister(
		pollAttemptsTotal,
		pollSessionsTotal,
		operationsTotal,
		operationDuration,
		apiCallsTotal,
	)
}

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Result maps an error to a result label value.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// RecordPollAttempt counts one probe of a poll session.
func RecordPollAttempt(kind string) {
	pollAttemptsTotal.WithLabelValues(kind).Inc()
}

// RecordPollSession records how a poll session ended.
func RecordPollSession(kind, result string) {
	pollSessionsTotal.WithLabelValues(kind, result).Inc()
}

// RecordOperation records a tracked operation's terminal outcome.
func RecordOperation(operation, result string, duration float64) {
	operationsTotal.WithLabelValues(operation, result).Inc()
	operationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordAPICall records one control-plane API call.
func RecordAPICall(provider, call, result string) {
	apiCallsTotal.WithLabelValues(provider, call, result).Inc()
}

// WriteTextfile writes every metric in Registry to path in the
// node-exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}

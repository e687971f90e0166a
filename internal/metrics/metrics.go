package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks engine operations by name and outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_engine_operations_total",
			Help: "Total engine operations (by operation and result kind).",
		},
		[]string{"operation", "result"},
	)

	// Measures duration of engine operations.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "credit_engine_operation_duration_seconds",
			Help:    "Duration of engine operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		},
		[]string{"operation"},
	)

	// Gauges the aggregate pool ledger across all lenders.
	LiquidityProvided = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "credit_engine_liquidity_provided",
			Help: "Total liquidity provided across all lenders.",
		},
	)

	LiquidityReserved = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "credit_engine_liquidity_reserved",
			Help: "Total liquidity reserved across all lenders.",
		},
	)

	// Counts issued credit lines by negotiation source.
	CreditLinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_engine_credit_lines_total",
			Help: "Credit lines issued, by source kind.",
		},
		[]string{"source"},
	)

	// Tracks published events by subject and result.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_engine_events_published_total",
			Help: "Events published to the broker, by subject and result.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	// Gauges the last successful finalizer sweep (seconds since epoch).
	LastFinalizerSweep = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "credit_engine_last_finalizer_sweep_timestamp",
			Help: "Timestamp (unix seconds) of the last auction finalizer sweep.",
		},
	)
)

// IncOperation records an operation outcome.
func IncOperation(operation, result string) {
	OperationsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveOperation records the time taken by an operation.
func ObserveOperation(operation string, start time.Time) {
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// IncEventPublished records an event publish attempt.
func IncEventPublished(subject, result string) {
	EventsPublished.WithLabelValues(subject, result).Inc()
}

// SetLastFinalizerSweep marks a completed finalizer sweep.
func SetLastFinalizerSweep(t time.Time) {
	LastFinalizerSweep.Set(float64(t.Unix()))
}

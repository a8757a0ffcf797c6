package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics records escrow engine and registry activity exposed on the
// daemon's /metrics endpoint.
type EscrowMetrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	swaps      prometheus.Counter
	latency    *prometheus.HistogramVec
}

var (
	escrowMetricsOnce sync.Once
	escrowRegistry    *EscrowMetrics
)

// Escrow returns the lazily-initialised metrics registry used to record
// escrow operations.
func Escrow() *EscrowMetrics {
	escrowMetricsOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tokenswap",
				Subsystem: "escrow",
				Name:      "operations_total",
				Help:      "Total escrow operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tokenswap",
				Subsystem: "escrow",
				Name:      "failures_total",
				Help:      "Escrow operation failures segmented by operation and error code.",
			}, []string{"operation", "code"}),
			swaps: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tokenswap",
				Subsystem: "escrow",
				Name:      "swaps_settled_total",
				Help:      "Total flash offers settled atomically.",
			}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tokenswap",
				Subsystem: "escrow",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for escrow operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
		}
		prometheus.MustRegister(
			escrowRegistry.operations,
			escrowRegistry.failures,
			escrowRegistry.swaps,
			escrowRegistry.latency,
		)
	})
	return escrowRegistry
}

// ObserveOperation records one completed escrow operation.
func (m *EscrowMetrics) ObserveOperation(operation string, start time.Time, err error, code string) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.failures.WithLabelValues(operation, code).Inc()
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveSwapSettled bumps the settled swap counter.
func (m *EscrowMetrics) ObserveSwapSettled() {
	if m == nil {
		return
	}
	m.swaps.Inc()
}

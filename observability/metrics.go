package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CoverMetrics records settlement-service activity: operation counts by
// outcome, settlement results, and oracle extraction latency.
type CoverMetrics struct {
	operations  *prometheus.CounterVec
	settlements *prometheus.CounterVec
	oracleCalls *prometheus.HistogramVec
}

var (
	coverMetricsOnce sync.Once
	coverRegistry    *CoverMetrics
)

// Metrics returns the lazily-initialised metrics registry, registering the
// collectors with the default prometheus registerer on first use.
func Metrics() *CoverMetrics {
	coverMetricsOnce.Do(func() {
		coverRegistry = &CoverMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cover",
				Subsystem: "rpc",
				Name:      "operations_total",
				Help:      "Total policy operations segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cover",
				Subsystem: "engine",
				Name:      "settlements_total",
				Help:      "Total settled policies segmented by settlement result.",
			}, []string{"result"}),
			oracleCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cover",
				Subsystem: "oracle",
				Name:      "extract_duration_seconds",
				Help:      "Latency distribution for oracle rainfall extractions.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(coverRegistry.operations, coverRegistry.settlements, coverRegistry.oracleCalls)
	})
	return coverRegistry
}

// ObserveOperation counts one operation invocation.
func (m *CoverMetrics) ObserveOperation(method, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(method, outcome).Inc()
}

// ObserveSettlement counts one terminal settlement by result (YES/NO).
func (m *CoverMetrics) ObserveSettlement(result string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(result).Inc()
}

// ObserveOracleCall records one oracle round-trip.
func (m *CoverMetrics) ObserveOracleCall(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.oracleCalls.WithLabelValues(outcome).Observe(took.Seconds())
}

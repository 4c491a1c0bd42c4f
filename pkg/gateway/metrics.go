package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	variants "github.com/goliatone/go-variants"
)

// Outcome labels.
const (
	outcomeRewritten   = "rewritten"
	outcomePassThrough = "pass_through"
	outcomeSkipped     = "skipped"
	outcomeError       = "error"
)

type metrics struct {
	requests    *prometheus.CounterVec
	assignments *prometheus.CounterVec
	persisted   prometheus.Counter
	errors      prometheus.Counter
	latency     prometheus.Histogram
}

// newMetrics builds the gateway collectors. A nil reg leaves them
// unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "go_variants",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Requests handled by the gateway by outcome",
		}, []string{"outcome"}),
		assignments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "go_variants",
			Subsystem: "gateway",
			Name:      "assignments_total",
			Help:      "Variant values in rewritten requests by source",
		}, []string{"source"}),
		persisted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "go_variants",
			Subsystem: "gateway",
			Name:      "persisted_total",
			Help:      "Requests that wrote new assignments to the store",
		}),
		errors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "go_variants",
			Subsystem: "gateway",
			Name:      "resolution_errors_total",
			Help:      "Requests whose variant resolution failed",
		}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "go_variants",
			Subsystem: "gateway",
			Name:      "resolution_duration_seconds",
			Help:      "Time spent matching, resolving and persisting variants",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

func (m *metrics) observeTrace(trace variants.Trace) {
	for _, entry := range trace.Entries {
		m.assignments.WithLabelValues(string(entry.Source)).Inc()
	}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/warden/pkg/config"
)

// MethodMetrics tracks enhanced method calls.
//
// Metrics:
//   - warden_method_calls_total: Calls by method and outcome
//   - warden_method_duration_seconds: Duration of the original body
type MethodMetrics struct {
	callsTotal *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMethodMetrics creates and registers method metrics.
func NewMethodMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *MethodMetrics {
	mm := &MethodMetrics{
		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "method_calls_total",
				Help:      "Total number of enhanced method calls",
			},
			[]string{"method", "outcome"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "method_duration_seconds",
				Help:      "Duration of enhanced method calls in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"method"},
		),
	}

	registry.MustRegister(mm.callsTotal, mm.duration)

	return mm
}

// RecordCall records a method call. Skipped and re-raised calls did not run
// the body, so their duration is not observed.
func (mm *MethodMetrics) RecordCall(method, outcome string, duration time.Duration) {
	mm.callsTotal.WithLabelValues(method, outcome).Inc()
	if outcome == OutcomeOK || outcome == OutcomeError {
		mm.duration.WithLabelValues(method).Observe(duration.Seconds())
	}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/warden/pkg/config"
)

// InterceptorMetrics tracks interceptor dispatch.
//
// Metrics:
//   - warden_interceptor_calls_total: Interceptor operations by interceptor and phase
//   - warden_interceptor_errors_total: Failed operations by interceptor and phase
//   - warden_interceptor_duration_seconds: Operation duration
//   - warden_interceptor_skips_total: Calls whose body was skipped
//   - warden_interceptor_rethrows_total: Errors re-raised to callers
type InterceptorMetrics struct {
	callsTotal    *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	skipsTotal    *prometheus.CounterVec
	rethrowsTotal *prometheus.CounterVec
}

// NewInterceptorMetrics creates and registers interceptor metrics.
func NewInterceptorMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *InterceptorMetrics {
	im := &InterceptorMetrics{
		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "interceptor_calls_total",
				Help:      "Total number of interceptor operations",
			},
			[]string{"interceptor", "phase"},
		),

		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "interceptor_errors_total",
				Help:      "Total number of interceptor operations that raised an error",
			},
			[]string{"interceptor", "phase"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "interceptor_duration_seconds",
				Help:      "Duration of interceptor operations in seconds",
				// Interceptors should take microseconds
				Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10), // 1µs to 262ms
			},
			[]string{"interceptor", "phase"},
		),

		skipsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "interceptor_skips_total",
				Help:      "Total number of calls whose original body was skipped",
			},
			[]string{"method", "interceptor"},
		),

		rethrowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "interceptor_rethrows_total",
				Help:      "Total number of errors re-raised to callers by interceptors",
			},
			[]string{"method", "interceptor", "phase"},
		),
	}

	registry.MustRegister(
		im.callsTotal,
		im.errorsTotal,
		im.duration,
		im.skipsTotal,
		im.rethrowsTotal,
	)

	return im
}

// RecordCall records one interceptor operation.
func (im *InterceptorMetrics) RecordCall(name, phase string, duration time.Duration, err error) {
	im.callsTotal.WithLabelValues(name, phase).Inc()
	im.duration.WithLabelValues(name, phase).Observe(duration.Seconds())
	if err != nil {
		im.errorsTotal.WithLabelValues(name, phase).Inc()
	}
}

// RecordSkip records a skipped body.
func (im *InterceptorMetrics) RecordSkip(method, name string) {
	im.skipsTotal.WithLabelValues(method, name).Inc()
}

// RecordRethrow records a re-raised error.
func (im *InterceptorMetrics) RecordRethrow(method, name, phase string) {
	im.rethrowsTotal.WithLabelValues(method, name, phase).Inc()
}

package agent

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/warden/pkg/interceptor"
	"mercator-hq/warden/pkg/telemetry/health"
	"mercator-hq/warden/pkg/telemetry/tracing"
)

// Option configures an Agent.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	registry     *interceptor.Registry
	promRegistry *prometheus.Registry
	tracerOpts   []tracing.Option
	version      health.VersionInfo
}

// WithLogger sets the logger instead of building one from the logging
// configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegistry sets the interceptor registry. By default the agent uses a
// private registry; pass interceptor.Global() to share the process-wide one.
func WithRegistry(reg *interceptor.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithPrometheusRegistry sets the Prometheus registry metrics are
// registered with.
func WithPrometheusRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.promRegistry = reg
	}
}

// WithTracerOptions passes options to the tracer.
func WithTracerOptions(opts ...tracing.Option) Option {
	return func(o *options) {
		o.tracerOpts = append(o.tracerOpts, opts...)
	}
}

// WithVersion sets the build information served on /version.
func WithVersion(info health.VersionInfo) Option {
	return func(o *options) {
		o.version = info
	}
}

// Package telemetry groups the observability packages of the Warden agent.
//
// # Components
//
//   - logging: slog construction, redaction and invocation-aware loggers
//   - metrics: Prometheus collector, also the dispatch engine's observer
//   - tracing: OpenTelemetry tracer provider and propagation helpers
//   - health: liveness and readiness probes
//
// The agent wires all four from the telemetry section of the configuration
// and serves metrics, probes and version information on one HTTP listener.
package telemetry

// Package server provides the agent's telemetry HTTP server.
//
// The server exposes the Prometheus metrics endpoint and the health probes
// of the agent on a single listener:
//
//	GET /metrics   Prometheus exposition (path configurable)
//	GET /healthz   liveness
//	GET /readyz    readiness, one entry per registered check
//	GET /version   build information
//
// # Basic Usage
//
//	srv := server.New(server.Config{
//	    ListenAddress: cfg.Telemetry.Metrics.ListenAddress,
//	    MetricsPath:   cfg.Telemetry.Metrics.Path,
//	}, collector.Handler(), checker, health.NewVersionInfo(version, commit, built))
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Shutdown(context.Background())
//
// Start binds the listener before returning, so an address already in use
// is reported to the caller. Serving continues in the background until
// Shutdown.
//
// # Middleware
//
// Requests pass through a recovery handler that turns a handler panic into
// a 500 response and a logged error.
package server

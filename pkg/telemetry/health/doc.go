// Package health provides liveness and readiness probes for the agent's
// telemetry HTTP server.
//
// Components register named checks; readiness runs them concurrently with a
// per-check timeout and reports 503 when any check fails:
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("rules", func(ctx context.Context) error {
//	    return rulesStore.LastError()
//	})
//	health.Mount(mux, checker, version.Info())
//
// Endpoints:
//   - /healthz: the process is alive
//   - /readyz: every registered check passes
//   - /version: build information
package health

// Package metrics provides Prometheus metrics collection for the Warden agent.
//
// # Overview
//
// The Collector owns a Prometheus registry and the metric groups of the
// agent. It implements interceptor.Observer, so the dispatch engine reports
// every interceptor operation, skip and re-raise to it directly.
//
// # Metrics Categories
//
//   - Interceptor Metrics: operation count, errors and duration per phase,
//     skips and re-raises
//   - Method Metrics: enhanced method calls by outcome and duration
//   - Governance Metrics: flow control blocks, rule reloads, recorded and
//     pruned events
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	engine := interceptor.NewEngine(interceptor.WithObserver(collector))
//
//	http.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// # Prometheus Endpoint
//
//	# HELP warden_method_calls_total Total number of enhanced method calls
//	# TYPE warden_method_calls_total counter
//	warden_method_calls_total{method="inventory.Service#Lookup",outcome="ok"} 1234
//
// # Cardinality Management
//
// Method and interceptor names come from configuration and enhancement
// declarations, so they are bounded. The collector still caps the number of
// distinct method label values; methods beyond the cap are reported as
// "other".
package metrics

// Warden is an instrumentation agent that dispatches method interceptors.
//
// It declares the methods of a service, installs the configured plugins on
// them and keeps governance rules, events and telemetry up to date:
//   - Flow control with QPS and concurrency limits
//   - Tag based instance routing
//   - Request id and tag propagation
//   - OpenTelemetry spans and Prometheus metrics per call
//
// Usage:
//
//	# Run the agent with the bundled inventory service
//	warden run --config warden.yaml
//
//	# Validate configuration and rules
//	warden validate --config warden.yaml
//
//	# Show the active rules
//	warden rules show
//
//	# Query governance events
//	warden events query --kind flow_blocked --since 1h
package main

func main() {
	Execute()
}

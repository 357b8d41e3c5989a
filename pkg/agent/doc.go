// Package agent assembles a running instrumentation agent from its
// configuration: logging, metrics, tracing, the governance rule store and
// its source, the event store, the dispatch engine, the interceptor
// registry and the enhancement shim.
//
// # Lifecycle
//
//	a, err := agent.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer a.Close(context.Background())
//
//	// Declare every enhanced method before the first call. Plugins are
//	// installed on the declared methods and their chains are sealed.
//	if err := a.Declare(lookupKey, reserveKey); err != nil {
//	    return err
//	}
//	lookup := a.MustEnhance(lookupKey, lookupBody)
//
//	// Load rules, start watching them, start retention and the telemetry
//	// server.
//	if err := a.Start(ctx); err != nil {
//	    return err
//	}
//
// # Interceptor failures
//
// Interceptor errors are logged and recorded as interceptor_error events.
// With agent.propagate_interceptor_errors they are also re-raised to the
// caller of the enhanced method. With agent.dispatch_on_throw disabled no
// OnThrow callback runs.
package agent

// Package tracing provides OpenTelemetry tracing for the Warden agent.
//
// # Overview
//
// New builds a Tracer from the telemetry.tracing configuration section. When
// tracing is disabled it returns a noop tracer, so callers never need to
// check before starting spans. Spans are exported through OTLP over gRPC or
// written to stdout for local debugging.
//
// # Sampling
//
// Root spans are sampled by trace id ratio; child spans follow their parent's
// decision so an enhanced call made inside a traced request stays part of
// that trace.
//
// # Propagation
//
// W3C Trace Context and Baggage are installed as the global propagator.
// InjectToMap and ExtractFromMap move trace context through the string map
// carriers used by the tag plugin.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, cfg.Agent.ServiceName)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "inventory.Service#Lookup")
//	defer span.End()
package tracing

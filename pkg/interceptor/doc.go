// Package interceptor implements the interception dispatch engine of Warden.
//
// # Overview
//
// An enhanced method owns an ordered chain of interceptors. Every call of the
// method opens a fresh Cursor over that chain and drives it through two
// phases:
//
//   - Entry: Before is called on each interceptor in registration order.
//     The phase stops early when an interceptor asks to skip the original
//     body or asks to re-raise an error to the caller.
//   - Exit: OnThrow (only when the body failed) and After are called on the
//     interceptors whose Before ran, in reverse order.
//
// Errors raised by an interceptor are routed to an ErrorHandler and never
// abort the chain on their own. The only way an error crosses from the engine
// to the caller is an explicit re-raise request (Invocation.Rethrow), which
// the engine reports as a *RethrowError.
//
// # Components
//
//   - Invocation: per-call mutable record (arguments, result, control signals)
//   - Interceptor: the pluggable before/after/on-throw capability
//   - MethodKey: stable identity of an enhanced method
//   - Registry: method key to sealed interceptor chain
//   - Cursor: per-call bidirectional position over one chain
//   - Engine: the entry and exit state machines
//
// # Usage
//
//	registry := interceptor.NewRegistry()
//	_ = registry.Register(key, myInterceptor)
//	registry.Seal(key)
//
//	engine := interceptor.NewEngine(interceptor.WithLogger(logger))
//	chain, _ := registry.ChainFor(key)
//	cur := interceptor.NewCursor(chain)
//
//	inv, err := engine.RunEntry(interceptor.NewInvocation(ctx, nil, key, args), cur, nil)
//	// run or skip the body, then:
//	inv, err = engine.RunExit(inv, cur, engine.LogHandler(), nil)
//
// Most callers use package enhance, which performs these steps.
//
// # Thread Safety
//
// Sealed chains are immutable and read without locks. Invocations and
// cursors belong to exactly one call and must not be shared.
package interceptor

// Package enhance provides the enhancement shim: the glue between an
// enhanced method and the dispatch engine.
//
// Go code cannot be rewritten at runtime, so a method is enhanced by handing
// its body to an Enhancer and calling the returned Method instead:
//
//	lookup, err := enhancer.Enhance(key, func(inv *interceptor.Invocation) (any, error) {
//	    return svc.lookup(inv.Context(), inv.Argument(0).(string))
//	})
//	if err != nil {
//	    return err // the chain for key was never sealed
//	}
//	qty, err := enhance.Call[int](ctx, lookup, svc, "sku-1")
package enhance

import (
	"context"
	"fmt"
	"log/slog"

	"mercator-hq/warden/pkg/interceptor"
	"mercator-hq/warden/pkg/telemetry/logging"
)

// Body is the undecorated code of an enhanced method. It receives the
// invocation so that it can read the arguments as possibly rewritten by the
// interceptors, and the call context.
type Body func(inv *interceptor.Invocation) (any, error)

// Handlers are the error handlers passed to the engine for each call.
// A nil Before or After handler selects the engine's logging handler; a nil
// OnThrow handler disables OnThrow dispatch.
type Handlers struct {
	Before  interceptor.ErrorHandler
	OnThrow interceptor.ErrorHandler
	After   interceptor.ErrorHandler
}

// Enhancer turns method bodies into enhanced methods bound to a registry and
// an engine.
type Enhancer struct {
	registry *interceptor.Registry
	engine   *interceptor.Engine
	handlers Handlers
	logger   *slog.Logger
}

// Option configures an Enhancer.
type Option func(*Enhancer)

// WithHandlers overrides the error handlers used for every call.
func WithHandlers(h Handlers) Option {
	return func(e *Enhancer) {
		e.handlers = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enhancer) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEnhancer creates an enhancer. By default every handler logs and
// continues, and OnThrow dispatch is enabled.
func NewEnhancer(registry *interceptor.Registry, engine *interceptor.Engine, opts ...Option) *Enhancer {
	if registry == nil {
		registry = interceptor.Global()
	}
	if engine == nil {
		engine = interceptor.NewEngine()
	}

	e := &Enhancer{
		registry: registry,
		engine:   engine,
		logger:   slog.Default().With("component", "enhance"),
	}
	log := engine.LogHandler()
	e.handlers = Handlers{Before: log, OnThrow: log, After: log}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enhance binds body to the sealed chain of key.
//
// The chain must already be sealed: an unknown key means the enhancement
// wiring is inconsistent and is reported here, at initialization time, as a
// *interceptor.RegistryError rather than on every call.
func (e *Enhancer) Enhance(key interceptor.MethodKey, body Body) (*Method, error) {
	if body == nil {
		return nil, fmt.Errorf("enhance %s: body is nil", key)
	}
	chain, err := e.registry.ChainFor(key)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("method enhanced",
		"method", key.String(),
		"interceptors", len(chain),
	)

	return &Method{
		key:      key,
		body:     body,
		registry: e.registry,
		engine:   e.engine,
		handlers: e.handlers,
	}, nil
}

// MustEnhance is like Enhance but panics on error.
func (e *Enhancer) MustEnhance(key interceptor.MethodKey, body Body) *Method {
	m, err := e.Enhance(key, body)
	if err != nil {
		panic(err)
	}
	return m
}

// Method is an enhanced method. It is safe for concurrent use; every call
// gets its own invocation and cursor.
type Method struct {
	key      interceptor.MethodKey
	body     Body
	registry *interceptor.Registry
	engine   *interceptor.Engine
	handlers Handlers
}

// Key returns the identity of the method.
func (m *Method) Key() interceptor.MethodKey { return m.key }

// Invoke calls the method through its interceptor chain.
//
// Sequence:
//  1. Build the invocation, tag its context with the invocation fields for
//     context-aware loggers and open a cursor over the chain
//  2. Run the entry phase; a re-raise is returned to the caller at once
//  3. Run the body with the current arguments, unless skipped, in which case
//     the skip result becomes the return value
//  4. Run the exit phase over the same cursor; a re-raise is returned
//  5. Return the body error if one is still recorded, else the result
//
// Completion functions registered on the invocation run on every path,
// after the exit phase or in its place.
func (m *Method) Invoke(ctx context.Context, target any, args ...any) (any, error) {
	chain, err := m.registry.ChainFor(m.key)
	if err != nil {
		return nil, err
	}

	inv := interceptor.NewInvocation(ctx, target, m.key, args)
	inv.SetContext(logging.WithInvocation(inv.Context(), inv))
	defer func() { inv.Complete() }()
	cur := interceptor.NewCursor(chain)

	inv, err = m.engine.RunEntry(inv, cur, m.handlers.Before)
	if err != nil {
		return nil, callerError(err)
	}

	if inv.IsSkip() {
		inv.SetResult(inv.SkipResult())
	} else {
		result, thrown := runBody(m.body, inv)
		if thrown != nil {
			inv.SetThrown(thrown)
		} else {
			inv.SetResult(result)
		}
	}

	inv, err = m.engine.RunExit(inv, cur, m.handlers.OnThrow, m.handlers.After)
	if err != nil {
		return nil, callerError(err)
	}

	if thrown := inv.Thrown(); thrown != nil {
		return inv.Result(), thrown
	}
	return inv.Result(), nil
}

// runBody calls the original body and turns a panic into a body error so
// that the exit phase still runs.
func runBody(body Body, inv *interceptor.Invocation) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &interceptor.PanicError{Value: r}
		}
	}()
	return body(inv)
}

// callerError unwraps a re-raise request into the error the caller sees.
func callerError(err error) error {
	if rethrown, ok := interceptor.IsRethrow(err); ok {
		return rethrown
	}
	return err
}

// Call invokes m and converts the result to R. A nil result yields the zero
// value of R; a result of another type is an error.
func Call[R any](ctx context.Context, m *Method, target any, args ...any) (R, error) {
	var zero R

	result, err := m.Invoke(ctx, target, args...)
	if result == nil {
		return zero, err
	}

	typed, ok := result.(R)
	if !ok {
		if err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("enhance %s: result has type %T, want %T", m.key, result, zero)
	}
	return typed, err
}

package interceptor

import (
	"log/slog"
	"time"
)

// Phase names the interceptor operation being dispatched.
type Phase int

const (
	// PhaseBefore is Interceptor.Before.
	PhaseBefore Phase = iota
	// PhaseAfter is Interceptor.After.
	PhaseAfter
	// PhaseOnThrow is Interceptor.OnThrow.
	PhaseOnThrow
)

// String returns the phase name used in logs and metric labels.
func (p Phase) String() string {
	switch p {
	case PhaseBefore:
		return "before"
	case PhaseAfter:
		return "after"
	case PhaseOnThrow:
		return "on_throw"
	default:
		return "unknown"
	}
}

// ErrorHandler receives an error raised by an interceptor operation. It may
// inspect or modify the invocation; calling inv.Rethrow turns the failure
// into an error delivered to the caller. Otherwise the error is absorbed and
// the chain continues.
//
// A panicking handler is not recovered by the engine.
type ErrorHandler func(inv *Invocation, ic Interceptor, phase Phase, err error)

// Observer receives dispatch measurements. The metrics collector implements it.
type Observer interface {
	// ObserveInterceptor is called after every interceptor operation.
	ObserveInterceptor(method MethodKey, interceptor string, phase Phase, duration time.Duration, err error)

	// ObserveSkip is called when an interceptor skips the original body.
	ObserveSkip(method MethodKey, interceptor string)

	// ObserveRethrow is called when an interceptor re-raises to the caller.
	ObserveRethrow(method MethodKey, interceptor string, phase Phase)
}

// Engine drives interceptor chains through the entry and exit phases.
// It holds no per-call state and is safe for concurrent use.
type Engine struct {
	logger   *slog.Logger
	observer Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used by the default error handler.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver sets the observer that receives dispatch measurements.
func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		e.observer = observer
	}
}

// NewEngine creates a dispatch engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger: slog.Default().With("component", "interceptor.engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LogHandler returns the default error handler: it logs the failure and lets
// the chain continue.
func (e *Engine) LogHandler() ErrorHandler {
	return func(inv *Invocation, ic Interceptor, phase Phase, err error) {
		e.logger.Warn("interceptor failed",
			"method", inv.Method().String(),
			"interceptor", ic.Name(),
			"phase", phase.String(),
			"invocation_id", inv.ID(),
			"error", err,
		)
	}
}

// RunEntry runs the entry phase: Before on each interceptor, forward.
//
// Algorithm:
//  1. Take the next interceptor; stop when the chain is exhausted
//  2. Call Before; route a raised error to onErr (nil means LogHandler);
//     otherwise adopt a returned invocation
//  3. If a re-raise is pending, stop and return a *RethrowError
//  4. If the invocation is skipped, step the cursor back over the skipping
//     interceptor and stop
//  5. Otherwise continue with step 1
//
// Re-raise is checked before skip, so it wins when both are requested.
// The returned invocation is the one the shim must continue with.
func (e *Engine) RunEntry(inv *Invocation, cur *Cursor, onErr ErrorHandler) (*Invocation, error) {
	if onErr == nil {
		onErr = e.LogHandler()
	}

	for {
		ic, ok := cur.Next()
		if !ok {
			cur.state = StateCompleted
			return inv, nil
		}

		inv = e.dispatch(ic, PhaseBefore, inv, onErr)

		if err := inv.RethrowErr(); err != nil {
			cur.state = StateRethrown
			return inv, e.rethrow(inv, ic, PhaseBefore, err)
		}

		if inv.IsSkip() {
			cur.Back()
			cur.state = StateSkipped
			if e.observer != nil {
				e.observer.ObserveSkip(inv.Method(), ic.Name())
			}
			e.logger.Debug("original body skipped",
				"method", inv.Method().String(),
				"interceptor", ic.Name(),
				"invocation_id", inv.ID(),
			)
			return inv, nil
		}
	}
}

// RunExit runs the exit phase over the same cursor used by RunEntry,
// backward, visiting only interceptors whose Before ran.
//
// For each interceptor:
//  1. If the body failed and onThrowErr is non-nil, call OnThrow, route a
//     raised error to onThrowErr, adopt a returned invocation and stop with a
//     *RethrowError if a re-raise is pending
//  2. Call After; route a raised error to onAfterErr (nil means LogHandler);
//     otherwise adopt a returned invocation
//  3. Stop with a *RethrowError if a re-raise is pending
//
// A nil onThrowErr disables OnThrow dispatch entirely.
func (e *Engine) RunExit(inv *Invocation, cur *Cursor, onThrowErr, onAfterErr ErrorHandler) (*Invocation, error) {
	if onAfterErr == nil {
		onAfterErr = e.LogHandler()
	}

	for {
		ic, ok := cur.Prev()
		if !ok {
			return inv, nil
		}

		if inv.Thrown() != nil && onThrowErr != nil {
			inv = e.dispatch(ic, PhaseOnThrow, inv, onThrowErr)
			if err := inv.RethrowErr(); err != nil {
				return inv, e.rethrow(inv, ic, PhaseOnThrow, err)
			}
		}

		inv = e.dispatch(ic, PhaseAfter, inv, onAfterErr)
		if err := inv.RethrowErr(); err != nil {
			return inv, e.rethrow(inv, ic, PhaseAfter, err)
		}
	}
}

// dispatch calls one interceptor operation, isolating its failure.
func (e *Engine) dispatch(ic Interceptor, phase Phase, inv *Invocation, onErr ErrorHandler) *Invocation {
	var start time.Time
	if e.observer != nil {
		start = time.Now()
	}

	next, err := invoke(ic, phase, inv)

	if e.observer != nil {
		e.observer.ObserveInterceptor(inv.Method(), ic.Name(), phase, time.Since(start), err)
	}

	if err != nil {
		// A failed operation changes nothing; the handler acts on inv.
		onErr(inv, ic, phase, err)
		return inv
	}
	if next != nil {
		next.adoptCompletions(inv)
		return next
	}
	return inv
}

// invoke calls the operation for phase and converts a panic into an error.
func invoke(ic Interceptor, phase Phase, inv *Invocation) (next *Invocation, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, err = nil, &PanicError{Value: r}
		}
	}()

	switch phase {
	case PhaseBefore:
		return ic.Before(inv)
	case PhaseAfter:
		return ic.After(inv)
	default:
		return ic.OnThrow(inv)
	}
}

// rethrow builds the caller-bound error and reports it.
func (e *Engine) rethrow(inv *Invocation, ic Interceptor, phase Phase, err error) error {
	if e.observer != nil {
		e.observer.ObserveRethrow(inv.Method(), ic.Name(), phase)
	}
	e.logger.Debug("interceptor re-raised to caller",
		"method", inv.Method().String(),
		"interceptor", ic.Name(),
		"phase", phase.String(),
		"invocation_id", inv.ID(),
		"error", err,
	)
	return &RethrowError{
		Method:      inv.Method(),
		Interceptor: ic.Name(),
		Phase:       phase,
		Err:         err,
	}
}

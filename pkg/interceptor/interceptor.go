package interceptor

// Interceptor observes and governs calls of an enhanced method.
//
// Each operation receives the current invocation and may return a
// replacement. Returning a nil *Invocation means "no change". Returning an
// error means the operation failed: any returned invocation is ignored, the
// engine hands the error and the current invocation to the configured
// ErrorHandler and carries on with the chain unless the handler stopped it.
//
// To stop the chain, an interceptor either marks the invocation skipped
// (Before only) or requests a re-raise with Invocation.Rethrow.
//
// Implementations are shared by every concurrent call of the methods they are
// registered for and must synchronize their own state. They must not keep a
// reference to the invocation, and must tolerate each operation being called
// zero or one time per call.
type Interceptor interface {
	// Name identifies the interceptor in logs, metrics and errors.
	Name() string

	// Before runs on entry, in registration order.
	Before(inv *Invocation) (*Invocation, error)

	// After runs on exit, in reverse order, whether or not the body failed.
	After(inv *Invocation) (*Invocation, error)

	// OnThrow runs on exit before After, only when the body returned an error.
	OnThrow(inv *Invocation) (*Invocation, error)
}

// Base provides no-op implementations of the Interceptor operations.
// Embed it and override what is needed.
type Base struct {
	ID string
}

// Name returns the configured identifier.
func (b Base) Name() string { return b.ID }

// Before does nothing.
func (Base) Before(*Invocation) (*Invocation, error) { return nil, nil }

// After does nothing.
func (Base) After(*Invocation) (*Invocation, error) { return nil, nil }

// OnThrow does nothing.
func (Base) OnThrow(*Invocation) (*Invocation, error) { return nil, nil }

// Func is the signature of a single interceptor operation.
type Func func(inv *Invocation) (*Invocation, error)

// Funcs adapts plain functions to the Interceptor interface. Nil fields are
// no-ops.
type Funcs struct {
	ID          string
	BeforeFunc  Func
	AfterFunc   Func
	OnThrowFunc Func
}

// Name returns the configured identifier.
func (f Funcs) Name() string { return f.ID }

// Before calls BeforeFunc.
func (f Funcs) Before(inv *Invocation) (*Invocation, error) {
	if f.BeforeFunc == nil {
		return nil, nil
	}
	return f.BeforeFunc(inv)
}

// After calls AfterFunc.
func (f Funcs) After(inv *Invocation) (*Invocation, error) {
	if f.AfterFunc == nil {
		return nil, nil
	}
	return f.AfterFunc(inv)
}

// OnThrow calls OnThrowFunc.
func (f Funcs) OnThrow(inv *Invocation) (*Invocation, error) {
	if f.OnThrowFunc == nil {
		return nil, nil
	}
	return f.OnThrowFunc(inv)
}

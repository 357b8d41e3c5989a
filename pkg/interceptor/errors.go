package interceptor

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrUnknownMethod indicates a chain lookup for a method that was never
	// registered. It signals inconsistent enhancement wiring.
	ErrUnknownMethod = errors.New("no interceptor chain registered for method")

	// ErrChainSealed indicates a registration attempt after the chain for the
	// method was published.
	ErrChainSealed = errors.New("interceptor chain already sealed")

	// ErrNilInterceptor indicates a nil interceptor was registered.
	ErrNilInterceptor = errors.New("interceptor is nil")
)

// RethrowError carries an error that an interceptor explicitly asked to
// propagate to the caller of the enhanced method. It is the only error the
// engine returns from RunEntry and RunExit.
type RethrowError struct {
	Method      MethodKey
	Interceptor string
	Phase       Phase
	Err         error
}

// Error returns the error message.
func (e *RethrowError) Error() string {
	return fmt.Sprintf("%s: interceptor %q re-raised during %s: %v", e.Method, e.Interceptor, e.Phase, e.Err)
}

// Unwrap returns the error destined for the caller.
func (e *RethrowError) Unwrap() error {
	return e.Err
}

// RegistryError indicates that the registry and the enhancement shim
// disagree about which methods are enhanced. It is a configuration error and
// is meant to fail initialization, not individual calls.
type RegistryError struct {
	Method MethodKey
	Err    error
}

// Error returns the error message.
func (e *RegistryError) Error() string {
	return fmt.Sprintf("registry: method %s: %v", e.Method, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RegistryError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking interceptor or method
// body so it can travel through the error paths of the engine.
type PanicError struct {
	Value any
}

// Error returns the error message.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the recovered value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// IsRethrow reports whether err is a re-raise request and returns the error
// meant for the caller.
func IsRethrow(err error) (error, bool) {
	var re *RethrowError
	if errors.As(err, &re) {
		return re.Err, true
	}
	return nil, false
}

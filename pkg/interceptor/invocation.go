package interceptor

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Invocation is the per-call record shared by the interceptors of one
// enhanced method call. It is created by the enhancement shim right before
// the entry phase and discarded once the caller-visible outcome is resolved.
//
// An Invocation belongs to a single call on a single goroutine. Interceptors
// must not retain it after their Before/After/OnThrow returns.
type Invocation struct {
	id        string
	ctx       context.Context
	target    any
	method    MethodKey
	args      []any
	startTime time.Time

	// Replacement arguments, nil until an interceptor changes them.
	replacedArgs []any

	// Skip control, set during the entry phase.
	skip       bool
	skipResult any

	// Outcome of the original body (or of the skip).
	result any
	thrown error

	// Completion functions, run once by Complete.
	completions []CompletionFunc

	// Error an interceptor wants delivered to the caller.
	rethrow error

	// Invocation-scoped state for interceptors.
	locals map[string]any
	tags   map[string]string
}

// NewInvocation creates the record for one call of method on target.
// target is nil for package-level functions and constructors.
func NewInvocation(ctx context.Context, target any, method MethodKey, args []any) *Invocation {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Invocation{
		id:        uuid.NewString(),
		ctx:       ctx,
		target:    target,
		method:    method,
		args:      args,
		startTime: time.Now(),
	}
}

// ID returns the unique identifier of this call.
func (inv *Invocation) ID() string { return inv.id }

// Context returns the context the enhanced method was called with.
func (inv *Invocation) Context() context.Context { return inv.ctx }

// SetContext replaces the call context. Interceptors use it to attach spans
// or values that later interceptors and the body should observe.
func (inv *Invocation) SetContext(ctx context.Context) {
	if ctx != nil {
		inv.ctx = ctx
	}
}

// Target returns the receiver of the call, or nil.
func (inv *Invocation) Target() any { return inv.target }

// Method returns the identity of the enhanced method.
func (inv *Invocation) Method() MethodKey { return inv.method }

// StartTime returns when the invocation record was created.
func (inv *Invocation) StartTime() time.Time { return inv.startTime }

// OriginalArguments returns the arguments the method was called with.
func (inv *Invocation) OriginalArguments() []any { return inv.args }

// Arguments returns the arguments the body will be called with: the
// replacement arguments when an interceptor set them, otherwise the originals.
func (inv *Invocation) Arguments() []any {
	if inv.replacedArgs != nil {
		return inv.replacedArgs
	}
	return inv.args
}

// Argument returns argument i of Arguments, or nil when out of range.
func (inv *Invocation) Argument(i int) any {
	args := inv.Arguments()
	if i < 0 || i >= len(args) {
		return nil
	}
	return args[i]
}

// SetArguments replaces the full argument list.
func (inv *Invocation) SetArguments(args ...any) {
	inv.replacedArgs = args
}

// ChangeArgument replaces argument i. It copies the argument list on first
// change so the caller's slice is never modified.
func (inv *Invocation) ChangeArgument(i int, value any) bool {
	current := inv.Arguments()
	if i < 0 || i >= len(current) {
		return false
	}
	if inv.replacedArgs == nil {
		inv.replacedArgs = append([]any(nil), inv.args...)
	}
	inv.replacedArgs[i] = value
	return true
}

// ArgumentsChanged reports whether an interceptor replaced any argument.
func (inv *Invocation) ArgumentsChanged() bool {
	return inv.replacedArgs != nil
}

// Skip marks the original body to be skipped; result becomes the value
// returned to the caller. Only meaningful during the entry phase.
func (inv *Invocation) Skip(result any) {
	inv.skip = true
	inv.skipResult = result
}

// IsSkip reports whether the original body is to be skipped.
func (inv *Invocation) IsSkip() bool { return inv.skip }

// SkipResult returns the replacement result supplied with Skip.
func (inv *Invocation) SkipResult() any { return inv.skipResult }

// Result returns the return value of the body (or the skip result once the
// shim applied it).
func (inv *Invocation) Result() any { return inv.result }

// SetResult replaces the return value.
func (inv *Invocation) SetResult(result any) {
	inv.result = result
}

// Thrown returns the error returned by the original body, if any.
func (inv *Invocation) Thrown() error { return inv.thrown }

// SetThrown records the error returned by the original body. OnThrow
// interceptors may call SetThrown(nil) to swallow the error, usually together
// with SetResult to supply a fallback value.
func (inv *Invocation) SetThrown(err error) {
	inv.thrown = err
}

// Rethrow asks the engine to stop the current phase and deliver err to the
// caller. A nil err is ignored.
func (inv *Invocation) Rethrow(err error) {
	if err != nil {
		inv.rethrow = err
	}
}

// RethrowErr returns the pending re-raise error, or nil.
func (inv *Invocation) RethrowErr() error { return inv.rethrow }

// SetLocal stores invocation-scoped state, typically to hand something from
// an interceptor's Before to its own After.
func (inv *Invocation) SetLocal(key string, value any) {
	if inv.locals == nil {
		inv.locals = make(map[string]any)
	}
	inv.locals[key] = value
}

// Local returns invocation-scoped state stored with SetLocal.
func (inv *Invocation) Local(key string) (any, bool) {
	v, ok := inv.locals[key]
	return v, ok
}

// DeleteLocal removes invocation-scoped state.
func (inv *Invocation) DeleteLocal(key string) {
	delete(inv.locals, key)
}

// SetTag attaches a governance tag (e.g. "zone", "version") to this call.
// Tags are read by routing interceptors.
func (inv *Invocation) SetTag(key, value string) {
	if inv.tags == nil {
		inv.tags = make(map[string]string)
	}
	inv.tags[key] = value
}

// Tag returns a governance tag.
func (inv *Invocation) Tag(key string) (string, bool) {
	v, ok := inv.tags[key]
	return v, ok
}

// Tags returns a copy of all governance tags.
func (inv *Invocation) Tags() map[string]string {
	out := make(map[string]string, len(inv.tags))
	for k, v := range inv.tags {
		out[k] = v
	}
	return out
}

// CompletionFunc runs when a call has finished. It receives the final
// invocation, which carries the caller-visible outcome.
type CompletionFunc func(inv *Invocation)

// OnComplete registers fn to run once the call has finished, whatever the
// outcome. Unlike After it also runs when a re-raise bypasses the exit
// phase, so it is the place to release resources taken in Before.
// Functions run in reverse registration order.
func (inv *Invocation) OnComplete(fn CompletionFunc) {
	if fn != nil {
		inv.completions = append(inv.completions, fn)
	}
}

// Complete runs the registered completion functions. Later calls do
// nothing until new functions are registered.
func (inv *Invocation) Complete() {
	fns := inv.completions
	inv.completions = nil
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i](inv)
	}
}

// adoptCompletions moves the completion functions of prev in front of the
// ones registered on inv.
func (inv *Invocation) adoptCompletions(prev *Invocation) {
	if prev == inv || len(prev.completions) == 0 {
		return
	}
	inv.completions = append(prev.completions, inv.completions...)
	prev.completions = nil
}

// Elapsed returns the time since the invocation was created.
func (inv *Invocation) Elapsed() time.Duration {
	return time.Since(inv.startTime)
}

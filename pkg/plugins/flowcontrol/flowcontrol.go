// Package flowcontrol provides the flow control interceptor. It applies the
// flow rules of the active rule document: a token bucket limits the call
// rate and a counter limits calls in flight. A call over its limits either
// gets the rule fallback in place of the method result or fails with a
// *BlockedError.
package flowcontrol

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"mercator-hq/warden/pkg/events"
	"mercator-hq/warden/pkg/interceptor"
	"mercator-hq/warden/pkg/limits/ratelimit"
	"mercator-hq/warden/pkg/rules"
	"mercator-hq/warden/pkg/telemetry/logging"
	"mercator-hq/warden/pkg/telemetry/metrics"
)

// ErrBlocked matches every *BlockedError.
var ErrBlocked = errors.New("call blocked by flow control")

// BlockedError is raised to the caller of a call rejected by a flow rule.
type BlockedError struct {
	Rule       string
	Method     string
	Reason     string
	RetryAfter time.Duration
}

func (e *BlockedError) Error() string {
	msg := fmt.Sprintf("flow rule %q blocked %s (%s limit)", e.Rule, e.Method, e.Reason)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(", retry after %s", e.RetryAfter)
	}
	return msg
}

// Is reports whether target is ErrBlocked.
func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}

// Interceptor enforces flow rules.
type Interceptor struct {
	name        string
	rules       *rules.Store
	limiters    *ratelimit.Set
	recorder    *events.Recorder
	metrics     *metrics.Collector
	logger      *slog.Logger
	unsubscribe func()
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithLimiters shares a limiter set between interceptors. By default each
// interceptor has its own.
func WithLimiters(set *ratelimit.Set) Option {
	return func(i *Interceptor) {
		if set != nil {
			i.limiters = set
		}
	}
}

// WithRecorder records a flow_blocked event for every blocked call.
func WithRecorder(rec *events.Recorder) Option {
	return func(i *Interceptor) {
		i.recorder = rec
	}
}

// WithMetrics counts blocked calls.
func WithMetrics(c *metrics.Collector) Option {
	return func(i *Interceptor) {
		i.metrics = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interceptor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New creates a flow control interceptor reading rules from store. Limiters
// of rules that disappear from the document are dropped on reload.
func New(name string, store *rules.Store, opts ...Option) *Interceptor {
	i := &Interceptor{
		name:     name,
		rules:    store,
		limiters: ratelimit.NewSet(),
		logger:   slog.Default().With("component", "plugins.flowcontrol"),
	}
	for _, opt := range opts {
		opt(i)
	}

	i.unsubscribe = store.Subscribe(func(snap *rules.Snapshot) {
		names := make([]string, 0, len(snap.Document.FlowControl))
		for _, r := range snap.Document.FlowControl {
			names = append(names, r.Name)
		}
		i.limiters.Retain(names)
	})
	return i
}

// Name returns the interceptor name.
func (i *Interceptor) Name() string { return i.name }

// Before takes a token and a concurrency slot for the first flow rule
// matching the method. Methods without a rule pass untouched.
func (i *Interceptor) Before(inv *interceptor.Invocation) (*interceptor.Invocation, error) {
	rule, ok := i.rules.Current().FlowRuleFor(inv.Method())
	if !ok {
		return nil, nil
	}

	lim := i.limiters.Get(ratelimit.Rule{
		Name:          rule.Name,
		QPS:           rule.QPS,
		Burst:         rule.Burst,
		MaxConcurrent: rule.MaxConcurrent,
	})

	result := lim.Acquire()
	if result.Allowed {
		if rule.MaxConcurrent > 0 {
			inv.OnComplete(func(*interceptor.Invocation) { lim.Release() })
		}
		return nil, nil
	}

	i.block(inv, rule, result)
	return nil, nil
}

// After does nothing; the concurrency slot is released when the call
// completes, including calls re-raised before the exit phase.
func (i *Interceptor) After(*interceptor.Invocation) (*interceptor.Invocation, error) {
	return nil, nil
}

// OnThrow does nothing.
func (i *Interceptor) OnThrow(*interceptor.Invocation) (*interceptor.Invocation, error) {
	return nil, nil
}

// Close stops following rule reloads.
func (i *Interceptor) Close() error {
	if i.unsubscribe != nil {
		i.unsubscribe()
	}
	return nil
}

// block applies the rule behavior to a call over its limits.
func (i *Interceptor) block(inv *interceptor.Invocation, rule rules.FlowRule, result *ratelimit.CheckResult) {
	method := inv.Method().String()

	logging.ForInvocation(i.logger, inv).Info("call blocked by flow rule",
		"rule", rule.Name,
		"reason", result.Reason,
		"behavior", string(rule.Behavior),
	)
	if i.metrics != nil {
		i.metrics.RecordFlowBlocked(rule.Name, result.Reason, string(rule.Behavior))
	}
	i.recorder.Record(&events.Event{
		Kind:         events.KindFlowBlocked,
		Method:       method,
		Interceptor:  i.name,
		InvocationID: inv.ID(),
		Message:      fmt.Sprintf("%s limit of rule %q exceeded", result.Reason, rule.Name),
		Attributes: map[string]string{
			"rule":        rule.Name,
			"reason":      result.Reason,
			"behavior":    string(rule.Behavior),
			"limit":       strconv.FormatInt(result.Limit, 10),
			"retry_after": result.RetryAfter.String(),
		},
	})

	if rule.Behavior == rules.BehaviorSkip {
		inv.Skip(rule.Fallback)
		return
	}

	inv.Rethrow(&BlockedError{
		Rule:       rule.Name,
		Method:     method,
		Reason:     result.Reason,
		RetryAfter: result.RetryAfter,
	})
}

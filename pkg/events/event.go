package events

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies an event.
type Kind string

// Event kinds.
const (
	// KindFlowBlocked marks a call stopped by a flow rule.
	KindFlowBlocked Kind = "flow_blocked"

	// KindInterceptorError marks an interceptor operation that failed.
	KindInterceptorError Kind = "interceptor_error"

	// KindRulesReloaded marks a successful rule document reload.
	KindRulesReloaded Kind = "rules_reloaded"

	// KindRulesReloadFailed marks a rule reload that was rejected.
	KindRulesReloadFailed Kind = "rules_reload_failed"
)

// Kinds lists every known event kind.
var Kinds = []Kind{KindFlowBlocked, KindInterceptorError, KindRulesReloaded, KindRulesReloadFailed}

// ParseKind validates s as an event kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// Event is a single governance event.
type Event struct {
	ID           string            `json:"id"`
	Time         time.Time         `json:"time"`
	Kind         Kind              `json:"kind"`
	Method       string            `json:"method,omitempty"`
	Interceptor  string            `json:"interceptor,omitempty"`
	InvocationID string            `json:"invocation_id,omitempty"`
	Message      string            `json:"message,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// clone returns a deep copy of e.
func (e *Event) clone() *Event {
	c := *e
	if e.Attributes != nil {
		c.Attributes = make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}

// Filter selects events. Zero fields do not filter.
type Filter struct {
	Kind        Kind
	Method      string
	Interceptor string

	// Since and Until bound the event time, both inclusive.
	Since time.Time
	Until time.Time

	// Limit caps the number of events returned by Query. Zero means no cap.
	Limit  int
	Offset int
}

func (f Filter) matches(e *Event) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Method != "" && e.Method != f.Method {
		return false
	}
	if f.Interceptor != "" && e.Interceptor != f.Interceptor {
		return false
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Time.After(f.Until) {
		return false
	}
	return true
}

// Store persists events. Implementations must be safe for concurrent use.
type Store interface {
	// Append persists an event. The event must carry an ID and a time.
	Append(ctx context.Context, e *Event) error

	// Query returns the events matching f, newest first.
	Query(ctx context.Context, f Filter) ([]*Event, error)

	// Count returns the number of events matching f. Limit and Offset are
	// ignored.
	Count(ctx context.Context, f Filter) (int64, error)

	// DeleteBefore removes events older than cutoff and returns how many
	// were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteOldest removes the n oldest events and returns how many were
	// removed.
	DeleteOldest(ctx context.Context, n int64) (int64, error)

	// Close releases the resources held by the store.
	Close() error
}

// ErrClosed is returned by operations on a closed store or recorder.
var ErrClosed = errors.New("events: closed")

// StorageError represents an error from a store backend.
type StorageError struct {
	Backend   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("event storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

func storageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

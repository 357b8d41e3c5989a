// Package monitor provides the monitoring interceptor. It counts enhanced
// method calls by outcome and observes their duration, from the creation of
// the invocation until the call completes. Calls re-raised by interceptors
// declared after the monitor are counted as rethrown.
package monitor

import (
	"mercator-hq/warden/pkg/interceptor"
	"mercator-hq/warden/pkg/telemetry/metrics"
)

// Interceptor records method metrics.
type Interceptor struct {
	name      string
	collector *metrics.Collector
}

// New creates a monitoring interceptor.
func New(name string, collector *metrics.Collector) *Interceptor {
	return &Interceptor{name: name, collector: collector}
}

// Name returns the interceptor name.
func (i *Interceptor) Name() string { return i.name }

// Before arranges for the call to be recorded when it completes.
func (i *Interceptor) Before(inv *interceptor.Invocation) (*interceptor.Invocation, error) {
	inv.OnComplete(i.record)
	return nil, nil
}

// OnThrow does nothing.
func (i *Interceptor) OnThrow(*interceptor.Invocation) (*interceptor.Invocation, error) {
	return nil, nil
}

// After does nothing; the call is recorded on completion.
func (i *Interceptor) After(*interceptor.Invocation) (*interceptor.Invocation, error) {
	return nil, nil
}

func (i *Interceptor) record(final *interceptor.Invocation) {
	i.collector.RecordMethodCall(final.Method(), Outcome(final), final.Elapsed())
}

// Outcome classifies a finished invocation.
func Outcome(inv *interceptor.Invocation) string {
	switch {
	case inv.RethrowErr() != nil:
		return metrics.OutcomeRethrown
	case inv.IsSkip():
		return metrics.OutcomeSkipped
	case inv.Thrown() != nil:
		return metrics.OutcomeError
	default:
		return metrics.OutcomeOK
	}
}

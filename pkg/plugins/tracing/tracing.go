// Package tracing provides the tracing interceptor: one OpenTelemetry span
// per enhanced call, continuing the trace found in a string map carrier
// argument and propagating the new span through that carrier.
package tracing

import (
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/warden/pkg/interceptor"
	telemetry "mercator-hq/warden/pkg/telemetry/tracing"
)

// Span attribute keys.
const (
	AttrMethod       = "warden.method"
	AttrInvocationID = "warden.invocation_id"
	AttrSkipped      = "warden.skipped"
	AttrTagPrefix    = "warden.tag."
)

// Settings configures the interceptor.
type Settings struct {
	// Extract continues the trace found in the carrier argument.
	// Default: true
	Extract bool `yaml:"extract"`

	// Inject writes the call span into a copy of the carrier argument.
	// Default: true
	Inject bool `yaml:"inject"`

	// Argument is the index of the map[string]string carrier argument. A
	// negative value selects the first argument of that type.
	// Default: -1
	Argument int `yaml:"argument"`
}

// DefaultSettings returns the settings used for fields left empty.
func DefaultSettings() Settings {
	return Settings{Extract: true, Inject: true, Argument: -1}
}

// Interceptor traces calls.
type Interceptor struct {
	name     string
	tracer   *telemetry.Tracer
	settings Settings
	logger   *slog.Logger
}

// New creates a tracing interceptor.
func New(name string, tracer *telemetry.Tracer, settings Settings, logger *slog.Logger) *Interceptor {
	if logger == nil {
		logger = slog.Default().With("component", "plugins.tracing")
	}
	return &Interceptor{name: name, tracer: tracer, settings: settings, logger: logger}
}

// Name returns the interceptor name.
func (i *Interceptor) Name() string { return i.name }

// Before starts the call span and makes it current for later interceptors
// and the body.
func (i *Interceptor) Before(inv *interceptor.Invocation) (*interceptor.Invocation, error) {
	ctx := inv.Context()
	idx, carrier, hasCarrier := i.carrier(inv)
	if hasCarrier && i.settings.Extract {
		ctx = telemetry.ExtractFromMap(ctx, carrier)
	}

	attrs := []attribute.KeyValue{
		attribute.String(AttrMethod, inv.Method().String()),
		attribute.String(AttrInvocationID, inv.ID()),
	}
	for k, v := range inv.Tags() {
		attrs = append(attrs, attribute.String(AttrTagPrefix+k, v))
	}

	ctx, span := i.tracer.Start(ctx, inv.Method().String(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(inv.StartTime()),
		trace.WithAttributes(attrs...),
	)
	inv.SetContext(ctx)
	inv.OnComplete(func(final *interceptor.Invocation) { finish(span, final) })

	if hasCarrier && i.settings.Inject {
		out := make(map[string]string, len(carrier)+2)
		for k, v := range carrier {
			out[k] = v
		}
		telemetry.InjectToMap(ctx, out)
		inv.ChangeArgument(idx, out)
	}
	return nil, nil
}

// OnThrow does nothing; the body error is recorded when the call completes.
func (i *Interceptor) OnThrow(*interceptor.Invocation) (*interceptor.Invocation, error) {
	return nil, nil
}

// After does nothing; the span ends when the call completes.
func (i *Interceptor) After(*interceptor.Invocation) (*interceptor.Invocation, error) {
	return nil, nil
}

// finish records the caller-visible outcome of the call and ends its span.
// It runs after the exit phase, or in its place for a call re-raised at
// entry, so the status is set once and never downgraded.
func finish(span trace.Span, final *interceptor.Invocation) {
	if final.IsSkip() {
		span.SetAttributes(attribute.Bool(AttrSkipped, true))
	}

	err := final.RethrowErr()
	if err == nil {
		err = final.Thrown()
	}
	telemetry.SetStatus(span, err)
	span.End()
}

func (i *Interceptor) carrier(inv *interceptor.Invocation) (int, map[string]string, bool) {
	if i.settings.Argument >= 0 {
		m, ok := inv.Argument(i.settings.Argument).(map[string]string)
		return i.settings.Argument, m, ok
	}
	for idx, arg := range inv.Arguments() {
		if m, ok := arg.(map[string]string); ok {
			return idx, m, true
		}
	}
	return 0, nil, false
}

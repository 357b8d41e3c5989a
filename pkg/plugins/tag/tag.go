// Package tag provides the tagging interceptor. It gives every call a
// request id and governance tags, taken from an inbound string map carrier
// argument (such as flattened headers) when present, and writes them back
// into that carrier for the downstream hop.
//
// Tags come from, in increasing precedence: the tags of the active rule
// document, the static tags of the plugin settings, and the inbound carrier.
package tag

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"mercator-hq/warden/pkg/interceptor"
	"mercator-hq/warden/pkg/rules"
)

const (
	// DefaultRequestIDKey is the carrier key of the request id.
	DefaultRequestIDKey = "X-Request-ID"

	// DefaultPrefix is the carrier key prefix of governance tags.
	DefaultPrefix = "X-Warden-Tag-"

	// RequestIDTag is the invocation tag holding the request id.
	RequestIDTag = "request_id"
)

type contextKey string

const requestIDContextKey contextKey = "request_id"

// Settings configures the interceptor.
type Settings struct {
	// RequestIDKey is the carrier key of the request id.
	// Default: "X-Request-ID"
	RequestIDKey string `yaml:"request_id_key"`

	// Prefix is the carrier key prefix of governance tags. The tag name is
	// the lower-cased remainder of the key.
	// Default: "X-Warden-Tag-"
	Prefix string `yaml:"prefix"`

	// Static tags are attached to every call.
	Static map[string]string `yaml:"static"`

	// Argument is the index of the map[string]string carrier argument. A
	// negative value selects the first argument of that type.
	// Default: -1
	Argument int `yaml:"argument"`
}

// DefaultSettings returns the settings used for fields left empty.
func DefaultSettings() Settings {
	return Settings{
		RequestIDKey: DefaultRequestIDKey,
		Prefix:       DefaultPrefix,
		Argument:     -1,
	}
}

// Interceptor tags calls.
type Interceptor struct {
	name     string
	rules    *rules.Store
	settings Settings
	logger   *slog.Logger
}

// New creates a tagging interceptor. store may be nil.
func New(name string, store *rules.Store, settings Settings, logger *slog.Logger) *Interceptor {
	if settings.RequestIDKey == "" {
		settings.RequestIDKey = DefaultRequestIDKey
	}
	if settings.Prefix == "" {
		settings.Prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default().With("component", "plugins.tag")
	}
	return &Interceptor{name: name, rules: store, settings: settings, logger: logger}
}

// Name returns the interceptor name.
func (i *Interceptor) Name() string { return i.name }

// Before attaches the request id and tags to the invocation and its context,
// and writes them to a copy of the carrier.
func (i *Interceptor) Before(inv *interceptor.Invocation) (*interceptor.Invocation, error) {
	idx, carrier, hasCarrier := i.carrier(inv)

	if i.rules != nil {
		for k, v := range i.rules.Current().Tags {
			inv.SetTag(k, v)
		}
	}
	for k, v := range i.settings.Static {
		inv.SetTag(k, v)
	}
	for k, v := range carrier {
		if name, ok := i.tagName(k); ok {
			inv.SetTag(name, v)
		}
	}

	requestID := carrier[i.settings.RequestIDKey]
	if requestID == "" {
		requestID, _ = inv.Tag(RequestIDTag)
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	inv.SetTag(RequestIDTag, requestID)
	inv.SetContext(WithRequestID(inv.Context(), requestID))

	if hasCarrier {
		out := make(map[string]string, len(carrier)+len(inv.Tags()))
		for k, v := range carrier {
			out[k] = v
		}
		out[i.settings.RequestIDKey] = requestID
		for k, v := range inv.Tags() {
			if k == RequestIDTag {
				continue
			}
			out[i.settings.Prefix+k] = v
		}
		inv.ChangeArgument(idx, out)
	}

	i.logger.Debug("invocation tagged",
		"method", inv.Method().String(),
		"request_id", requestID,
		"tags", len(inv.Tags()),
		"invocation_id", inv.ID(),
	)
	return nil, nil
}

// After does nothing.
func (i *Interceptor) After(*interceptor.Invocation) (*interceptor.Invocation, error) {
	return nil, nil
}

// OnThrow does nothing.
func (i *Interceptor) OnThrow(*interceptor.Invocation) (*interceptor.Invocation, error) {
	return nil, nil
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

// tagName returns the tag carried by carrier key k.
func (i *Interceptor) tagName(k string) (string, bool) {
	p := i.settings.Prefix
	if len(k) <= len(p) || !strings.EqualFold(k[:len(p)], p) {
		return "", false
	}
	return strings.ToLower(k[len(p):]), true
}

// WithRequestID returns a copy of ctx carrying the request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, requestID)
}

// RequestID extracts the request id from the context.
// Returns empty string if not found.
func RequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDContextKey).(string); ok {
		return requestID
	}
	return ""
}

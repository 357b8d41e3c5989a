package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// RedactedValue replaces the value of a sensitive attribute.
const RedactedValue = "[REDACTED]"

var bearerPattern = regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`)

// Redactor hides sensitive attribute values.
type Redactor struct {
	keys []string
}

// NewRedactor creates a redactor for the given attribute keys. Keys are
// matched case-insensitively as substrings, so "token" also covers
// "auth_token".
func NewRedactor(keys []string) *Redactor {
	r := &Redactor{keys: make([]string, 0, len(keys))}
	for _, k := range keys {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			r.keys = append(r.keys, k)
		}
	}
	return r
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr function.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		return a
	}
	if r.IsSensitiveKey(a.Key) {
		return slog.String(a.Key, RedactedValue)
	}
	if a.Value.Kind() == slog.KindString {
		if s := a.Value.String(); strings.Contains(s, "Bearer") {
			return slog.String(a.Key, RedactString(s))
		}
	}
	return a
}

// IsSensitiveKey reports whether values under key are redacted.
func (r *Redactor) IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range r.keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// RedactString masks bearer tokens in s.
func RedactString(s string) string {
	return bearerPattern.ReplaceAllString(s, "Bearer ***")
}

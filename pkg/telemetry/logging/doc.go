// Package logging builds the agent's structured logger.
//
// # Overview
//
// The package wraps Go's standard log/slog package to provide:
//   - JSON and text output with configurable level and source location
//   - Redaction of sensitive attribute values before they are written
//   - Invocation-aware loggers carrying the method and invocation id
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:      "info",
//	    Format:     "json",
//	    RedactKeys: []string{"token"},
//	})
//
//	logger.Info("rules reloaded", "version", doc.Version, "token", tok) // token is redacted
//
//	// Inside an interceptor
//	log := logging.ForInvocation(logger, inv)
//	log.Debug("flow rule matched", "rule", rule.Name)
//
// # Redaction
//
// Attribute values whose key contains one of the configured keys, compared
// case-insensitively, are replaced with "[REDACTED]". Bearer tokens found in
// any string value are masked as well.
package logging

// Package plugins builds interceptors from plugin declarations and installs
// them on the methods selected by their pointcuts.
package plugins

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"

	"mercator-hq/warden/pkg/config"
	"mercator-hq/warden/pkg/events"
	"mercator-hq/warden/pkg/interceptor"
	"mercator-hq/warden/pkg/limits/ratelimit"
	"mercator-hq/warden/pkg/plugins/flowcontrol"
	"mercator-hq/warden/pkg/plugins/monitor"
	"mercator-hq/warden/pkg/plugins/router"
	"mercator-hq/warden/pkg/plugins/tag"
	"mercator-hq/warden/pkg/plugins/tracing"
	"mercator-hq/warden/pkg/rules"
	"mercator-hq/warden/pkg/telemetry/metrics"
	telemetry "mercator-hq/warden/pkg/telemetry/tracing"
)

// Deps are the shared services plugins are built on. Rules, Metrics and
// Tracer are required by the plugin types that use them; the rest may be
// nil.
type Deps struct {
	Logger   *slog.Logger
	Rules    *rules.Store
	Recorder *events.Recorder
	Metrics  *metrics.Collector
	Tracer   *telemetry.Tracer
	Limiters *ratelimit.Set
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// NewInterceptor creates the interceptor declared by cfg.
//
// Supported plugin types:
//   - "flowcontrol": rate and concurrency limits from the rule store
//   - "router": instance selection from the rule store
//   - "tag": request id and governance tags
//   - "tracing": one span per call
//   - "monitor": call counts and durations
//
// Example:
//
//	ic, err := NewInterceptor(config.PluginConfig{Name: "limits", Type: "flowcontrol"}, deps)
//	if err != nil {
//	    return err
//	}
func NewInterceptor(cfg config.PluginConfig, deps Deps) (interceptor.Interceptor, error) {
	logger := deps.logger().With("plugin", cfg.Name, "type", cfg.Type)
	logger.Debug("creating interceptor")

	var ic interceptor.Interceptor
	var err error

	switch cfg.Type {
	case "flowcontrol":
		ic, err = newFlowControl(cfg, deps, logger)
	case "router":
		ic, err = newRouter(cfg, deps, logger)
	case "tag":
		ic, err = newTag(cfg, deps, logger)
	case "tracing":
		ic, err = newTracing(cfg, deps, logger)
	case "monitor":
		ic, err = newMonitor(cfg, deps)
	default:
		return nil, fmt.Errorf("unsupported plugin type %q for plugin %q", cfg.Type, cfg.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s plugin %q: %w", cfg.Type, cfg.Name, err)
	}

	logger.Debug("interceptor created")
	return ic, nil
}

func newFlowControl(cfg config.PluginConfig, deps Deps, logger *slog.Logger) (interceptor.Interceptor, error) {
	if deps.Rules == nil {
		return nil, fmt.Errorf("rule store is required")
	}
	if err := decodeSettings(&cfg.Settings, &struct{}{}); err != nil {
		return nil, err
	}
	return flowcontrol.New(cfg.Name, deps.Rules,
		flowcontrol.WithLimiters(deps.Limiters),
		flowcontrol.WithRecorder(deps.Recorder),
		flowcontrol.WithMetrics(deps.Metrics),
		flowcontrol.WithLogger(logger),
	), nil
}

func newRouter(cfg config.PluginConfig, deps Deps, logger *slog.Logger) (interceptor.Interceptor, error) {
	if deps.Rules == nil {
		return nil, fmt.Errorf("rule store is required")
	}
	settings := router.DefaultSettings()
	if err := decodeSettings(&cfg.Settings, &settings); err != nil {
		return nil, err
	}
	return router.New(cfg.Name, deps.Rules, settings, logger)
}

func newTag(cfg config.PluginConfig, deps Deps, logger *slog.Logger) (interceptor.Interceptor, error) {
	settings := tag.DefaultSettings()
	if err := decodeSettings(&cfg.Settings, &settings); err != nil {
		return nil, err
	}
	return tag.New(cfg.Name, deps.Rules, settings, logger), nil
}

func newTracing(cfg config.PluginConfig, deps Deps, logger *slog.Logger) (interceptor.Interceptor, error) {
	if deps.Tracer == nil {
		return nil, fmt.Errorf("tracer is required")
	}
	settings := tracing.DefaultSettings()
	if err := decodeSettings(&cfg.Settings, &settings); err != nil {
		return nil, err
	}
	return tracing.New(cfg.Name, deps.Tracer, settings, logger), nil
}

func newMonitor(cfg config.PluginConfig, deps Deps) (interceptor.Interceptor, error) {
	if deps.Metrics == nil {
		return nil, fmt.Errorf("metrics collector is required")
	}
	if err := decodeSettings(&cfg.Settings, &struct{}{}); err != nil {
		return nil, err
	}
	return monitor.New(cfg.Name, deps.Metrics), nil
}

// decodeSettings decodes a settings node on top of out. Unknown keys are
// rejected. An absent node leaves out unchanged.
func decodeSettings(node *yaml.Node, out any) error {
	if node == nil || node.IsZero() {
		return nil
	}

	// Node.Decode cannot reject unknown keys.
	data, err := yaml.Marshal(node)
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"mercator-hq/warden/pkg/config"
	"mercator-hq/warden/pkg/enhance"
	"mercator-hq/warden/pkg/events"
	"mercator-hq/warden/pkg/interceptor"
	"mercator-hq/warden/pkg/limits/ratelimit"
	"mercator-hq/warden/pkg/plugins"
	"mercator-hq/warden/pkg/rules"
	"mercator-hq/warden/pkg/server"
	"mercator-hq/warden/pkg/telemetry/health"
	"mercator-hq/warden/pkg/telemetry/logging"
	"mercator-hq/warden/pkg/telemetry/metrics"
	"mercator-hq/warden/pkg/telemetry/tracing"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("agent already started")

// Agent is a configured instrumentation agent.
type Agent struct {
	cfg    *config.Config
	logger *slog.Logger

	collector *metrics.Collector
	tracer    *tracing.Tracer
	checker   *health.Checker
	server    *server.Server

	rules      *rules.Store
	source     rules.Source
	eventStore events.Store
	recorder   *events.Recorder
	pruner     *events.Pruner
	scheduler  *events.RetentionScheduler
	limiters   *ratelimit.Set

	engine   *interceptor.Engine
	registry *interceptor.Registry
	enhancer *enhance.Enhancer

	mu            sync.Mutex
	installations []*plugins.Installation
	started       bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	closeOnce     sync.Once
	closeErr      error
}

// New builds an agent from cfg. Nothing runs in the background until Start.
//
// Construction order:
//  1. Logger, metrics collector and tracer
//  2. Rule store and rule source
//  3. Event store, recorder and retention (when events are enabled)
//  4. Engine observed by the collector, registry and enhancer
//  5. Health checks and the telemetry server (when metrics are enabled)
func New(cfg *config.Config, opts ...Option) (*Agent, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &Agent{cfg: cfg, limiters: ratelimit.NewSet()}

	a.logger = o.logger
	if a.logger == nil {
		logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		a.logger = logger
	}
	a.logger = a.logger.With("service", cfg.Agent.ServiceName)

	a.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, o.promRegistry)

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, cfg.Agent.ServiceName, o.tracerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	a.tracer = tracer

	a.rules = rules.NewStore()
	a.source, err = rules.NewSource(&cfg.Rules, a.rules)
	if err != nil {
		_ = a.Close(context.Background())
		return nil, fmt.Errorf("failed to create rule source: %w", err)
	}

	if cfg.Events.Enabled {
		if err := a.initEvents(); err != nil {
			_ = a.Close(context.Background())
			return nil, err
		}
	}
	a.rules.OnReload(a.onRulesReload)

	a.engine = interceptor.NewEngine(
		interceptor.WithLogger(a.logger.With("component", "interceptor.engine")),
		interceptor.WithObserver(a.collector),
	)

	a.registry = o.registry
	if a.registry == nil {
		a.registry = interceptor.NewRegistry()
	}

	onErr := a.interceptorErrorHandler()
	handlers := enhance.Handlers{Before: onErr, After: onErr}
	if cfg.Agent.DispatchOnThrow {
		handlers.OnThrow = onErr
	}
	a.enhancer = enhance.NewEnhancer(a.registry, a.engine,
		enhance.WithHandlers(handlers),
		enhance.WithLogger(a.logger.With("component", "enhance")),
	)

	a.checker = health.New(health.DefaultCheckTimeout)
	a.checker.RegisterCheck("rules", func(context.Context) error {
		return a.rules.LastError()
	})
	if a.eventStore != nil {
		store := a.eventStore
		a.checker.RegisterCheck("events", func(ctx context.Context) error {
			_, err := store.Count(ctx, events.Filter{})
			return err
		})
	}

	if cfg.Telemetry.Metrics.Enabled {
		a.server = server.New(server.Config{
			ListenAddress: cfg.Telemetry.Metrics.ListenAddress,
			MetricsPath:   cfg.Telemetry.Metrics.Path,
		}, a.collector.Handler(), a.checker, o.version)
	}

	a.logger.Info("agent created",
		"enabled", cfg.Agent.Enabled,
		"plugins", len(cfg.EnabledPlugins()),
		"rules_source", cfg.Rules.Source,
		"events_backend", eventsBackend(cfg),
		"tracing", tracer.Enabled(),
	)
	return a, nil
}

func (a *Agent) initEvents() error {
	store, err := events.Open(&a.cfg.Events)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	a.eventStore = store

	a.recorder = events.NewRecorder(store,
		events.WithRecorderLogger(a.logger.With("component", "events.recorder")),
		events.WithOnRecord(func(k events.Kind) {
			a.collector.RecordEvent(string(k))
		}),
	)

	ret := a.cfg.Events.Retention
	a.pruner = events.NewPruner(store, events.RetentionConfig{
		Days:       ret.Days,
		MaxRecords: ret.MaxRecords,
		Schedule:   ret.Schedule,
	}, a.collector.RecordEventsPruned)
	a.scheduler = events.NewRetentionScheduler(a.pruner)
	return nil
}

// onRulesReload reports every reload attempt to metrics and events.
func (a *Agent) onRulesReload(source string, count int, err error) {
	a.collector.RecordRulesReload(source, err, count)

	e := &events.Event{
		Kind:       events.KindRulesReloaded,
		Message:    fmt.Sprintf("%d rules active", count),
		Attributes: map[string]string{"source": source},
	}
	if err != nil {
		e.Kind = events.KindRulesReloadFailed
		e.Message = err.Error()
	} else {
		e.Attributes["version"] = a.rules.Snapshot().Version
	}
	a.recorder.Record(e)
}

// interceptorErrorHandler logs, records and optionally re-raises an
// interceptor failure.
func (a *Agent) interceptorErrorHandler() interceptor.ErrorHandler {
	logHandler := a.engine.LogHandler()
	propagate := a.cfg.Agent.PropagateInterceptorErrors

	return func(inv *interceptor.Invocation, ic interceptor.Interceptor, phase interceptor.Phase, err error) {
		logHandler(inv, ic, phase, err)
		a.recorder.Record(&events.Event{
			Kind:         events.KindInterceptorError,
			Method:       inv.Method().String(),
			Interceptor:  ic.Name(),
			InvocationID: inv.ID(),
			Message:      err.Error(),
			Attributes:   map[string]string{"phase": phase.String()},
		})
		if propagate {
			inv.Rethrow(err)
		}
	}
}

// Declare installs the enabled plugins on keys and seals their chains.
// Every method must be declared before it is enhanced. When the agent is
// disabled the chains are sealed empty.
func (a *Agent) Declare(keys ...interceptor.MethodKey) error {
	for _, key := range keys {
		if err := key.Validate(); err != nil {
			return err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var declared []config.PluginConfig
	if a.cfg.Agent.Enabled {
		declared = a.cfg.EnabledPlugins()
	}

	in, err := plugins.Install(a.registry, declared, keys, plugins.Deps{
		Logger:   a.logger.With("component", "plugins"),
		Rules:    a.rules,
		Recorder: a.recorder,
		Metrics:  a.collector,
		Tracer:   a.tracer,
		Limiters: a.limiters,
	})
	if err != nil {
		return err
	}
	a.installations = append(a.installations, in)

	for _, key := range keys {
		a.registry.Seal(key)
	}
	return nil
}

// Enhance returns the enhanced form of body for a declared method.
func (a *Agent) Enhance(key interceptor.MethodKey, body enhance.Body) (*enhance.Method, error) {
	return a.enhancer.Enhance(key, body)
}

// MustEnhance is like Enhance but panics on error. Use it only during
// initialization.
func (a *Agent) MustEnhance(key interceptor.MethodKey, body enhance.Body) *enhance.Method {
	return a.enhancer.MustEnhance(key, body)
}

// Start loads the rules and starts the background work: rule watching,
// event retention and the telemetry server. Background work stops when ctx
// is done or the agent is closed.
//
// A rule source that fails its first load is logged and the agent starts
// with the rules it has; a rejected document never replaces the active one.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	if a.source != nil {
		// The watch is registered before the first load so that no edit
		// falls between the two.
		watch := a.cfg.Rules.Watch || a.cfg.Rules.Source == "git"
		if watch {
			if err := a.source.Prepare(); err != nil {
				a.logger.Error("rule watcher not started",
					"source", a.source.Name(),
					"error", err,
				)
				watch = false
			}
		}
		if err := a.source.Load(ctx); err != nil {
			a.logger.Warn("initial rule load failed, continuing with active rules",
				"source", a.source.Name(),
				"error", err,
			)
		}
		if watch {
			a.wg.Add(1)
			go a.watchRules(runCtx)
		}
	}

	if a.scheduler != nil {
		if err := a.scheduler.Start(runCtx); err != nil {
			return fmt.Errorf("failed to start retention scheduler: %w", err)
		}
	}

	if a.server != nil {
		if err := a.server.Start(); err != nil {
			return fmt.Errorf("failed to start telemetry server: %w", err)
		}
	}

	a.logger.Info("agent started",
		"methods", a.registry.Len(),
		"rules_version", a.rules.Snapshot().Version,
		"telemetry_address", a.Addr(),
	)
	return nil
}

func (a *Agent) watchRules(ctx context.Context) {
	defer a.wg.Done()
	if err := a.source.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("rule watcher stopped", "source", a.source.Name(), "error", err)
	}
}

// Close stops the background work and releases every resource. Pending
// events are flushed within ctx. Close is idempotent.
func (a *Agent) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		cancel := a.cancel
		installations := a.installations
		a.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		a.wg.Wait()

		var errs []error
		if a.server != nil {
			errs = append(errs, a.server.Shutdown(ctx))
		}
		if a.scheduler != nil {
			a.scheduler.Stop()
		}
		for _, in := range installations {
			errs = append(errs, in.Close())
		}
		if a.source != nil {
			errs = append(errs, a.source.Close())
		}
		if a.recorder != nil {
			errs = append(errs, a.recorder.Close(ctx))
		}
		if a.eventStore != nil {
			errs = append(errs, a.eventStore.Close())
		}
		if a.tracer != nil {
			errs = append(errs, a.tracer.Shutdown(ctx))
		}

		a.closeErr = errors.Join(errs...)
		a.logger.Info("agent closed", "error", a.closeErr)
	})
	return a.closeErr
}

// Config returns the agent configuration.
func (a *Agent) Config() *config.Config { return a.cfg }

// Logger returns the agent logger.
func (a *Agent) Logger() *slog.Logger { return a.logger }

// Rules returns the governance rule store.
func (a *Agent) Rules() *rules.Store { return a.rules }

// Events returns the event store, or nil when events are disabled.
func (a *Agent) Events() events.Store { return a.eventStore }

// Pruner returns the event pruner, or nil when events are disabled.
func (a *Agent) Pruner() *events.Pruner { return a.pruner }

// Registry returns the interceptor registry.
func (a *Agent) Registry() *interceptor.Registry { return a.registry }

// Metrics returns the metrics collector.
func (a *Agent) Metrics() *metrics.Collector { return a.collector }

// Health returns the health checker.
func (a *Agent) Health() *health.Checker { return a.checker }

// Addr returns the bound telemetry server address, or "" when it is not
// running.
func (a *Agent) Addr() string {
	if a.server == nil {
		return ""
	}
	return a.server.Addr()
}

func eventsBackend(cfg *config.Config) string {
	if !cfg.Events.Enabled {
		return "disabled"
	}
	return cfg.Events.Backend
}

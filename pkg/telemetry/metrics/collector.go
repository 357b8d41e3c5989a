package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/warden/pkg/config"
	"mercator-hq/warden/pkg/interceptor"
)

// DefaultMaxMethods is the number of distinct method label values tracked
// before further methods are aggregated into "other".
const DefaultMaxMethods = 1000

// OtherMethod is the label value used once the method cardinality cap is hit.
const OtherMethod = "other"

// Method call outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeSkipped  = "skipped"
	OutcomeRethrown = "rethrown"
)

// Collector is the orchestrator for all Prometheus metrics of the agent.
// It manages metric registration and provides a single interface for
// recording metrics across components.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	interceptorMetrics *InterceptorMetrics
	methodMetrics      *MethodMetrics
	governanceMetrics  *GovernanceMetrics

	cardinalityLimiter *CardinalityLimiter
}

var _ interceptor.Observer = (*Collector)(nil)

// NewCollector creates a metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a new registry is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = append([]float64(nil), config.DefaultDurationBuckets...)
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		interceptorMetrics: NewInterceptorMetrics(cfg, registry),
		methodMetrics:      NewMethodMetrics(cfg, registry),
		governanceMetrics:  NewGovernanceMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(DefaultMaxMethods),
	}
}

// ObserveInterceptor records one interceptor operation.
func (c *Collector) ObserveInterceptor(_ interceptor.MethodKey, name string, phase interceptor.Phase, duration time.Duration, err error) {
	if !c.config.Enabled {
		return
	}
	c.interceptorMetrics.RecordCall(name, phase.String(), duration, err)
}

// ObserveSkip records that an interceptor skipped the original body.
func (c *Collector) ObserveSkip(method interceptor.MethodKey, name string) {
	if !c.config.Enabled {
		return
	}
	c.interceptorMetrics.RecordSkip(c.methodLabel(method), name)
}

// ObserveRethrow records that an interceptor re-raised an error to the caller.
func (c *Collector) ObserveRethrow(method interceptor.MethodKey, name string, phase interceptor.Phase) {
	if !c.config.Enabled {
		return
	}
	c.interceptorMetrics.RecordRethrow(c.methodLabel(method), name, phase.String())
}

// RecordMethodCall records the outcome and duration of an enhanced method
// call.
//
// Parameters:
//   - method: The enhanced method
//   - outcome: One of OutcomeOK, OutcomeError, OutcomeSkipped, OutcomeRethrown
//   - duration: Time from the creation of the invocation to completion
func (c *Collector) RecordMethodCall(method interceptor.MethodKey, outcome string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.methodMetrics.RecordCall(c.methodLabel(method), outcome, duration)
}

// RecordFlowBlocked records a call blocked by a flow control rule.
//
// Parameters:
//   - rule: Flow rule name
//   - reason: "qps" or "concurrency"
//   - behavior: "skip" or "reject"
func (c *Collector) RecordFlowBlocked(rule, reason, behavior string) {
	if !c.config.Enabled {
		return
	}
	c.governanceMetrics.RecordFlowBlocked(rule, reason, behavior)
}

// RecordRulesReload records a rule reload attempt.
func (c *Collector) RecordRulesReload(source string, err error, rules int) {
	if !c.config.Enabled {
		return
	}
	c.governanceMetrics.RecordRulesReload(source, err, rules)
}

// RecordEvent records a governance event of the given kind.
func (c *Collector) RecordEvent(kind string) {
	if !c.config.Enabled {
		return
	}
	c.governanceMetrics.RecordEvent(kind)
}

// RecordEventsPruned records events deleted by retention.
func (c *Collector) RecordEventsPruned(n int64) {
	if !c.config.Enabled || n <= 0 {
		return
	}
	c.governanceMetrics.RecordPruned(n)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) methodLabel(method interceptor.MethodKey) string {
	label := method.String()
	if !c.cardinalityLimiter.Allow(label) {
		return OtherMethod
	}
	return label
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label value is allowed. Returns true if the value
// already exists or the limit has not been reached yet.
func (cl *CardinalityLimiter) Allow(label string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[label]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[label]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[label] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}

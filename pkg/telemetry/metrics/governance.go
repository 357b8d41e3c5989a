package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/warden/pkg/config"
)

// GovernanceMetrics tracks governance plugins, rules and events.
//
// Metrics:
//   - warden_flow_blocked_total: Calls blocked by flow rules
//   - warden_rules_reloads_total: Rule reload attempts by source and status
//   - warden_rules_loaded: Number of rules in the active document
//   - warden_events_recorded_total: Governance events by kind
//   - warden_events_pruned_total: Events deleted by retention
type GovernanceMetrics struct {
	flowBlockedTotal *prometheus.CounterVec
	reloadsTotal     *prometheus.CounterVec
	rulesLoaded      prometheus.Gauge
	eventsTotal      *prometheus.CounterVec
	prunedTotal      prometheus.Counter
}

// NewGovernanceMetrics creates and registers governance metrics.
func NewGovernanceMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *GovernanceMetrics {
	gm := &GovernanceMetrics{
		flowBlockedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "flow_blocked_total",
				Help:      "Total number of calls blocked by flow control rules",
			},
			[]string{"rule", "reason", "behavior"},
		),

		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "rules_reloads_total",
				Help:      "Total number of governance rule reloads",
			},
			[]string{"source", "status"},
		),

		rulesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "rules_loaded",
				Help:      "Number of rules in the active governance rule document",
			},
		),

		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "events_recorded_total",
				Help:      "Total number of governance events recorded",
			},
			[]string{"kind"},
		),

		prunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "events_pruned_total",
				Help:      "Total number of governance events deleted by retention",
			},
		),
	}

	registry.MustRegister(
		gm.flowBlockedTotal,
		gm.reloadsTotal,
		gm.rulesLoaded,
		gm.eventsTotal,
		gm.prunedTotal,
	)

	return gm
}

// RecordFlowBlocked records a blocked call.
func (gm *GovernanceMetrics) RecordFlowBlocked(rule, reason, behavior string) {
	gm.flowBlockedTotal.WithLabelValues(rule, reason, behavior).Inc()
}

// RecordRulesReload records a reload attempt. The loaded rule gauge only
// changes on success.
func (gm *GovernanceMetrics) RecordRulesReload(source string, err error, rules int) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	gm.reloadsTotal.WithLabelValues(source, status).Inc()
	if err == nil {
		gm.rulesLoaded.Set(float64(rules))
	}
}

// RecordEvent records a governance event.
func (gm *GovernanceMetrics) RecordEvent(kind string) {
	gm.eventsTotal.WithLabelValues(kind).Inc()
}

// RecordPruned records pruned events.
func (gm *GovernanceMetrics) RecordPruned(n int64) {
	gm.prunedTotal.Add(float64(n))
}

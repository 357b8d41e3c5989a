// Package router provides the routing interceptor. An enhanced method that
// receives its candidate instances as a []Instance argument gets that
// argument narrowed to the instances allowed by the heaviest route rule
// matching the invocation tags, reordered so that the selected instance
// comes first.
package router

import (
	"fmt"
	"log/slog"

	"mercator-hq/warden/pkg/interceptor"
	"mercator-hq/warden/pkg/rules"
	"mercator-hq/warden/pkg/telemetry/logging"
)

// selectedKey is the invocation local holding the selected instance.
const selectedKey = "router.selected"

// Instance is one routing candidate.
type Instance struct {
	ID      string
	Address string
	Tags    map[string]string

	// Weight is the share of traffic under the weighted strategy. Zero
	// means one; negative values exclude the instance.
	Weight int
}

// Settings configures the interceptor.
type Settings struct {
	// Strategy selects the instance picker.
	// Valid values: "round-robin", "weighted"
	// Default: "round-robin"
	Strategy string `yaml:"strategy"`

	// Argument is the index of the []Instance argument. A negative value
	// selects the first argument of that type.
	// Default: -1
	Argument int `yaml:"argument"`
}

// DefaultSettings returns the settings used for fields left empty.
func DefaultSettings() Settings {
	return Settings{Strategy: StrategyRoundRobin, Argument: -1}
}

// Interceptor routes calls by rule.
type Interceptor struct {
	name     string
	rules    *rules.Store
	strategy Strategy
	argument int
	logger   *slog.Logger
}

// New creates a routing interceptor.
func New(name string, store *rules.Store, settings Settings, logger *slog.Logger) (*Interceptor, error) {
	strategy, err := NewStrategy(settings.Strategy)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default().With("component", "plugins.router")
	}
	return &Interceptor{
		name:     name,
		rules:    store,
		strategy: strategy,
		argument: settings.Argument,
		logger:   logger,
	}, nil
}

// Name returns the interceptor name.
func (i *Interceptor) Name() string { return i.name }

// Before rewrites the instance argument.
//
// Algorithm:
//  1. Locate the []Instance argument; calls without one pass untouched
//  2. Find the heaviest route rule matching the method and invocation tags
//  3. Keep only instances whose tags contain every rule target
//  4. If none remain, keep the original list
//  5. Select one instance with the strategy and move it to the front
func (i *Interceptor) Before(inv *interceptor.Invocation) (*interceptor.Invocation, error) {
	idx, instances, ok := i.instances(inv)
	if !ok {
		return nil, nil
	}
	if len(instances) == 0 {
		return nil, nil
	}

	candidates := instances
	rule, matched := i.rules.Current().RouteFor(inv.Method(), inv.Tags())
	if matched {
		filtered := Filter(instances, rule.Targets)
		if len(filtered) > 0 {
			candidates = filtered
			inv.SetTag("route", rule.Name)
		} else {
			logging.ForInvocation(i.logger, inv).Warn("route matched no instance, keeping all candidates",
				"route", rule.Name,
				"candidates", len(instances),
			)
		}
	}

	pick, err := i.strategy.Select(candidates)
	if err != nil {
		return nil, fmt.Errorf("router %s: %w", i.name, err)
	}

	ordered := make([]Instance, 0, len(candidates))
	ordered = append(ordered, candidates[pick])
	ordered = append(ordered, candidates[:pick]...)
	ordered = append(ordered, candidates[pick+1:]...)

	inv.ChangeArgument(idx, ordered)
	inv.SetLocal(selectedKey, ordered[0])

	logging.ForInvocation(i.logger, inv).Debug("instance selected",
		"instance", ordered[0].ID,
		"strategy", i.strategy.Name(),
		"candidates", len(candidates),
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

// instances returns the index and value of the instance argument.
func (i *Interceptor) instances(inv *interceptor.Invocation) (int, []Instance, bool) {
	if i.argument >= 0 {
		list, ok := inv.Argument(i.argument).([]Instance)
		return i.argument, list, ok
	}
	for idx, arg := range inv.Arguments() {
		if list, ok := arg.([]Instance); ok {
			return idx, list, true
		}
	}
	return 0, nil, false
}

// Selected returns the instance chosen for the call, if any.
func Selected(inv *interceptor.Invocation) (Instance, bool) {
	v, ok := inv.Local(selectedKey)
	if !ok {
		return Instance{}, false
	}
	inst, ok := v.(Instance)
	return inst, ok
}

// Filter returns the instances whose tags contain every entry of targets.
// The input is not modified.
func Filter(instances []Instance, targets map[string]string) []Instance {
	out := make([]Instance, 0, len(instances))
	for _, inst := range instances {
		if hasTags(inst.Tags, targets) {
			out = append(out, inst)
		}
	}
	return out
}

func hasTags(have, want map[string]string) bool {
	for k, v := range want {
		if got, ok := have[k]; !ok || got != v {
			return false
		}
	}
	return true
}

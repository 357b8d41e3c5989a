package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"mercator-hq/warden/pkg/interceptor"
)

// Behavior is what flow control does with a call over its limits.
type Behavior string

const (
	// BehaviorSkip returns the rule fallback in place of the method result.
	BehaviorSkip Behavior = "skip"

	// BehaviorReject fails the call with a blocked error.
	BehaviorReject Behavior = "reject"
)

// Document is a complete rule set.
type Document struct {
	// Version is a free form label of the rule set.
	Version string `yaml:"version" json:"version"`

	// FlowControl limits call rates. The first rule whose method pattern
	// matches a call applies.
	FlowControl []FlowRule `yaml:"flow_control" json:"flow_control"`

	// Routes filter candidate instances by invocation tags.
	Routes []RouteRule `yaml:"routes" json:"routes"`

	// Tags are attached to every invocation by the tag plugin.
	Tags map[string]string `yaml:"tags" json:"tags,omitempty"`
}

// FlowRule limits calls of the methods matching Method.
type FlowRule struct {
	Name          string   `yaml:"name" json:"name"`
	Method        string   `yaml:"method" json:"method"`
	QPS           float64  `yaml:"qps" json:"qps,omitempty"`
	Burst         int      `yaml:"burst" json:"burst,omitempty"`
	MaxConcurrent int      `yaml:"max_concurrent" json:"max_concurrent,omitempty"`
	Behavior      Behavior `yaml:"behavior" json:"behavior"`

	// Fallback is returned to the caller when Behavior is skip.
	Fallback any `yaml:"fallback" json:"fallback,omitempty"`
}

// RouteRule narrows the instances a call may be routed to. When every entry
// of Match equals the invocation tag of the same name, only instances whose
// tags contain all of Targets are eligible.
type RouteRule struct {
	Name    string            `yaml:"name" json:"name"`
	Method  string            `yaml:"method" json:"method"`
	Match   map[string]string `yaml:"match" json:"match,omitempty"`
	Targets map[string]string `yaml:"targets" json:"targets"`

	// Weight orders rules that match the same call; the heaviest wins.
	// Rules of equal weight keep document order.
	Weight int `yaml:"weight" json:"weight,omitempty"`
}

// Parse decodes and validates a rule document. Unknown keys are rejected.
// Empty input yields an empty document.
func Parse(data []byte) (*Document, error) {
	doc := &Document{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	for i := range doc.FlowControl {
		if doc.FlowControl[i].Behavior == "" {
			doc.FlowControl[i].Behavior = BehaviorReject
		}
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseFile reads and parses a rule document from disk.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}
	return Parse(data)
}

// ValidationError lists every problem found in a document.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid rules: " + e.Problems[0]
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "invalid rules (%d problems):", len(e.Problems))
	for _, p := range e.Problems {
		b.WriteString("\n  - ")
		b.WriteString(p)
	}
	return b.String()
}

// Validate checks rule names, method patterns and limits.
func (d *Document) Validate() error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	seen := make(map[string]bool)
	for i, r := range d.FlowControl {
		where := fmt.Sprintf("flow_control[%d]", i)
		switch {
		case r.Name == "":
			addf("%s: name is required", where)
		case seen[r.Name]:
			addf("%s: duplicate rule name %q", where, r.Name)
		}
		seen[r.Name] = true

		if err := interceptor.ValidatePattern(r.Method); err != nil {
			addf("%s.method: %v", where, err)
		}
		if r.QPS < 0 {
			addf("%s.qps: cannot be negative", where)
		}
		if r.Burst < 0 {
			addf("%s.burst: cannot be negative", where)
		}
		if r.MaxConcurrent < 0 {
			addf("%s.max_concurrent: cannot be negative", where)
		}
		if r.QPS == 0 && r.MaxConcurrent == 0 {
			addf("%s: at least one of qps or max_concurrent is required", where)
		}
		if r.Behavior != BehaviorSkip && r.Behavior != BehaviorReject {
			addf("%s.behavior: must be one of: skip, reject (got %q)", where, r.Behavior)
		}
	}

	seen = make(map[string]bool)
	for i, r := range d.Routes {
		where := fmt.Sprintf("routes[%d]", i)
		switch {
		case r.Name == "":
			addf("%s: name is required", where)
		case seen[r.Name]:
			addf("%s: duplicate rule name %q", where, r.Name)
		}
		seen[r.Name] = true

		if err := interceptor.ValidatePattern(r.Method); err != nil {
			addf("%s.method: %v", where, err)
		}
		if len(r.Targets) == 0 {
			addf("%s.targets: at least one target tag is required", where)
		}
		if r.Weight < 0 {
			addf("%s.weight: cannot be negative", where)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// FlowRuleFor returns the first flow rule matching key.
func (d *Document) FlowRuleFor(key interceptor.MethodKey) (FlowRule, bool) {
	if d == nil {
		return FlowRule{}, false
	}
	for _, r := range d.FlowControl {
		if key.Match(r.Method) {
			return r, true
		}
	}
	return FlowRule{}, false
}

// RouteFor returns the heaviest route rule matching key whose Match tags
// are all present in tags.
func (d *Document) RouteFor(key interceptor.MethodKey, tags map[string]string) (RouteRule, bool) {
	if d == nil {
		return RouteRule{}, false
	}

	var best RouteRule
	found := false
	for _, r := range d.Routes {
		if !key.Match(r.Method) || !containsAll(tags, r.Match) {
			continue
		}
		if !found || r.Weight > best.Weight {
			best = r
			found = true
		}
	}
	return best, found
}

// RuleCount returns the number of flow and route rules.
func (d *Document) RuleCount() int {
	if d == nil {
		return 0
	}
	return len(d.FlowControl) + len(d.Routes)
}

// containsAll reports whether have holds every entry of want.
func containsAll(have, want map[string]string) bool {
	for k, v := range want {
		if got, ok := have[k]; !ok || got != v {
			return false
		}
	}
	return true
}

package rules

import (
	"errors"
	"strings"
	"testing"

	"mercator-hq/warden/pkg/interceptor"
)

const sampleRules = `
version: "2026-03-01"
flow_control:
  - name: lookup-qps
    method: "inventory.Service#Lookup"
    qps: 50
    burst: 10
    behavior: skip
    fallback: unavailable
  - name: any-concurrency
    method: "*#*"
    max_concurrent: 8
routes:
  - name: canary
    method: "inventory.Service#*"
    match: {lane: canary}
    targets: {version: v2}
  - name: canary-eu
    method: "inventory.Service#*"
    match: {lane: canary, region: eu}
    targets: {version: v2, region: eu}
    weight: 10
tags:
  region: eu-west-1
`

var (
	lookupKey = interceptor.NewMethodKey("inventory.Service", "Lookup", "")
	chargeKey = interceptor.NewMethodKey("billing.Service", "Charge", "")
)

func TestParse_Valid(t *testing.T) {
	doc, err := Parse([]byte(sampleRules))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if doc.Version != "2026-03-01" {
		t.Errorf("Version = %q", doc.Version)
	}
	if len(doc.FlowControl) != 2 || len(doc.Routes) != 2 {
		t.Fatalf("Expected 2 flow rules and 2 routes, got %d and %d", len(doc.FlowControl), len(doc.Routes))
	}
	if doc.FlowControl[0].Fallback != "unavailable" {
		t.Errorf("Fallback = %v", doc.FlowControl[0].Fallback)
	}
	if doc.FlowControl[1].Behavior != BehaviorReject {
		t.Errorf("Expected behavior to default to reject, got %q", doc.FlowControl[1].Behavior)
	}
	if doc.Tags["region"] != "eu-west-1" {
		t.Errorf("Tags = %v", doc.Tags)
	}
	if doc.RuleCount() != 4 {
		t.Errorf("RuleCount() = %d, want 4", doc.RuleCount())
	}
}

func TestParse_Empty(t *testing.T) {
	doc, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error = %v", err)
	}
	if doc.RuleCount() != 0 {
		t.Errorf("Expected empty document, got %d rules", doc.RuleCount())
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown key",
			yaml:    "flow_controls: []",
			wantErr: "failed to parse rules",
		},
		{
			name:    "missing name",
			yaml:    "flow_control:\n  - method: '*#*'\n    qps: 1",
			wantErr: "name is required",
		},
		{
			name:    "duplicate name",
			yaml:    "flow_control:\n  - {name: a, method: '*#*', qps: 1}\n  - {name: a, method: '*#*', qps: 2}",
			wantErr: "duplicate rule name",
		},
		{
			name:    "bad pattern",
			yaml:    "flow_control:\n  - {name: a, method: '[#x', qps: 1}",
			wantErr: "flow_control[0].method",
		},
		{
			name:    "no limits",
			yaml:    "flow_control:\n  - {name: a, method: '*#*'}",
			wantErr: "at least one of qps or max_concurrent",
		},
		{
			name:    "negative qps",
			yaml:    "flow_control:\n  - {name: a, method: '*#*', qps: -1, max_concurrent: 1}",
			wantErr: "qps: cannot be negative",
		},
		{
			name:    "bad behavior",
			yaml:    "flow_control:\n  - {name: a, method: '*#*', qps: 1, behavior: drop}",
			wantErr: "must be one of: skip, reject",
		},
		{
			name:    "route without targets",
			yaml:    "routes:\n  - {name: r, method: '*#*'}",
			wantErr: "targets",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_CollectsAllProblems(t *testing.T) {
	_, err := Parse([]byte("flow_control:\n  - {method: '*#*'}\nroutes:\n  - {name: r, method: '*#*', weight: -1}"))

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected *ValidationError, got %T", err)
	}
	if len(verr.Problems) != 4 {
		t.Errorf("Expected 4 problems, got %d: %v", len(verr.Problems), verr.Problems)
	}
}

func TestDocument_FlowRuleFor(t *testing.T) {
	doc, err := Parse([]byte(sampleRules))
	if err != nil {
		t.Fatal(err)
	}

	rule, ok := doc.FlowRuleFor(lookupKey)
	if !ok || rule.Name != "lookup-qps" {
		t.Errorf("FlowRuleFor(lookup) = %q, %v; want lookup-qps", rule.Name, ok)
	}

	rule, ok = doc.FlowRuleFor(chargeKey)
	if !ok || rule.Name != "any-concurrency" {
		t.Errorf("FlowRuleFor(charge) = %q, %v; want any-concurrency", rule.Name, ok)
	}

	var nilDoc *Document
	if _, ok := nilDoc.FlowRuleFor(lookupKey); ok {
		t.Error("Expected no rule from nil document")
	}
}

func TestDocument_RouteFor(t *testing.T) {
	doc, err := Parse([]byte(sampleRules))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		key  interceptor.MethodKey
		tags map[string]string
		want string
	}{
		{name: "no tags", key: lookupKey, tags: nil, want: ""},
		{name: "canary", key: lookupKey, tags: map[string]string{"lane": "canary"}, want: "canary"},
		{name: "heavier rule wins", key: lookupKey, tags: map[string]string{"lane": "canary", "region": "eu"}, want: "canary-eu"},
		{name: "method mismatch", key: chargeKey, tags: map[string]string{"lane": "canary"}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, ok := doc.RouteFor(tt.key, tt.tags)
			if tt.want == "" {
				if ok {
					t.Errorf("Expected no route, got %q", rule.Name)
				}
				return
			}
			if !ok || rule.Name != tt.want {
				t.Errorf("RouteFor() = %q, %v; want %q", rule.Name, ok, tt.want)
			}
		})
	}
}

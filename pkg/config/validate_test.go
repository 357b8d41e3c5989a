package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate_DefaultConfigIsValid(t *testing.T) {
	if err := Validate(NewDefaultConfig()); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "empty service name",
			mutate:    func(c *Config) { c.Agent.ServiceName = " " },
			wantField: "agent.service_name",
		},
		{
			name: "duplicate plugin name",
			mutate: func(c *Config) {
				c.Plugins = []PluginConfig{
					{Name: "a", Type: "tag", Pointcuts: []string{"*#*"}},
					{Name: "a", Type: "monitor", Pointcuts: []string{"*#*"}},
				}
			},
			wantField: "plugins[1].name",
		},
		{
			name: "bad pointcut",
			mutate: func(c *Config) {
				c.Plugins = []PluginConfig{{Name: "a", Type: "tag", Pointcuts: []string{"svc#Get["}}}
			},
			wantField: "plugins[0].pointcuts[0]",
		},
		{
			name:      "unknown rules source",
			mutate:    func(c *Config) { c.Rules.Source = "consul" },
			wantField: "rules.source",
		},
		{
			name:      "git without repository",
			mutate:    func(c *Config) { c.Rules.Source = "git" },
			wantField: "rules.git.repository",
		},
		{
			name: "token auth without token",
			mutate: func(c *Config) {
				c.Rules.Source = "git"
				c.Rules.Git.Repository = "https://example.com/rules.git"
				c.Rules.Git.Auth.Type = "token"
			},
			wantField: "rules.git.auth.token",
		},
		{
			name:      "bad retention schedule",
			mutate:    func(c *Config) { c.Events.Retention.Schedule = "every night" },
			wantField: "events.retention.schedule",
		},
		{
			name:      "query limit too large",
			mutate:    func(c *Config) { c.Events.QueryLimit = DefaultEventsMaxQueryLimit + 1 },
			wantField: "events.query_limit",
		},
		{
			name:      "bad log level",
			mutate:    func(c *Config) { c.Telemetry.Logging.Level = "trace" },
			wantField: "telemetry.logging.level",
		},
		{
			name:      "bad metrics address",
			mutate:    func(c *Config) { c.Telemetry.Metrics.ListenAddress = "9464" },
			wantField: "telemetry.metrics.listen_address",
		},
		{
			name:      "unsorted buckets",
			mutate:    func(c *Config) { c.Telemetry.Metrics.DurationBuckets = []float64{1, 0.5} },
			wantField: "telemetry.metrics.duration_buckets",
		},
		{
			name: "sample ratio out of range",
			mutate: func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				c.Telemetry.Tracing.SampleRatio = 1.5
			},
			wantField: "telemetry.tracing.sample_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %v do not mention %s", verr.Errors, tt.wantField)
			}
		})
	}
}

func TestValidate_DisabledSectionsSkipChecks(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Events.Enabled = false
	cfg.Events.Backend = "nowhere"
	cfg.Telemetry.Tracing.Exporter = "zipkin"

	if err := Validate(cfg); err != nil {
		t.Errorf("disabled sections should not be validated: %v", err)
	}
}

func TestValidationError_Format(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if got := single.Error(); got != "configuration validation failed: a: bad" {
		t.Errorf("single error = %q", got)
	}

	multi := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	if !strings.Contains(multi.Error(), "2 errors") {
		t.Errorf("multi error = %q", multi.Error())
	}
}

func TestEnabledPlugins(t *testing.T) {
	cfg := &Config{Plugins: []PluginConfig{
		{Name: "a"},
		{Name: "b", Disabled: true},
		{Name: "c"},
	}}
	got := cfg.EnabledPlugins()
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "c" {
		t.Errorf("EnabledPlugins = %v", got)
	}
}

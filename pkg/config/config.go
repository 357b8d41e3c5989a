package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Warden agent.
// It contains all configuration sections for the different components.
type Config struct {
	// Agent contains the runtime settings of the agent itself.
	Agent AgentConfig `yaml:"agent"`

	// Plugins is the ordered list of interceptor declarations. The order of
	// this list is the order in which interceptors run at entry.
	Plugins []PluginConfig `yaml:"plugins"`

	// Rules contains the dynamic governance rule source settings.
	Rules RulesConfig `yaml:"rules"`

	// Events contains governance event storage and retention settings.
	Events EventsConfig `yaml:"events"`

	// Telemetry contains observability configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AgentConfig contains the runtime settings of the agent.
type AgentConfig struct {
	// ServiceName identifies the host process in logs, traces and events.
	// Default: "warden-agent"
	ServiceName string `yaml:"service_name"`

	// Enabled controls whether plugins are installed at all. When false every
	// declared method gets an empty chain and calls go straight to the body.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// DispatchOnThrow controls whether OnThrow callbacks run when an enhanced
	// method body returns an error.
	// Default: true
	DispatchOnThrow bool `yaml:"dispatch_on_throw"`

	// PropagateInterceptorErrors turns interceptor failures into errors seen
	// by the caller instead of logging and continuing. Intended for tests and
	// staging environments.
	// Default: false
	PropagateInterceptorErrors bool `yaml:"propagate_interceptor_errors"`
}

// PluginConfig declares one interceptor instance.
type PluginConfig struct {
	// Name is the unique name of the interceptor instance. It appears in
	// logs, metrics labels and events.
	Name string `yaml:"name"`

	// Type selects the interceptor implementation.
	// Valid values: "flowcontrol", "router", "tag", "tracing", "monitor"
	Type string `yaml:"type"`

	// Disabled removes the interceptor without deleting its declaration.
	// Default: false
	Disabled bool `yaml:"disabled"`

	// Pointcuts are method patterns selecting the methods this interceptor
	// applies to, in the form "Type#Method". Both halves accept path.Match
	// globs. A pattern without "#" matches the method name of any type.
	// Default: ["*#*"]
	Pointcuts []string `yaml:"pointcuts"`

	// Settings holds type specific settings. Each plugin decodes it into its
	// own settings structure.
	Settings yaml.Node `yaml:"settings"`
}

// RulesConfig contains the configuration of the governance rule source.
type RulesConfig struct {
	// Source selects where rules are loaded from.
	// Valid values: "none", "file", "git"
	// Default: "none"
	Source string `yaml:"source"`

	// FilePath is the rule document path when Source is "file".
	// Default: "./rules.yaml"
	FilePath string `yaml:"file_path"`

	// Watch enables hot reload of the rule file.
	// Default: false
	Watch bool `yaml:"watch"`

	// Debounce is the quiet period after a file change before reloading.
	// Default: 100ms
	Debounce time.Duration `yaml:"debounce"`

	// Git contains the repository settings when Source is "git".
	Git GitRulesConfig `yaml:"git"`
}

// GitRulesConfig contains the settings of a git backed rule source.
type GitRulesConfig struct {
	// Repository is the clone URL of the rule repository.
	Repository string `yaml:"repository"`

	// Branch is the branch to track.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Path is the rule document path inside the repository.
	// Default: "rules.yaml"
	Path string `yaml:"path"`

	// LocalPath is the directory the repository is cloned into.
	// Default: "data/rules-repo"
	LocalPath string `yaml:"local_path"`

	// PollInterval is the interval between pulls.
	// Default: 1m
	PollInterval time.Duration `yaml:"poll_interval"`

	// Auth contains the repository credentials.
	Auth GitAuthConfig `yaml:"auth"`
}

// GitAuthConfig contains credentials for the rule repository.
type GitAuthConfig struct {
	// Type selects the authentication method.
	// Valid values: "none", "token", "ssh"
	// Default: "none"
	Type string `yaml:"type"`

	// Token is the access token used when Type is "token".
	// Prefer the WARDEN_RULES_GIT_AUTH_TOKEN environment variable.
	Token string `yaml:"token"`

	// SSHKeyPath is the private key used when Type is "ssh".
	SSHKeyPath string `yaml:"ssh_key_path"`

	// SSHKeyPassphrase unlocks an encrypted SSH key.
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// EventsConfig contains governance event storage settings.
type EventsConfig struct {
	// Enabled controls whether governance events are recorded.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the event store.
	// Valid values: "memory", "sqlite" (pure Go driver), "sqlite3" (cgo driver)
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SQLite contains settings for both SQLite backends.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Retention contains pruning settings.
	Retention RetentionConfig `yaml:"retention"`

	// QueryLimit is the default number of events returned by a query.
	// Default: 100
	QueryLimit int `yaml:"query_limit"`
}

// SQLiteConfig contains SQLite event store settings.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/events.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 4
	MaxOpenConns int `yaml:"max_open_conns"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RetentionConfig contains event retention settings.
type RetentionConfig struct {
	// Days is how long events are kept. Zero keeps events forever.
	// Default: 30
	Days int `yaml:"days"`

	// MaxRecords caps the number of stored events. Zero means unlimited.
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`

	// Schedule is the cron expression for pruning runs.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format.
	// Valid values: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource adds source file and line to log records.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactKeys lists attribute keys whose values are replaced with
	// "[REDACTED]" before records are written.
	// Default: ["token", "password", "authorization"]
	RedactKeys []string `yaml:"redact_keys"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the address of the metrics HTTP server.
	// Default: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "warden"
	Namespace string `yaml:"namespace"`

	// DurationBuckets are the histogram buckets, in seconds, for method and
	// interceptor durations.
	// Default: [0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5]
	DurationBuckets []float64 `yaml:"duration_buckets"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Exporter selects the span exporter.
	// Valid values: "otlp", "stdout"
	// Default: "otlp"
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of root spans sampled, from 0 to 1.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName overrides agent.service_name in the trace resource.
	ServiceName string `yaml:"service_name"`
}

// EnabledPlugins returns the plugin declarations that are not disabled, in
// declaration order.
func (c *Config) EnabledPlugins() []PluginConfig {
	out := make([]PluginConfig, 0, len(c.Plugins))
	for _, p := range c.Plugins {
		if !p.Disabled {
			out = append(out, p)
		}
	}
	return out
}

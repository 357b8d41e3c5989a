package config

import "time"

// Default values for configuration fields.
const (
	// Agent defaults
	DefaultServiceName     = "warden-agent"
	DefaultAgentEnabled    = true
	DefaultDispatchOnThrow = true

	// Plugin defaults
	DefaultPointcut = "*#*"

	// Rules defaults
	DefaultRulesSource      = "none"
	DefaultRulesFilePath    = "./rules.yaml"
	DefaultRulesDebounce    = 100 * time.Millisecond
	DefaultRulesGitBranch   = "main"
	DefaultRulesGitPath     = "rules.yaml"
	DefaultRulesGitLocal    = "data/rules-repo"
	DefaultRulesGitPoll     = time.Minute
	DefaultRulesGitAuthType = "none"

	// Events defaults
	DefaultEventsEnabled       = true
	DefaultEventsBackend       = "memory"
	DefaultEventsSQLitePath    = "data/events.db"
	DefaultEventsMaxOpenConns  = 4
	DefaultEventsWALMode       = true
	DefaultEventsBusyTimeout   = 5 * time.Second
	DefaultEventsRetentionDays = 30
	DefaultEventsRetentionCron = "0 3 * * *"
	DefaultEventsQueryLimit    = 100
	DefaultEventsMaxQueryLimit = 10000

	// Telemetry defaults
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultMetricsEnabled     = true
	DefaultMetricsAddress     = "127.0.0.1:9464"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "warden"
	DefaultTracingEnabled     = false
	DefaultTracingExporter    = "otlp"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingInsecure    = true
	DefaultTracingSampleRatio = 1.0
)

// DefaultRedactKeys are the log attribute keys redacted by default.
var DefaultRedactKeys = []string{"token", "password", "authorization"}

// DefaultDurationBuckets are the default histogram buckets in seconds.
var DefaultDurationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// NewDefaultConfig returns a configuration with every field set to its
// default value. LoadConfig decodes YAML on top of it, so boolean settings
// that default to true keep that value unless the file says otherwise.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Agent: AgentConfig{
			Enabled:         DefaultAgentEnabled,
			DispatchOnThrow: DefaultDispatchOnThrow,
		},
		Events: EventsConfig{
			Enabled: DefaultEventsEnabled,
			SQLite: SQLiteConfig{
				WALMode: DefaultEventsWALMode,
			},
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{
				Enabled: DefaultMetricsEnabled,
			},
			Tracing: TracingConfig{
				Enabled:  DefaultTracingEnabled,
				Insecure: DefaultTracingInsecure,
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in default values for any configuration fields that
// are not set. It modifies the configuration in place.
func ApplyDefaults(cfg *Config) {
	applyAgentDefaults(&cfg.Agent)
	for i := range cfg.Plugins {
		applyPluginDefaults(&cfg.Plugins[i])
	}
	applyRulesDefaults(&cfg.Rules)
	applyEventsDefaults(&cfg.Events)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyAgentDefaults(cfg *AgentConfig) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
}

func applyPluginDefaults(cfg *PluginConfig) {
	if len(cfg.Pointcuts) == 0 {
		cfg.Pointcuts = []string{DefaultPointcut}
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Type
	}
}

func applyRulesDefaults(cfg *RulesConfig) {
	if cfg.Source == "" {
		cfg.Source = DefaultRulesSource
	}
	if cfg.FilePath == "" {
		cfg.FilePath = DefaultRulesFilePath
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = DefaultRulesDebounce
	}

	git := &cfg.Git
	if git.Branch == "" {
		git.Branch = DefaultRulesGitBranch
	}
	if git.Path == "" {
		git.Path = DefaultRulesGitPath
	}
	if git.LocalPath == "" {
		git.LocalPath = DefaultRulesGitLocal
	}
	if git.PollInterval == 0 {
		git.PollInterval = DefaultRulesGitPoll
	}
	if git.Auth.Type == "" {
		git.Auth.Type = DefaultRulesGitAuthType
	}
}

func applyEventsDefaults(cfg *EventsConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultEventsBackend
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = DefaultEventsSQLitePath
	}
	if cfg.SQLite.MaxOpenConns == 0 {
		cfg.SQLite.MaxOpenConns = DefaultEventsMaxOpenConns
	}
	if cfg.SQLite.BusyTimeout == 0 {
		cfg.SQLite.BusyTimeout = DefaultEventsBusyTimeout
	}
	if cfg.Retention.Days == 0 {
		cfg.Retention.Days = DefaultEventsRetentionDays
	}
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = DefaultEventsRetentionCron
	}
	if cfg.QueryLimit == 0 {
		cfg.QueryLimit = DefaultEventsQueryLimit
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Logging.RedactKeys == nil {
		cfg.Logging.RedactKeys = append([]string(nil), DefaultRedactKeys...)
	}

	// Metrics defaults
	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = DefaultMetricsAddress
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Metrics.DurationBuckets) == 0 {
		cfg.Metrics.DurationBuckets = append([]float64(nil), DefaultDurationBuckets...)
	}

	// Tracing defaults
	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = DefaultTracingExporter
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
}

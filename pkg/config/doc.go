// Package config provides configuration management for the Warden agent.
//
// Configuration is read from a YAML file, completed with defaults, optionally
// overridden from the environment and validated before use.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("warden.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("warden.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention WARDEN_SECTION_FIELD:
//
//   - WARDEN_AGENT_SERVICE_NAME overrides agent.service_name
//   - WARDEN_EVENTS_BACKEND overrides events.backend
//   - WARDEN_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Plugin declarations have no environment overrides.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Plugins
//
// The plugins list is ordered; the order is the entry order of the
// interceptor chain of every method the plugins apply to:
//
//	plugins:
//	  - name: quota
//	    type: flowcontrol
//	    pointcuts: ["inventory.*#*"]
//	  - name: spans
//	    type: tracing
//
// # Singleton Pattern
//
//	if err := config.Initialize("warden.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// For testing, prefer explicit Config instances over the global singleton.
package config

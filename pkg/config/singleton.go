package config

import (
	"sync"
	"sync/atomic"
)

var (
	// global holds the process wide configuration used by the warden command.
	global atomic.Pointer[Config]

	// initOnce ensures configuration is loaded only once.
	initOnce sync.Once
	initErr  error
)

// Initialize loads path with environment overrides and stores the result as
// the process wide configuration. Later calls return the first result.
func Initialize(path string) error {
	initOnce.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}
		global.Store(cfg)
	})
	return initErr
}

// GetConfig returns the process wide configuration, or nil before a
// successful Initialize.
func GetConfig() *Config {
	return global.Load()
}

// SetConfig replaces the process wide configuration. Intended for tests.
func SetConfig(cfg *Config) {
	global.Store(cfg)
}

package events

import (
	"fmt"

	"mercator-hq/warden/pkg/config"
)

// Open creates the store selected by cfg.Backend.
func Open(cfg *config.EventsConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case DriverModernc, DriverMattn:
		return NewSQLiteStore(SQLiteConfig{
			Driver:       cfg.Backend,
			Path:         cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}

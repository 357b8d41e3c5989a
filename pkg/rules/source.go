package rules

import (
	"context"
	"fmt"

	"mercator-hq/warden/pkg/config"
)

// Source loads rule documents into a Store.
type Source interface {
	// Name identifies the source in logs, metrics and events.
	Name() string

	// Load reads the rules once and applies them to the store.
	Load(ctx context.Context) error

	// Prepare starts observing the source so that changes made after it
	// returns are not missed by a later Watch.
	Prepare() error

	// Watch applies changes until ctx is done. It blocks.
	Watch(ctx context.Context) error

	// Close releases the resources held by the source.
	Close() error
}

// NewSource creates the source selected by cfg. It returns nil for the
// "none" source.
func NewSource(cfg *config.RulesConfig, store *Store) (Source, error) {
	switch cfg.Source {
	case "", "none":
		return nil, nil
	case "file":
		return NewFileSource(cfg.FilePath, cfg.Debounce, store), nil
	case "git":
		return NewGitSource(&cfg.Git, store)
	default:
		return nil, fmt.Errorf("unknown rules source %q", cfg.Source)
	}
}

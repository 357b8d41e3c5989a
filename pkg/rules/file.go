package rules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrEmptyRules is returned for a rule file with no content. Editors that
// truncate before writing expose such a file briefly; the active rules stay.
var ErrEmptyRules = errors.New("rules file is empty")

// FileSource loads rules from a local YAML file.
type FileSource struct {
	path     string
	debounce time.Duration
	store    *Store
	logger   *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewFileSource creates a source for path. Changes are applied after the
// debounce period has passed without further writes.
func NewFileSource(path string, debounce time.Duration, store *Store) *FileSource {
	return &FileSource{
		path:     path,
		debounce: debounce,
		store:    store,
		logger:   slog.Default().With("component", "rules.file", "path", path),
	}
}

// Name returns "file".
func (f *FileSource) Name() string { return "file" }

// Load reads the file and applies it.
func (f *FileSource) Load(context.Context) error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		err = fmt.Errorf("failed to read rules file %q: %w", f.path, err)
		f.store.fail(f.Name(), err)
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		err = fmt.Errorf("%w: %s", ErrEmptyRules, f.path)
		f.store.fail(f.Name(), err)
		return err
	}
	return f.store.Apply(f.Name(), "", data)
}

// Prepare starts observing the file. Writes made after Prepare returns are
// delivered to the next Watch call.
//
// The parent directory is watched rather than the file itself so editors
// that replace the file by rename are still seen.
func (f *FileSource) Prepare() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	f.watcher = watcher
	return nil
}

// Watch reloads the file whenever it changes until ctx is done. It calls
// Prepare first if the caller has not.
func (f *FileSource) Watch(ctx context.Context) error {
	if err := f.Prepare(); err != nil {
		return err
	}

	f.mu.Lock()
	watcher := f.watcher
	f.mu.Unlock()
	defer f.Close()

	debouncer := NewDebouncer(f.debounce)
	defer debouncer.Stop()

	target := filepath.Clean(f.path)
	f.logger.Info("rules file watcher started",
		"debounce_ms", f.debounce.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("rules file watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target || event.Op == fsnotify.Chmod {
				continue
			}
			f.logger.Debug("rules file event", "op", event.Op.String())

			debouncer.Trigger(func() {
				if err := f.Load(ctx); err != nil {
					f.logger.Error("rules reload failed", "error", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			f.logger.Error("rules file watcher error", "error", err)
		}
	}
}

// Close releases the watcher acquired by Prepare.
func (f *FileSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.watcher == nil {
		return nil
	}
	err := f.watcher.Close()
	f.watcher = nil
	return err
}

package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is a loaded document and where it came from.
type Snapshot struct {
	Document *Document
	Version  string
	Source   string
	LoadedAt time.Time
}

// ReloadFunc observes every reload attempt. rules is the rule count of the
// document now active.
type ReloadFunc func(source string, rules int, err error)

// Store holds the active rule document.
type Store struct {
	current atomic.Pointer[Snapshot]

	mu          sync.Mutex
	subscribers map[int]func(*Snapshot)
	nextID      int
	onReload    []ReloadFunc
	lastErr     error
	logger      *slog.Logger
}

// NewStore creates a store holding an empty document.
func NewStore() *Store {
	s := &Store{
		subscribers: make(map[int]func(*Snapshot)),
		logger:      slog.Default().With("component", "rules.store"),
	}
	s.current.Store(&Snapshot{Document: &Document{}, Source: "none"})
	return s
}

// Current returns the active document. It is never nil and must not be
// modified.
func (s *Store) Current() *Document {
	return s.current.Load().Document
}

// Snapshot returns the active snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Apply parses data and, when valid, makes it the active document. The
// version defaults to the document's own version, then to a content hash.
// On error the active document is kept.
func (s *Store) Apply(source, version string, data []byte) error {
	doc, err := Parse(data)
	if err != nil {
		s.fail(source, err)
		return err
	}

	if version == "" {
		version = doc.Version
	}
	if version == "" {
		sum := sha256.Sum256(data)
		version = hex.EncodeToString(sum[:6])
	}

	s.Set(&Snapshot{Document: doc, Version: version, Source: source, LoadedAt: time.Now()})
	return nil
}

// Set replaces the active snapshot and notifies subscribers.
func (s *Store) Set(snap *Snapshot) {
	if snap.Document == nil {
		snap.Document = &Document{}
	}
	if snap.LoadedAt.IsZero() {
		snap.LoadedAt = time.Now()
	}

	s.mu.Lock()
	s.current.Store(snap)
	s.lastErr = nil
	subs := make([]func(*Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	hooks := append([]ReloadFunc(nil), s.onReload...)
	s.mu.Unlock()

	s.logger.Info("rules loaded",
		"source", snap.Source,
		"version", snap.Version,
		"flow_rules", len(snap.Document.FlowControl),
		"routes", len(snap.Document.Routes),
	)

	for _, fn := range subs {
		fn(snap)
	}
	for _, fn := range hooks {
		fn(snap.Source, snap.Document.RuleCount(), nil)
	}
}

func (s *Store) fail(source string, err error) {
	s.mu.Lock()
	s.lastErr = err
	hooks := append([]ReloadFunc(nil), s.onReload...)
	active := s.current.Load()
	s.mu.Unlock()

	s.logger.Error("rules rejected, keeping active rules",
		"source", source,
		"active_version", active.Version,
		"error", err,
	)

	for _, fn := range hooks {
		fn(source, active.Document.RuleCount(), err)
	}
}

// Subscribe registers fn to run after every successful reload. It returns a
// function removing the subscription.
func (s *Store) Subscribe(fn func(*Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// OnReload registers fn to observe every reload attempt.
func (s *Store) OnReload(fn ReloadFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = append(s.onReload, fn)
}

// LastError returns the error of the most recent reload, or nil when it
// succeeded.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

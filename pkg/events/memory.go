package events

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps events in memory, ordered by time. Events are lost when
// the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*Event
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append inserts a copy of e, keeping the slice ordered oldest first.
func (s *MemoryStore) Append(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storageError("memory", "append", ErrClosed)
	}

	c := e.clone()
	i := sort.Search(len(s.events), func(i int) bool { return s.events[i].Time.After(c.Time) })
	s.events = append(s.events, nil)
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = c
	return nil
}

// Query returns copies of the matching events, newest first.
func (s *MemoryStore) Query(_ context.Context, f Filter) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*Event{}
	skipped := 0
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if !f.matches(e) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, e.clone())
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of matching events.
func (s *MemoryStore) Count(_ context.Context, f Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.events {
		if f.matches(e) {
			n++
		}
	}
	return n, nil
}

// DeleteBefore removes events older than cutoff.
func (s *MemoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.events), func(i int) bool { return !s.events[i].Time.Before(cutoff) })
	s.events = append([]*Event(nil), s.events[i:]...)
	return int64(i), nil
}

// DeleteOldest removes the n oldest events.
func (s *MemoryStore) DeleteOldest(_ context.Context, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		return 0, nil
	}
	if n > int64(len(s.events)) {
		n = int64(len(s.events))
	}
	s.events = append([]*Event(nil), s.events[n:]...)
	return n, nil
}

// Close drops every event. Appends after Close fail.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = nil
	s.closed = true
	return nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultBufferSize is the default capacity of the recorder queue.
const DefaultBufferSize = 1024

// DefaultWriteTimeout bounds a single store write.
const DefaultWriteTimeout = 5 * time.Second

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithBufferSize sets the queue capacity.
func WithBufferSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.bufferSize = n
		}
	}
}

// WithRecorderLogger sets the logger.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithOnRecord registers a callback invoked after each event is stored.
func WithOnRecord(fn func(Kind)) RecorderOption {
	return func(r *Recorder) { r.onRecord = fn }
}

// Recorder writes events to a Store on a background goroutine. Record never
// blocks: when the queue is full the event is dropped and counted.
//
// A nil *Recorder is valid and discards everything.
type Recorder struct {
	store      Store
	queue      chan *Event
	bufferSize int
	logger     *slog.Logger
	onRecord   func(Kind)
	now        func() time.Time

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	done    chan struct{}
}

// NewRecorder creates a recorder and starts its writer.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:      store,
		bufferSize: DefaultBufferSize,
		logger:     slog.Default().With("component", "events.recorder"),
		now:        time.Now,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = make(chan *Event, r.bufferSize)

	go r.worker()
	return r
}

// Record stamps e with an id and time when missing and queues it.
func (r *Recorder) Record(e *Event) {
	if r == nil || e == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = r.now()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.queue <- e:
	default:
		r.dropped.Add(1)
		r.logger.Warn("event queue full, dropping event",
			"kind", e.Kind,
			"method", e.Method,
		)
	}
}

// Dropped returns the number of events dropped because the queue was full.
func (r *Recorder) Dropped() int64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Store returns the underlying store.
func (r *Recorder) Store() Store {
	if r == nil {
		return nil
	}
	return r.store
}

// Close stops accepting events and waits until queued events are written or
// ctx is done. It does not close the store.
func (r *Recorder) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker drains the queue until it is closed.
func (r *Recorder) worker() {
	defer close(r.done)

	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultWriteTimeout)
		err := r.store.Append(ctx, e)
		cancel()

		if err != nil {
			r.logger.Error("failed to store event",
				"event_id", e.ID,
				"kind", e.Kind,
				"error", err,
			)
			continue
		}
		if r.onRecord != nil {
			r.onRecord(e.Kind)
		}
	}
}

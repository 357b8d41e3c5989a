package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionConfig contains the pruning limits.
type RetentionConfig struct {
	// Days is how long events are kept. Zero keeps events forever.
	Days int

	// MaxRecords caps the number of stored events. Zero means unlimited.
	MaxRecords int64

	// Schedule is the cron expression of automatic pruning runs.
	// Example: "0 3 * * *" (daily at 3 AM)
	Schedule string
}

// Pruner enforces retention limits on a Store.
type Pruner struct {
	store    Store
	config   RetentionConfig
	logger   *slog.Logger
	now      func() time.Time
	onPruned func(int64)
}

// NewPruner creates a pruner. onPruned, when not nil, receives the number of
// events removed by each run.
func NewPruner(store Store, config RetentionConfig, onPruned func(int64)) *Pruner {
	return &Pruner{
		store:    store,
		config:   config,
		logger:   slog.Default().With("component", "events.retention"),
		now:      time.Now,
		onPruned: onPruned,
	}
}

// Prune deletes events older than the retention period, then the oldest
// events beyond the record cap. It returns the number of events deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.Days > 0 {
		cutoff := p.now().AddDate(0, 0, -p.config.Days)
		deleted, err := p.store.DeleteBefore(ctx, cutoff)
		if err != nil {
			return total, fmt.Errorf("prune by age failed: %w", err)
		}
		total += deleted
		p.logger.Debug("pruned events by age",
			"deleted_count", deleted,
			"cutoff_time", cutoff,
		)
	}

	if p.config.MaxRecords > 0 {
		count, err := p.store.Count(ctx, Filter{})
		if err != nil {
			return total, fmt.Errorf("failed to count events: %w", err)
		}
		if excess := count - p.config.MaxRecords; excess > 0 {
			deleted, err := p.store.DeleteOldest(ctx, excess)
			if err != nil {
				return total, fmt.Errorf("prune by count failed: %w", err)
			}
			total += deleted
			p.logger.Debug("pruned events by count",
				"deleted_count", deleted,
				"max_records", p.config.MaxRecords,
			)
		}
	}

	if total > 0 {
		p.logger.Info("event pruning completed",
			"total_deleted", total,
			"retention_days", p.config.Days,
			"max_records", p.config.MaxRecords,
		)
	}
	if p.onPruned != nil {
		p.onPruned(total)
	}

	return total, nil
}

// RetentionScheduler runs a Pruner on its cron schedule.
type RetentionScheduler struct {
	pruner  *Pruner
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewRetentionScheduler creates a scheduler for pruner.
func NewRetentionScheduler(pruner *Pruner) *RetentionScheduler {
	return &RetentionScheduler{
		pruner: pruner,
		cron:   cron.New(),
		logger: slog.Default().With("component", "events.scheduler"),
	}
}

// Start schedules pruning. An empty schedule does nothing. The scheduler
// stops when ctx is done.
func (s *RetentionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule := s.pruner.config.Schedule
	if schedule == "" {
		s.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return nil
	}

	if _, err := s.cron.AddFunc(schedule, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("retention scheduler started",
		"schedule", schedule,
		"retention_days", s.pruner.config.Days,
		"max_records", s.pruner.config.MaxRecords,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *RetentionScheduler) run(ctx context.Context) {
	if _, err := s.pruner.Prune(ctx); err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
	}
}

// Stop stops the scheduler and waits for a running prune to finish.
func (s *RetentionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("retention scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is running.
func (s *RetentionScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled pruning time, or nil.
func (s *RetentionScheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

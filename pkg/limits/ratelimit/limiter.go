package ratelimit

import (
	"sync"
	"time"
)

// Limiter enforces the limits of a single flow rule.
//
// Acquire checks concurrency first and then the token bucket, so a call
// rejected for concurrency does not spend a token.
type Limiter struct {
	rule       Rule
	bucket     *TokenBucket
	concurrent *ConcurrentLimiter
}

// NewLimiter creates a limiter for rule. Only positive limits are enforced.
func NewLimiter(rule Rule) *Limiter {
	return newLimiter(rule, time.Now)
}

func newLimiter(rule Rule, now func() time.Time) *Limiter {
	l := &Limiter{rule: rule}
	if rule.QPS > 0 {
		l.bucket = newTokenBucket(rule.burst(), rule.QPS, now)
	}
	if rule.MaxConcurrent > 0 {
		l.concurrent = NewConcurrentLimiter(rule.MaxConcurrent)
	}
	return l
}

// Rule returns the rule the limiter was built from.
func (l *Limiter) Rule() Rule { return l.rule }

// Acquire admits or rejects one call. When the result is allowed the caller
// must call Release once the call has finished.
func (l *Limiter) Acquire() *CheckResult {
	if l.concurrent != nil && !l.concurrent.Acquire() {
		return &CheckResult{
			Reason:    ReasonConcurrency,
			Limit:     l.concurrent.Limit(),
			Remaining: l.concurrent.Remaining(),
		}
	}

	if l.bucket != nil && !l.bucket.Take(1) {
		if l.concurrent != nil {
			l.concurrent.Release()
		}
		return &CheckResult{
			Reason:     ReasonQPS,
			Limit:      l.bucket.Capacity(),
			Remaining:  l.bucket.Remaining(),
			RetryAfter: l.bucket.TimeUntilAvailable(1),
		}
	}

	return &CheckResult{Allowed: true}
}

// Release frees the concurrency slot taken by a successful Acquire.
func (l *Limiter) Release() {
	if l.concurrent != nil {
		l.concurrent.Release()
	}
}

// InFlight returns the number of admitted calls not yet released.
func (l *Limiter) InFlight() int64 {
	if l.concurrent == nil {
		return 0
	}
	return l.concurrent.Current()
}

// Set holds one Limiter per rule name.
type Set struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	now      func() time.Time
}

// NewSet creates an empty limiter set.
func NewSet() *Set {
	return &Set{
		limiters: make(map[string]*Limiter),
		now:      time.Now,
	}
}

// Get returns the limiter for rule.Name, creating it on first use. A limiter
// whose limits differ from rule is replaced by a fresh one; callers holding
// the old limiter still release into it.
func (s *Set) Get(rule Rule) *Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.limiters[rule.Name]; ok && l.rule == rule {
		return l
	}
	l := newLimiter(rule, s.now)
	s.limiters[rule.Name] = l
	return l
}

// Retain drops limiters whose rule name is not in names.
func (s *Set) Retain(names []string) {
	keep := make(map[string]struct{}, len(names))
	for _, n := range names {
		keep[n] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range s.limiters {
		if _, ok := keep[name]; !ok {
			delete(s.limiters, name)
		}
	}
}

// Len returns the number of limiters held.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ============================================================================
// Token Bucket Tests
// ============================================================================

func TestTokenBucket_Basic(t *testing.T) {
	bucket := newTokenBucket(10, 10, newFakeClock().Now)

	if !bucket.Take(5) {
		t.Error("Expected to take 5 tokens from full bucket")
	}
	if got := bucket.Remaining(); got != 5 {
		t.Errorf("Expected 5 remaining, got %d", got)
	}
	if !bucket.Take(5) {
		t.Error("Expected to take remaining 5 tokens")
	}
	if bucket.Take(1) {
		t.Error("Expected bucket to be empty")
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	clock := newFakeClock()
	bucket := newTokenBucket(10, 10, clock.Now)
	bucket.Take(10)

	clock.Advance(100 * time.Millisecond)
	if !bucket.Take(1) {
		t.Error("Expected one token after 100ms at 10/sec")
	}
	if bucket.Take(1) {
		t.Error("Expected bucket to be empty again")
	}

	clock.Advance(time.Hour)
	if got := bucket.Remaining(); got != 10 {
		t.Errorf("Expected refill to stop at capacity, got %d", got)
	}
}

func TestTokenBucket_FractionalRate(t *testing.T) {
	clock := newFakeClock()
	bucket := newTokenBucket(1, 0.5, clock.Now)
	bucket.Take(1)

	clock.Advance(time.Second)
	if bucket.Take(1) {
		t.Error("Expected half a token after one second at 0.5/sec")
	}
	clock.Advance(time.Second)
	if !bucket.Take(1) {
		t.Error("Expected a full token after two seconds at 0.5/sec")
	}
}

func TestTokenBucket_TimeUntilAvailable(t *testing.T) {
	bucket := newTokenBucket(10, 10, newFakeClock().Now)

	if got := bucket.TimeUntilAvailable(1); got != 0 {
		t.Errorf("Expected 0 on a full bucket, got %v", got)
	}

	bucket.Take(10)
	if got := bucket.TimeUntilAvailable(5); got != 500*time.Millisecond {
		t.Errorf("Expected 500ms, got %v", got)
	}
}

func TestTokenBucket_Reset(t *testing.T) {
	bucket := newTokenBucket(3, 1, newFakeClock().Now)
	bucket.Take(3)
	bucket.Reset()
	if got := bucket.Remaining(); got != 3 {
		t.Errorf("Expected full bucket after reset, got %d", got)
	}
}

// ============================================================================
// Concurrent Limiter Tests
// ============================================================================

func TestConcurrentLimiter_Basic(t *testing.T) {
	limiter := NewConcurrentLimiter(2)

	if !limiter.Acquire() || !limiter.Acquire() {
		t.Fatal("Expected two slots")
	}
	if limiter.Acquire() {
		t.Error("Expected third acquire to fail")
	}
	if got := limiter.Current(); got != 2 {
		t.Errorf("Expected 2 in flight, got %d", got)
	}

	limiter.Release()
	if got := limiter.Remaining(); got != 1 {
		t.Errorf("Expected 1 free slot, got %d", got)
	}
	if !limiter.Acquire() {
		t.Error("Expected acquire after release")
	}
}

func TestConcurrentLimiter_ExtraReleaseIgnored(t *testing.T) {
	limiter := NewConcurrentLimiter(1)
	limiter.Release()
	limiter.Release()

	if got := limiter.Current(); got != 0 {
		t.Errorf("Expected 0 in flight, got %d", got)
	}
	if !limiter.Acquire() {
		t.Fatal("Expected acquire")
	}
	if limiter.Acquire() {
		t.Error("Extra releases must not raise the limit")
	}
}

func TestConcurrentLimiter_Parallel(t *testing.T) {
	limiter := NewConcurrentLimiter(5)

	var peak, inFlight atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !limiter.Acquire() {
				return
			}
			defer limiter.Release()
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
		}()
	}
	wg.Wait()

	if peak.Load() > 5 {
		t.Errorf("Expected at most 5 in flight, saw %d", peak.Load())
	}
	if limiter.Current() != 0 {
		t.Errorf("Expected all slots released, got %d", limiter.Current())
	}
}

// ============================================================================
// Limiter Tests
// ============================================================================

func TestLimiter_Acquire(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		calls   int
		allowed int
		reason  string
	}{
		{
			name:    "no limits",
			rule:    Rule{Name: "open"},
			calls:   100,
			allowed: 100,
		},
		{
			name:    "qps with explicit burst",
			rule:    Rule{Name: "qps", QPS: 1, Burst: 3},
			calls:   5,
			allowed: 3,
			reason:  ReasonQPS,
		},
		{
			name:    "burst defaults to ceil of qps",
			rule:    Rule{Name: "qps", QPS: 2.5},
			calls:   5,
			allowed: 3,
			reason:  ReasonQPS,
		},
		{
			name:    "concurrency without release",
			rule:    Rule{Name: "conc", MaxConcurrent: 2},
			calls:   4,
			allowed: 2,
			reason:  ReasonConcurrency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLimiter(tt.rule, newFakeClock().Now)

			allowed := 0
			var last *CheckResult
			for i := 0; i < tt.calls; i++ {
				res := l.Acquire()
				if res.Allowed {
					allowed++
				} else {
					last = res
				}
			}

			if allowed != tt.allowed {
				t.Errorf("Expected %d allowed, got %d", tt.allowed, allowed)
			}
			if tt.reason == "" {
				if last != nil {
					t.Errorf("Expected no rejection, got %q", last.Reason)
				}
				return
			}
			if last == nil || last.Reason != tt.reason {
				t.Errorf("Expected rejection reason %q, got %+v", tt.reason, last)
			}
		})
	}
}

func TestLimiter_QPSRejectionFreesSlot(t *testing.T) {
	l := newLimiter(Rule{Name: "both", QPS: 1, Burst: 1, MaxConcurrent: 5}, newFakeClock().Now)

	if res := l.Acquire(); !res.Allowed {
		t.Fatalf("Expected first call allowed, got %+v", res)
	}
	res := l.Acquire()
	if res.Allowed || res.Reason != ReasonQPS {
		t.Fatalf("Expected qps rejection, got %+v", res)
	}
	if res.RetryAfter != time.Second {
		t.Errorf("Expected retry after 1s, got %v", res.RetryAfter)
	}
	if got := l.InFlight(); got != 1 {
		t.Errorf("Expected the rejected call to free its slot, in flight %d", got)
	}

	l.Release()
	if got := l.InFlight(); got != 0 {
		t.Errorf("Expected 0 in flight, got %d", got)
	}
}

// ============================================================================
// Set Tests
// ============================================================================

func TestSet_GetReusesUnchangedRule(t *testing.T) {
	s := NewSet()
	rule := Rule{Name: "lookup", QPS: 10, MaxConcurrent: 2}

	first := s.Get(rule)
	if s.Get(rule) != first {
		t.Error("Expected the same limiter for an unchanged rule")
	}

	changed := rule
	changed.MaxConcurrent = 3
	second := s.Get(changed)
	if second == first {
		t.Error("Expected a new limiter after the rule changed")
	}
	if second.Rule().MaxConcurrent != 3 {
		t.Errorf("Expected new limits, got %+v", second.Rule())
	}
	if s.Len() != 1 {
		t.Errorf("Expected 1 limiter, got %d", s.Len())
	}
}

func TestSet_Retain(t *testing.T) {
	s := NewSet()
	s.Get(Rule{Name: "a", QPS: 1})
	s.Get(Rule{Name: "b", QPS: 1})
	s.Get(Rule{Name: "c", QPS: 1})

	s.Retain([]string{"b"})
	if s.Len() != 1 {
		t.Errorf("Expected 1 limiter after retain, got %d", s.Len())
	}
}

package ratelimit

import "sync/atomic"

// ConcurrentLimiter is a counting semaphore bounding calls in flight.
// It never blocks: Acquire fails immediately when the limit is reached.
type ConcurrentLimiter struct {
	limit   int64
	current atomic.Int64
}

// NewConcurrentLimiter creates a limiter admitting at most limit calls at once.
//
//	limiter := NewConcurrentLimiter(4)
//	if limiter.Acquire() {
//	    defer limiter.Release()
//	    // call the method
//	}
func NewConcurrentLimiter(limit int) *ConcurrentLimiter {
	return &ConcurrentLimiter{limit: int64(limit)}
}

// Acquire takes a slot. Every successful Acquire must be paired with one
// Release.
func (cl *ConcurrentLimiter) Acquire() bool {
	if cl.current.Add(1) > cl.limit {
		cl.current.Add(-1)
		return false
	}
	return true
}

// Release returns a slot taken by Acquire. Extra releases are ignored.
func (cl *ConcurrentLimiter) Release() {
	for {
		cur := cl.current.Load()
		if cur <= 0 {
			return
		}
		if cl.current.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// Current returns the number of calls in flight.
func (cl *ConcurrentLimiter) Current() int64 {
	return cl.current.Load()
}

// Limit returns the configured concurrency limit.
func (cl *ConcurrentLimiter) Limit() int64 {
	return cl.limit
}

// Remaining returns the number of free slots.
func (cl *ConcurrentLimiter) Remaining() int64 {
	if r := cl.limit - cl.current.Load(); r > 0 {
		return r
	}
	return 0
}

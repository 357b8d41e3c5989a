// Package ratelimit provides the limiters behind the flow control plugin.
//
// # Overview
//
// A flow rule combines two independent limits:
//
//   - Token Bucket: calls per second with a burst allowance
//   - Concurrent Limiter: calls in flight at the same time
//
// A Limiter evaluates both for one rule. A Set keeps one Limiter per rule
// name and replaces it only when the rule's limits change, so a rule reload
// that leaves a rule untouched does not reset its bucket.
//
// # Usage
//
//	set := ratelimit.NewSet()
//	lim := set.Get(ratelimit.Rule{Name: "lookup", QPS: 50, Burst: 10, MaxConcurrent: 4})
//	if res := lim.Acquire(); res.Allowed {
//	    defer lim.Release()
//	    // call the method
//	}
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package ratelimit

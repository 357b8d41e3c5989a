package ratelimit

import "time"

// Block reasons reported in CheckResult.Reason.
const (
	ReasonQPS         = "qps"
	ReasonConcurrency = "concurrency"
)

// Rule configures the limits of one flow rule. Zero values disable a limit.
type Rule struct {
	// Name identifies the rule. Limiters are shared by name.
	Name string

	// QPS is the sustained number of calls per second.
	QPS float64

	// Burst is the bucket capacity. Values below one default to
	// ceil(QPS), with a minimum of one.
	Burst int

	// MaxConcurrent limits calls in flight.
	MaxConcurrent int
}

// burst returns the effective bucket capacity.
func (r Rule) burst() int64 {
	if r.Burst > 0 {
		return int64(r.Burst)
	}
	b := int64(r.QPS)
	if float64(b) < r.QPS {
		b++
	}
	if b < 1 {
		b = 1
	}
	return b
}

// CheckResult contains the result of a limit check.
type CheckResult struct {
	// Allowed indicates if the call is permitted.
	Allowed bool

	// Reason names the limit that rejected the call (if Allowed=false).
	Reason string

	// Limit is the configured value of the limit that was hit.
	Limit int64

	// Remaining is the headroom left on that limit.
	Remaining int64

	// RetryAfter suggests how long to wait before retrying.
	RetryAfter time.Duration
}

package outbox

import "time"

// RetryPolicy decides how long a failed job waits and when it stops being retried.
type RetryPolicy struct {
	// Backoff is indexed by the failed attempt number; attempts past the
	// end reuse the last entry.
	Backoff []time.Duration
	// MaxRetries is the number of retries allowed after the first attempt.
	MaxRetries int
}

// DefaultRetryPolicy returns an immediate retry, then 30s, then 5m, with three retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Backoff:    []time.Duration{0, 30 * time.Second, 5 * time.Minute},
		MaxRetries: 3,
	}
}

// BackoffFor returns the delay after attempt number attempt (1-based) fails.
func (p RetryPolicy) BackoffFor(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	idx := min(max(attempt-1, 0), len(p.Backoff)-1)
	return p.Backoff[idx]
}

// IsExhausted reports whether a failure on attempt leaves no retries.
func (p RetryPolicy) IsExhausted(attempt int) bool {
	return attempt > p.MaxRetries
}

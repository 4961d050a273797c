package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{
		Backoff:    []time.Duration{0, 30 * time.Second, 300 * time.Second},
		MaxRetries: 3,
	}

	tests := []struct {
		attempt   int
		backoff   time.Duration
		exhausted bool
	}{
		{0, 0, false},
		{1, 0, false},
		{2, 30 * time.Second, false},
		{3, 300 * time.Second, false},
		{4, 300 * time.Second, true},
		{9, 300 * time.Second, true},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.backoff, p.BackoffFor(tc.attempt), "backoff for attempt %d", tc.attempt)
		assert.Equal(t, tc.exhausted, p.IsExhausted(tc.attempt), "exhausted at attempt %d", tc.attempt)
	}
}

func TestRetryPolicy_EdgeCases(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Duration(0), RetryPolicy{}.BackoffFor(5))
	assert.True(t, RetryPolicy{MaxRetries: 0}.IsExhausted(1))
	assert.Equal(t, DefaultRetryPolicy().BackoffFor(3), 5*time.Minute)
}

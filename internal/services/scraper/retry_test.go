package scraper

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AliAzimiD/jobharvest/internal/common"
)

func TestRetryPolicy_BackoffGrowsAndCaps(t *testing.T) {
	policy := NewRetryPolicy(5, 1*time.Second, 30*time.Second, 2.0)

	var prev time.Duration
	for attempt := 1; attempt <= 10; attempt++ {
		delay := policy.Backoff(attempt)
		assert.GreaterOrEqual(t, delay, prev, "backoff must never decrease")
		assert.LessOrEqual(t, delay, 30*time.Second, "backoff must never exceed the ceiling")
		prev = delay
	}

	assert.Equal(t, 1*time.Second, policy.Backoff(1))
	assert.Equal(t, 2*time.Second, policy.Backoff(2))
	assert.Equal(t, 4*time.Second, policy.Backoff(3))
	assert.Equal(t, 30*time.Second, policy.Backoff(10))
}

func TestRetryPolicy_ExecuteRetriesTransientErrors(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond, 5*time.Millisecond, 2.0)
	policy.Jitter = false

	calls := 0
	err := policy.Execute(context.Background(), common.GetLogger(), "test", func() error {
		calls++
		if calls < 3 {
			return &HTTPStatusError{StatusCode: 503, Page: 1}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_ExecuteStopsOnFatalError(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond, 5*time.Millisecond, 2.0)
	policy.Jitter = false

	calls := 0
	err := policy.Execute(context.Background(), common.GetLogger(), "test", func() error {
		calls++
		return &HTTPStatusError{StatusCode: 404, Page: 1}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "a 404 must not be retried")
}

func TestRetryPolicy_ExecuteExhaustsBudget(t *testing.T) {
	policy := NewRetryPolicy(2, time.Millisecond, 5*time.Millisecond, 2.0)
	policy.Jitter = false

	calls := 0
	sentinel := &HTTPStatusError{StatusCode: 500, Page: 1}
	err := policy.Execute(context.Background(), common.GetLogger(), "test", func() error {
		calls++
		return sentinel
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "retry_count=2 means 3 attempts total")

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 500, statusErr.StatusCode)
}

func TestRetryPolicy_ExecuteRespectsCancellation(t *testing.T) {
	policy := NewRetryPolicy(5, time.Hour, time.Hour, 2.0)
	policy.Jitter = false

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := policy.Execute(ctx, common.GetLogger(), "test", func() error {
		calls++
		return &HTTPStatusError{StatusCode: 500, Page: 1}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancellation must interrupt the backoff sleep")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"http 500", &HTTPStatusError{StatusCode: 500}, true},
		{"http 503", &HTTPStatusError{StatusCode: 503}, true},
		{"http 408", &HTTPStatusError{StatusCode: 408}, true},
		{"http 429", &HTTPStatusError{StatusCode: 429}, true},
		{"http 400", &HTTPStatusError{StatusCode: 400}, false},
		{"http 401", &HTTPStatusError{StatusCode: 401}, false},
		{"http 404", &HTTPStatusError{StatusCode: 404}, false},
		{"schema mismatch", &SchemaError{Page: 1, Reason: "not an array"}, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestFailureCounter_TripsOnceAboveThreshold(t *testing.T) {
	counter := NewFailureCounter(3)

	for i := 0; i < 3; i++ {
		assert.False(t, counter.Record(), "failures within the threshold must not trip")
	}
	assert.False(t, counter.Tripped())

	assert.True(t, counter.Record(), "crossing the threshold trips exactly once")
	assert.True(t, counter.Tripped())

	assert.False(t, counter.Record(), "later failures must not trip again")
	assert.True(t, counter.Tripped())
	assert.Equal(t, 5, counter.Count())
}

package scraper

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy controls retries of a single transient-failing operation.
// MaxAttempts counts the first try: MaxAttempts = retry_count + 1.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            bool

	// Classify overrides the default retryability check. Used by the
	// storage path, where any store error short of cancellation is worth
	// retrying before falling back to disk.
	Classify func(error) bool
}

// NewRetryPolicy builds a policy from the scraper retry knobs
func NewRetryPolicy(retryCount int, initialBackoff, maxBackoff time.Duration, multiplier float64) *RetryPolicy {
	if multiplier < 1 {
		multiplier = 1
	}
	return &RetryPolicy{
		MaxAttempts:       retryCount + 1,
		InitialBackoff:    initialBackoff,
		MaxBackoff:        maxBackoff,
		BackoffMultiplier: multiplier,
		Jitter:            true,
	}
}

// Backoff returns the delay before retry attempt (1-based):
// min(MaxBackoff, InitialBackoff * multiplier^(attempt-1)). The sequence is
// non-decreasing and never exceeds MaxBackoff.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if delay > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(delay)
}

// Execute runs fn, retrying while the error is transient and attempts
// remain. It sleeps the backoff between attempts and respects cancellation
// both mid-sleep and via fn itself. The last error is returned when the
// budget is exhausted.
func (p *RetryPolicy) Execute(ctx context.Context, logger arbor.ILogger, op string, fn func() error) error {
	classify := p.Classify
	if classify == nil {
		classify = IsRetryable
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !classify(err) || attempt == p.MaxAttempts {
			return err
		}

		delay := p.Backoff(attempt)
		if p.Jitter {
			// up to 25% added, never subtracted, so the floor stays honest
			delay += time.Duration(rand.Int63n(int64(delay)/4 + 1))
		}

		logger.Warn().
			Err(err).
			Str("operation", op).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Dur("backoff", delay).
			Msg("Transient failure, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// IsRetryable reports whether an error is worth retrying: timeouts,
// connection failures, HTTP 408/429 and 5xx. Schema mismatches and other
// 4xx responses are deterministic and retrying them only burns the budget.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return false
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode >= 500:
			return true
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// FailureCounter is the run-scoped circuit breaker. Page-level failures
// accumulate across workers; once the count exceeds the threshold the run
// is declared broken and aborted.
type FailureCounter struct {
	threshold int64
	count     atomic.Int64
	tripped   atomic.Bool
}

// NewFailureCounter creates a counter that trips when more than threshold
// failures are recorded
func NewFailureCounter(threshold int) *FailureCounter {
	return &FailureCounter{threshold: int64(threshold)}
}

// Record adds one failure and reports whether this crossed the threshold.
// Exactly one caller observes the trip, so abort handling runs once.
func (f *FailureCounter) Record() bool {
	if f.count.Add(1) > f.threshold {
		return f.tripped.CompareAndSwap(false, true)
	}
	return false
}

// Tripped reports whether the breaker has opened
func (f *FailureCounter) Tripped() bool {
	return f.tripped.Load()
}

// Count returns the number of failures recorded so far
func (f *FailureCounter) Count() int {
	return int(f.count.Load())
}

package sources

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultMaxRetries is the number of retries after the first rate-limited attempt.
	DefaultMaxRetries = 3

	// DefaultBaseRetryDelay is the wait before the first retry when the server gives no Retry-After.
	DefaultBaseRetryDelay = 2 * time.Second
)

// RetryPolicy decides how long to wait before retrying a rate-limited request.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy retries three times starting at two seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseRetryDelay}
}

// Delay returns the wait before retry number attempt+1, where attempt is the
// zero-based index of the rate-limited attempt. A non-negative integer
// Retry-After header wins; otherwise the delay is BaseDelay * 2^attempt.
func (p RetryPolicy) Delay(attempt int, retryAfter string) time.Duration {
	if d, ok := ParseRetryAfter(retryAfter); ok {
		return d
	}
	return p.exponential(attempt)
}

func (p RetryPolicy) exponential(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.Reset()

	delay := b.NextBackOff()
	for range attempt {
		delay = b.NextBackOff()
	}
	return delay
}

// ParseRetryAfter accepts only the integer-seconds form of Retry-After.
// HTTP dates and negative values are ignored.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepContext is the production SleepFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

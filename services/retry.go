package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stock-insight/observability"
)

// RateLimitError signals that an upstream refused a request because of its
// request quota
type RateLimitError struct {
	Service    string
	Operation  string
	StatusCode int
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s rate limited (status %d): %s", e.Service, e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s rate limited: %s", e.Service, e.Operation, e.Message)
}

// IsRateLimited reports whether err carries a rate-limit signal
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	return strings.Contains(err.Error(), "429")
}

// RetryPolicy retries an operation with exponential backoff, but only while
// it keeps failing with a rate-limit signal
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryPolicy makes at most three attempts, waiting 1s then 2s
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
}

// Retry runs op until it succeeds, fails with an error that is not a rate
// limit, or MaxAttempts is reached. The last error is returned unchanged.
func Retry[T any](ctx context.Context, p RetryPolicy, op func() (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var (
		result T
		err    error
	)
	delay := p.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = op()
		if err == nil || !IsRateLimited(err) || attempt == attempts {
			return result, err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		observability.Debug("rate limited, backing off",
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"error", err)

		if serr := sleep(ctx, delay); serr != nil {
			var zero T
			return zero, fmt.Errorf("context cancelled during retry: %w", serr)
		}
		delay *= 2
	}

	return result, err
}

// WithRetry returns op wrapped in the retry policy
func WithRetry[T any](p RetryPolicy, op func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return Retry(ctx, p, func() (T, error) { return op(ctx) })
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// recordingSleep captures backoff delays without waiting
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func testPolicy(s *recordingSleep) RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Sleep: s.sleep}
}

func TestRetry_SucceedsAfterTwoRateLimits(t *testing.T) {
	s := &recordingSleep{}
	calls := 0

	got, err := Retry(context.Background(), testPolicy(s), func() (string, error) {
		calls++
		if calls < 3 {
			return "", &RateLimitError{Service: "test", Operation: "op", StatusCode: 429}
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls (2 retries), got %d", calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(s.delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, s.delays)
	}
	for i := range want {
		if s.delays[i] != want[i] {
			t.Errorf("delay %d: expected %v, got %v", i, want[i], s.delays[i])
		}
	}
}

func TestRetry_NonRateLimitErrorIsNotRetried(t *testing.T) {
	s := &recordingSleep{}
	calls := 0
	boom := errors.New("connection refused")

	_, err := Retry(context.Background(), testPolicy(s), func() (int, error) {
		calls++
		return 0, boom
	})

	if !errors.Is(err, boom) {
		t.Errorf("expected original error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call, got %d", calls)
	}
	if len(s.delays) != 0 {
		t.Errorf("expected no backoff, got %v", s.delays)
	}
}

func TestRetry_ExhaustedReturnsLastError(t *testing.T) {
	s := &recordingSleep{}
	calls := 0

	_, err := Retry(context.Background(), testPolicy(s), func() (int, error) {
		calls++
		return 0, fmt.Errorf("attempt %d: HTTP 429 Too Many Requests", calls)
	})

	if err == nil || err.Error() != "attempt 3: HTTP 429 Too Many Requests" {
		t.Errorf("expected last attempt's error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(s.delays) != 2 {
		t.Errorf("expected 2 backoffs, got %v", s.delays)
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	policy := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Hour,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}

	_, err := Retry(ctx, policy, func() (int, error) {
		calls++
		return 0, &RateLimitError{Service: "test"}
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_DefaultSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	policy := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Minute}
	start := time.Now()
	_, err := Retry(ctx, policy, func() (int, error) {
		return 0, &RateLimitError{Service: "test"}
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("sleep should stop when the context ends")
	}
}

func TestRetry_OnRetryHook(t *testing.T) {
	s := &recordingSleep{}
	policy := testPolicy(s)
	var attempts []int
	policy.OnRetry = func(attempt int, _ time.Duration, _ error) {
		attempts = append(attempts, attempt)
	}

	_, _ = Retry(context.Background(), policy, func() (int, error) {
		return 0, &RateLimitError{Service: "test"}
	})

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("expected hook for attempts [1 2], got %v", attempts)
	}
}

func TestWithRetry(t *testing.T) {
	s := &recordingSleep{}
	calls := 0
	wrapped := WithRetry(testPolicy(s), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &RateLimitError{Service: "test"}
		}
		return 7, nil
	})

	got, err := wrapped(context.Background())
	if err != nil || got != 7 {
		t.Errorf("expected 7, got %d, %v", got, err)
	}
}

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed", &RateLimitError{Service: "alphavantage"}, true},
		{"wrapped typed", fmt.Errorf("build: %w", &RateLimitError{Service: "yahoo"}), true},
		{"status text", errors.New("unexpected status 429"), true},
		{"other", errors.New("status 500"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimited(tt.err); got != tt.want {
				t.Errorf("IsRateLimited(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestResult(t *testing.T) {
	found := Found(42)
	if !found.OK() || found.Value() != 42 || found.Err() != nil {
		t.Errorf("unexpected found result %+v", found)
	}

	missing := NotFound[[]string]("no bestMatches")
	if missing.OK() || missing.Value() != nil {
		t.Error("not found should collapse to the zero value")
	}
	if !errors.Is(missing.Err(), ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", missing.Err())
	}

	transport := resultFromError[int](errors.New("dial tcp: refused"))
	if transport.Status() != StatusTransportError {
		t.Errorf("expected transport error, got %v", transport.Status())
	}

	limited := resultFromError[int](fmt.Errorf("wrap: %w", &RateLimitError{Service: "x"}))
	if limited.Status() != StatusRateLimited {
		t.Errorf("expected rate limited, got %v", limited.Status())
	}
	if !IsRateLimited(limited.Err()) {
		t.Error("rate limited result should report a rate-limit error")
	}
}

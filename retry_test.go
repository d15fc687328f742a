package pallium

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	return cfg
}

func TestRetryerSucceedsAfterFailures(t *testing.T) {
	r := NewRetryer(fastRetryConfig())

	calls := 0
	result := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	})
	if result.LastErr != nil {
		t.Errorf("expected success, got %v", result.LastErr)
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestRetryerExhaustsAttempts(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.MaxAttempts = 4
	r := NewRetryer(cfg)

	calls := 0
	failure := errors.New("timeout")
	result := r.Do(context.Background(), func() error {
		calls++
		return failure
	})
	if !errors.Is(result.LastErr, failure) {
		t.Errorf("expected last error, got %v", result.LastErr)
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestRetryerStopsOnNonRetryable(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.RetryIf = IsRetryable
	r := NewRetryer(cfg)

	calls := 0
	result := r.Do(context.Background(), func() error {
		calls++
		return errors.New("access denied")
	})
	if calls != 1 {
		t.Errorf("non-retryable error should stop after 1 call, got %d", calls)
	}
	if result.LastErr == nil {
		t.Error("expected the error to be reported")
	}
}

func TestRetryerContextCancellation(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.InitialBackoff = time.Second
	r := NewRetryer(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := r.Do(ctx, func() error {
		return errors.New("timeout")
	})
	if !errors.Is(result.LastErr, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", result.LastErr)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("connection reset by peer"), true},
		{errors.New("request timeout"), true},
		{errors.New("503 Service Unavailable"), true},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("access denied"), false},
		{context.Canceled, false},
		{context.DeadlineExceeded, false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

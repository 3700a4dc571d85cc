package embedding

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(n int) RetryConfig {
	return RetryConfig{MaxRetries: n, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestRetryWithBackoff_EventualSuccess(t *testing.T) {
	calls := 0
	got, err := retryWithBackoff(context.Background(), fastRetry(3), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 7, nil
	})
	if err != nil || got != 7 {
		t.Fatalf("got %d, %v", got, err)
	}
	if calls != 3 {
		t.Errorf("calls=%d, want 3", calls)
	}
}

func TestRetryWithBackoff_GivesUp(t *testing.T) {
	calls := 0
	want := errors.New("permanent")
	_, err := retryWithBackoff(context.Background(), fastRetry(2), func() (int, error) {
		calls++
		return 0, want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected last error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("calls=%d, want 2", calls)
	}
}

func TestRetryWithBackoff_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := retryWithBackoff(ctx, fastRetry(5), func() (int, error) {
		calls++
		cancel()
		return 0, errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("should not retry after cancellation, calls=%d", calls)
	}
}

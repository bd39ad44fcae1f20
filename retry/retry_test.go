package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencortex/modelstream/llm"
)

func fastConfig() llm.RetryConfig {
	return llm.RetryConfig{
		MaxAttempts:    4,
		BaseDelay:      time.Millisecond,
		Multiplier:     2.0,
		MaxDelay:       10 * time.Millisecond,
		JitterFraction: 0,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	result, err := Do(context.Background(), fastConfig(), zerolog.Nop(), func(ctx context.Context, n int) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" || calls != 1 {
		t.Errorf("result = %q, calls = %d", result, calls)
	}
}

func TestDoRetriesRetryableErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	result, err := Do(context.Background(), fastConfig(), zerolog.Nop(), func(ctx context.Context, n int) (int, error) {
		calls++
		if calls < 3 {
			return 0, llm.NewTransportError("connection reset", errors.New("reset"))
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 7 || calls != 3 {
		t.Errorf("result = %d, calls = %d, want 7 after 3 calls", result, calls)
	}
}

func TestDoStopsOnFatalError(t *testing.T) {
	t.Parallel()

	fatal := &llm.Error{Type: llm.ErrorTypeInvalidRequest, Message: "bad request", StatusCode: 400}
	calls := 0
	_, err := Do(context.Background(), fastConfig(), zerolog.Nop(), func(ctx context.Context, n int) (int, error) {
		calls++
		return 0, fatal
	})
	if calls != 1 {
		t.Errorf("calls = %d, fatal errors must not retry", calls)
	}
	if !errors.Is(err, fatal) {
		t.Errorf("err = %v, want the fatal error unchanged", err)
	}
}

func TestDoStopsOnProtocolError(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), fastConfig(), zerolog.Nop(), func(ctx context.Context, n int) (int, error) {
		calls++
		return 0, llm.NewProtocolError("stream closed before completion")
	})
	if calls != 1 {
		t.Errorf("calls = %d, protocol errors must never retry", calls)
	}
	if !llm.IsProtocolError(err) {
		t.Errorf("err = %v, want protocol error", err)
	}
}

func TestDoExhaustionAnnotatesAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), fastConfig(), zerolog.Nop(), func(ctx context.Context, n int) (int, error) {
		calls++
		return 0, llm.NewTransportError("still down", nil)
	})
	if calls != 4 {
		t.Errorf("calls = %d, want MaxAttempts", calls)
	}

	var clientErr *llm.Error
	if !errors.As(err, &clientErr) {
		t.Fatalf("err = %v, want *llm.Error", err)
	}
	if clientErr.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", clientErr.Attempts)
	}
	if clientErr.Retryable {
		t.Error("exhausted error must not remain retryable")
	}
}

func TestDoAttemptNumbers(t *testing.T) {
	t.Parallel()

	var seen []int
	Do(context.Background(), fastConfig(), zerolog.Nop(), func(ctx context.Context, n int) (int, error) {
		seen = append(seen, n)
		return 0, llm.NewTransportError("down", nil)
	})
	if len(seen) != 4 || seen[0] != 0 || seen[3] != 3 {
		t.Errorf("attempt numbers = %v, want 0..3", seen)
	}
}

func TestDoHonorsCancellation(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.BaseDelay = time.Hour
	cfg.MaxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, cfg, zerolog.Nop(), func(ctx context.Context, n int) (int, error) {
			calls++
			return 0, llm.NewTransportError("down", nil)
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 before the backoff sleep", calls)
	}
}

func TestDoRetryAfterPrecedence(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.JitterFraction = 0.1

	serverDelay := 50 * time.Millisecond
	calls := 0
	start := time.Now()
	_, err := Do(context.Background(), cfg, zerolog.Nop(), func(ctx context.Context, n int) (int, error) {
		calls++
		if calls == 1 {
			return 0, &llm.Error{
				Type:       llm.ErrorTypeRateLimit,
				Message:    "throttled",
				Retryable:  true,
				RetryAfter: &serverDelay,
				StatusCode: 429,
			}
		}
		return 1, nil
	})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The wait must be at least the server delay and at most the delay
	// plus the jitter fraction (with scheduling slack).
	if elapsed < serverDelay {
		t.Errorf("elapsed = %v, want >= %v", elapsed, serverDelay)
	}
	if elapsed > 2*serverDelay {
		t.Errorf("elapsed = %v, jitter should stay within the fraction", elapsed)
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	t.Parallel()

	cfg := normalize(llm.RetryConfig{})
	want := llm.DefaultRetryConfig()
	// An explicit zero jitter fraction is a valid setting and survives.
	want.JitterFraction = 0
	if cfg != want {
		t.Errorf("normalize(zero) = %+v, want defaults %+v", cfg, want)
	}

	custom := llm.RetryConfig{MaxAttempts: 2, BaseDelay: time.Second, Multiplier: 3, MaxDelay: time.Minute, JitterFraction: 0.5}
	if got := normalize(custom); got != custom {
		t.Errorf("normalize(custom) = %+v, want unchanged", got)
	}
}

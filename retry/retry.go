// Package retry drives the bounded attempt loop around a single model
// request: execute one attempt, classify the failure, compute a backoff
// delay, sleep, and retry until success or exhaustion.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/opencortex/modelstream/llm"
)

// Do runs attempt up to cfg.MaxAttempts times. Attempts are strictly
// sequential; each failure is classified via the llm error taxonomy, and
// only retryable errors (429, 5xx, transport) trigger another attempt.
// Backoff state is local to this call, so concurrent Do calls share
// nothing.
//
// A server-provided Retry-After delay takes precedence over the
// exponential schedule, with a uniform jitter fraction added on top.
// On exhaustion the last error is returned annotated with the attempt
// count; there is no fallback value.
func Do[T any](ctx context.Context, cfg llm.RetryConfig, logger zerolog.Logger, attempt func(ctx context.Context, n int) (T, error)) (T, error) {
	var zero T
	cfg = normalize(cfg)
	schedule := newSchedule(cfg)

	var lastErr error
	for n := 0; n < cfg.MaxAttempts; n++ {
		result, err := attempt(ctx, n)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !llm.IsRetryableError(err) {
			return zero, err
		}
		lastErr = err
		if n == cfg.MaxAttempts-1 {
			break
		}

		delay := nextDelay(schedule, err, cfg)
		logger.Warn().
			Int("attempt", n+1).
			Int("max_attempts", cfg.MaxAttempts).
			Dur("delay", delay).
			Err(err).
			Msg("Request attempt failed. Retrying after delay")

		if waitErr := wait(ctx, delay); waitErr != nil {
			return zero, waitErr
		}
	}

	logger.Error().
		Int("max_attempts", cfg.MaxAttempts).
		Err(lastErr).
		Msg("Request failed after exhausting retries")
	return zero, exhausted(lastErr, cfg.MaxAttempts)
}

// normalize fills zero config fields with the package defaults.
func normalize(cfg llm.RetryConfig) llm.RetryConfig {
	defaults := llm.DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaults.BaseDelay
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = defaults.Multiplier
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaults.MaxDelay
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = defaults.JitterFraction
	}
	return cfg
}

// newSchedule builds the exponential backoff used when the server does
// not dictate a delay.
func newSchedule(cfg llm.RetryConfig) *backoff.ExponentialBackOff {
	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = cfg.BaseDelay
	schedule.Multiplier = cfg.Multiplier
	schedule.RandomizationFactor = cfg.JitterFraction
	schedule.MaxInterval = cfg.MaxDelay
	schedule.MaxElapsedTime = 0
	schedule.Reset()
	return schedule
}

// nextDelay computes the delay before the next attempt. A Retry-After
// carried by the error wins; jitter is a uniform fraction added on top
// so the wait is never shorter than the server asked for.
func nextDelay(schedule *backoff.ExponentialBackOff, err error, cfg llm.RetryConfig) time.Duration {
	if retryAfter := llm.ExtractRetryAfter(err); retryAfter != nil && *retryAfter > 0 {
		delay := *retryAfter
		if cfg.JitterFraction > 0 {
			delay += time.Duration(rand.Float64() * cfg.JitterFraction * float64(*retryAfter))
		}
		return delay
	}
	delay := schedule.NextBackOff()
	if delay == backoff.Stop {
		return cfg.MaxDelay
	}
	return delay
}

// wait sleeps for the delay, respecting context cancellation.
func wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// exhausted annotates the final error with the attempt count so the
// caller can distinguish exhaustion from a first-attempt failure.
func exhausted(err error, attempts int) error {
	var clientErr *llm.Error
	if errors.As(err, &clientErr) {
		annotated := *clientErr
		annotated.Attempts = attempts
		annotated.Retryable = false
		return &annotated
	}
	return err
}

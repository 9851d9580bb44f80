package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Result reports how an operation ended after retries.
type Result struct {
	Attempts int
	Err      error
}

// Success reports whether the wrapped operation eventually succeeded.
func (r Result) Success() bool {
	return r.Err == nil
}

// Retrier executes operations with exponential backoff on retryable
// failures.
type Retrier struct {
	policy Policy
	logger *zerolog.Logger
}

func NewRetrier(policy Policy, logger *zerolog.Logger) *Retrier {
	if policy.MaxRetries == 0 {
		policy.MaxRetries = 3
	}
	if policy.InitialDelay == 0 {
		policy.InitialDelay = 2 * time.Second
	}
	if policy.MaxDelay == 0 {
		policy.MaxDelay = time.Minute
	}
	if policy.BackoffFactor == 0 {
		policy.BackoffFactor = 2
	}
	return &Retrier{policy: policy, logger: logger}
}

// Policy returns the retrier's backoff parameters.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do runs fn up to MaxRetries+1 times. After each failure except the last
// attempt it consults shouldRetry (IsRetryable when nil) and sleeps the
// backoff delay. Cancellation of ctx stops waiting immediately.
func (r *Retrier) Do(ctx context.Context, fn func(context.Context) error, shouldRetry func(error) bool) Result {
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}

	var lastErr error
	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempt, Err: err}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return Result{Attempts: attempt + 1}
		}

		if attempt == r.policy.MaxRetries || !shouldRetry(lastErr) {
			return Result{Attempts: attempt + 1, Err: lastErr}
		}

		delay := r.policy.NextDelay(attempt + 1)
		r.logger.Debug().
			Err(lastErr).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("retrying after failure")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{Attempts: attempt + 1, Err: ctx.Err()}
		case <-timer.C:
		}
	}

	return Result{Attempts: r.policy.MaxRetries + 1, Err: lastErr}
}

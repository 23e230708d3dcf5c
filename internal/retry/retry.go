package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/logger"
)

// Config controls how an operation is attempted. Timeout bounds every single
// attempt; zero MaxRetries means exactly one attempt.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration
}

// ErrTimeout is returned when the final attempt exceeded Config.Timeout.
var ErrTimeout = errors.New("operation timed out")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs operation until it succeeds, returns a Permanent error, the retries
// are exhausted, or ctx is done.
func Do[T any](ctx context.Context, config Config, operation func(context.Context) (T, error)) (T, error) {
	log := logger.FromContext(ctx)
	var zero T

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		opCtx, cancel := ctx, context.CancelFunc(func() {})
		if config.Timeout > 0 {
			opCtx, cancel = context.WithTimeout(ctx, config.Timeout)
		}
		result, err := runAttempt(opCtx, operation)
		timedOut := errors.Is(opCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		cancel()

		if err == nil {
			return result, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if timedOut {
			err = fmt.Errorf("%w after %s: %w", ErrTimeout, config.Timeout, err)
		}

		log.Debug().
			Err(err).
			Int("attempt", attempt+1).
			Msg("Operation failed")

		if attempt == config.MaxRetries {
			if config.MaxRetries == 0 {
				return zero, err
			}
			return zero, fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries+1, err)
		}

		delay := backoff(attempt, config.BaseDelay, config.MaxDelay)
		log.Debug().
			Dur("delay", delay).
			Int("next_attempt", attempt+2).
			Msg("Retrying after delay")

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, fmt.Errorf("unexpected: exceeded retry loop")
}

// runAttempt runs operation once and stops waiting when ctx is done, even if
// operation never looks at ctx. An abandoned call finishes in the background
// and its result is dropped.
func runAttempt[T any](ctx context.Context, operation func(context.Context) (T, error)) (T, error) {
	if ctx.Done() == nil {
		return operation(ctx)
	}

	type outcome struct {
		result T
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := operation(ctx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func backoff(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	// 2^30 is the largest shift that cannot overflow
	delay := time.Duration(1<<min(attempt, 30)) * baseDelay
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	// jitter between 0.5x and 1.5x
	delay = time.Duration(float64(delay) * (0.5 + rand.Float64()))
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "leadintake/pkg/errors"
)

// FatalError stops a retry loop at once. Every *apperrors.Error satisfies
// it, so client errors such as ErrValidation and ErrNotFound are never
// retried.
type FatalError = apperrors.FatalError

type fatal struct{ err error }

func (e fatal) Error() string { return e.err.Error() }
func (e fatal) Unwrap() error { return e.err }
func (fatal) IsFatal() bool   { return true }

// NewFatalError marks err as not worth another attempt.
func NewFatalError(err error) error {
	if err == nil {
		return nil
	}
	return fatal{err: err}
}

// Policy bounds a retry loop. MaxElapsedTime of zero means no time limit.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.WithContext(ExponentialBackoff(p), ctx)
	return backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
}

func Retry(ctx context.Context, policy Policy, fn func() error) error {
	return RetryWithCallback(ctx, policy, fn, nil)
}

// RetryWithCallback runs fn until it succeeds, returns a FatalError, or the
// policy is exhausted. onRetry, when set, sees every failure that will be
// retried.
func RetryWithCallback(ctx context.Context, policy Policy, fn func() error, onRetry func(attempt int, err error, nextDelay time.Duration)) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.Multiplier <= 0 {
		policy.Multiplier = 2.0
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := fn()

		if err == nil {
			return nil
		}

		var fatalErr FatalError
		if errors.As(err, &fatalErr) && fatalErr.IsFatal() {
			return backoff.Permanent(err)
		}

		if onRetry != nil && attempt < policy.MaxAttempts {
			nextDelay := CalculateBackoffDuration(attempt, policy.InitialInterval, policy.Multiplier, policy.MaxInterval)
			onRetry(attempt, err, nextDelay)
		}

		return err
	}

	return backoff.Retry(operation, policy.backOff(ctx))
}

package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// jitter is the randomization factor applied to every delay.
const jitter = 0.2

// ExponentialBackoff builds the backoff of p. A zero MaxElapsedTime leaves
// the schedule bounded by MaxAttempts only.
func ExponentialBackoff(p Policy) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = jitter
	exp.MaxElapsedTime = p.MaxElapsedTime
	if exp.InitialInterval <= 0 {
		exp.InitialInterval = backoff.DefaultInitialInterval
	}
	if exp.MaxInterval < exp.InitialInterval {
		exp.MaxInterval = exp.InitialInterval
	}
	exp.Reset()
	return exp
}

// CalculateBackoffDuration is the un-jittered delay after attempt, for logs.
func CalculateBackoffDuration(attempt int, initialInterval time.Duration, multiplier float64, maxInterval time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	duration := float64(initialInterval) * math.Pow(multiplier, float64(attempt))
	if maxInterval > 0 && (duration > float64(maxInterval) || math.IsInf(duration, 0)) {
		return maxInterval
	}
	return time.Duration(duration)
}

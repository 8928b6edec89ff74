// Package backoff computes the delay between retry attempts.
package backoff

import (
	"math"
	"time"
)

// Strategy returns how long to wait after the given attempt. Attempts start
// at 1.
type Strategy func(attempts uint) time.Duration

// Constant always waits interval.
func Constant(interval time.Duration) Strategy {
	return func(uint) time.Duration {
		return interval
	}
}

// Linear waits baseDelay times the attempt count: 2s, 4s, 6s, ...
func Linear(baseDelay time.Duration) Strategy {
	return func(attempts uint) time.Duration {
		return saturate(float64(baseDelay) * float64(attempts))
	}
}

// Exponential multiplies baseDelay by factor after every attempt. A factor of 3
// from 2s gives 2s, 6s, 18s, ...
func Exponential(baseDelay time.Duration, factor float64) Strategy {
	return func(attempts uint) time.Duration {
		if attempts == 0 {
			attempts = 1
		}
		return saturate(float64(baseDelay) * math.Pow(factor, float64(attempts-1)))
	}
}

// BinaryExponential doubles the delay after every attempt.
func BinaryExponential(baseDelay time.Duration) Strategy {
	return Exponential(baseDelay, 2)
}

func saturate(delay float64) time.Duration {
	if delay >= math.MaxInt64 || math.IsInf(delay, 1) || math.IsNaN(delay) {
		return math.MaxInt64
	}
	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}

package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/bagel-payroll/bagel-server/pkg/retry/backoff"
)

// Strategy decides whether a failed attempt should be retried. Strategies may
// block, for example to back off.
type Strategy func(attempts uint, err error) bool

// sleep is swapped out by tests.
var sleep = time.Sleep

// Limit allows at most maxAttempts attempts in total.
func Limit(maxAttempts uint) Strategy {
	return func(attempts uint, _ error) bool {
		return attempts < maxAttempts
	}
}

// RetriableErrors only retries errors matching one of retriable.
func RetriableErrors(retriable ...error) Strategy {
	return func(_ uint, err error) bool {
		return matchesAny(err, retriable)
	}
}

// NonRetriableErrors retries everything except errors matching one of
// nonRetriable.
func NonRetriableErrors(nonRetriable ...error) Strategy {
	return func(_ uint, err error) bool {
		return !matchesAny(err, nonRetriable)
	}
}

// Context stops retrying once ctx is done.
func Context(ctx context.Context) Strategy {
	return func(_ uint, _ error) bool {
		return ctx.Err() == nil
	}
}

// Backoff sleeps for the delay given by strategy, capped at maxBackoff, before
// allowing the next attempt.
func Backoff(strategy backoff.Strategy, maxBackoff time.Duration) Strategy {
	return BackoffWithJitter(strategy, maxBackoff, 0)
}

// BackoffWithJitter is Backoff with the capped delay randomly spread by up to
// jitter in either direction. A 100ms delay with a jitter of 0.1 sleeps
// between 90ms and 110ms.
func BackoffWithJitter(strategy backoff.Strategy, maxBackoff time.Duration, jitter float64) Strategy {
	return func(attempts uint, _ error) bool {
		delay := strategy(attempts)
		if delay > maxBackoff {
			delay = maxBackoff
		}
		if jitter > 0 {
			spread := 1 + jitter*(2*rand.Float64()-1)
			delay = time.Duration(float64(delay) * spread)
		}

		sleep(delay)
		return true
	}
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

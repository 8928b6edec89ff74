// Package rate limits operations per key, such as transactions per signer.
package rate

import (
	"math"
	"sync"

	"golang.org/x/time/rate"

	"github.com/bagel-payroll/bagel-server/pkg/cache"
)

const defaultMaxKeys = 10_000

// Limiter limits operations based on a provided key.
type Limiter interface {
	Allow(key string) (bool, error)
}

// New returns a local limiter allowing limit operations per second per key,
// or a NoLimiter when limit is not positive.
func New(limit float64) Limiter {
	if limit <= 0 || math.IsInf(limit, 1) {
		return NoLimiter{}
	}
	return NewLocalRateLimiter(rate.Limit(limit))
}

type localRateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters *cache.Cache[string, *rate.Limiter]
}

// NewLocalRateLimiter returns an in memory token bucket limiter with a burst
// of one second's worth of operations. Only the most recently seen keys are
// tracked; a forgotten key starts over with a full bucket.
func NewLocalRateLimiter(limit rate.Limit) Limiter {
	return newLocalRateLimiter(limit, defaultMaxKeys)
}

func newLocalRateLimiter(limit rate.Limit, maxKeys int) *localRateLimiter {
	burst := int(math.Ceil(float64(limit)))
	if burst < 1 {
		burst = 1
	}

	return &localRateLimiter{
		limit:    limit,
		burst:    burst,
		limiters: cache.New[string, *rate.Limiter](maxKeys),
	}
}

// Allow implements Limiter.Allow.
func (l *localRateLimiter) Allow(key string) (bool, error) {
	l.mu.Lock()
	limiter, ok := l.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Put(key, limiter)
	}
	l.mu.Unlock()

	return limiter.Allow(), nil
}

// NoLimiter never limits operations.
type NoLimiter struct{}

// Allow implements Limiter.Allow.
func (NoLimiter) Allow(string) (bool, error) {
	return true, nil
}

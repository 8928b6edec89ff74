package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/bagel-payroll/bagel-server/pkg/retry/backoff"
)

func recordSleeps(t *testing.T) *[]time.Duration {
	var slept []time.Duration
	sleep = func(d time.Duration) {
		slept = append(slept, d)
	}
	t.Cleanup(func() {
		sleep = time.Sleep
	})
	return &slept
}

func TestLimit(t *testing.T) {
	strategy := Limit(2)
	assert.True(t, strategy(1, errors.New("test")))
	assert.False(t, strategy(2, errors.New("test")))

	attempts, err := Retry(func() error {
		return errors.New("test")
	}, Limit(2))

	assert.EqualError(t, err, "test")
	assert.EqualValues(t, 2, attempts)
}

func TestErrorFilters(t *testing.T) {
	known := errors.New("known")
	wrapped := errors.Wrap(known, "wrapper")
	unknown := errors.New("unknown")

	retriable := RetriableErrors(known)
	assert.True(t, retriable(1, known))
	assert.True(t, retriable(1, wrapped))
	assert.False(t, retriable(1, unknown))

	nonRetriable := NonRetriableErrors(known)
	assert.False(t, nonRetriable(1, known))
	assert.False(t, nonRetriable(1, wrapped))
	assert.True(t, nonRetriable(1, unknown))
}

func TestContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	attempts, err := Retry(func() error {
		calls++
		if calls == 3 {
			cancel()
		}
		return errors.New("failed")
	}, Context(ctx))

	assert.Error(t, err)
	assert.EqualValues(t, 3, attempts)
}

func TestBackoff(t *testing.T) {
	slept := recordSleeps(t)

	strategy := Backoff(backoff.BinaryExponential(100*time.Millisecond), 300*time.Millisecond)
	for attempts := uint(1); attempts <= 4; attempts++ {
		assert.True(t, strategy(attempts, errors.New("test")))
	}

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
		300 * time.Millisecond,
	}, *slept)
}

func TestBackoffWithJitter(t *testing.T) {
	slept := recordSleeps(t)

	delay := 100 * time.Millisecond
	strategy := BackoffWithJitter(backoff.Constant(time.Second), delay, 0.1)

	var total time.Duration
	for i := 0; i < 1000; i++ {
		strategy(1, errors.New("test"))
	}
	for _, d := range *slept {
		assert.GreaterOrEqual(t, d, 90*time.Millisecond)
		assert.LessOrEqual(t, d, 110*time.Millisecond)
		total += d
	}

	mean := total / time.Duration(len(*slept))
	assert.InDelta(t, float64(delay), float64(mean), float64(5*time.Millisecond))
}

package yield

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccrued(t *testing.T) {
	for _, tc := range []struct {
		principal uint64
		apyBps    uint16
		elapsed   int64
		expected  uint64
	}{
		{principal: 0, apyBps: DefaultApyBps, elapsed: SecondsPerYear, expected: 0},
		{principal: 1_000_000_000, apyBps: DefaultApyBps, elapsed: 0, expected: 0},
		{principal: 1_000_000_000, apyBps: DefaultApyBps, elapsed: SecondsPerYear, expected: 70_000_000},
		{principal: 1_000_000_000, apyBps: DefaultApyBps, elapsed: 86_400, expected: 191_780},
		{principal: 100, apyBps: DefaultApyBps, elapsed: 60, expected: 0},
		{principal: math.MaxUint64, apyBps: 10_000, elapsed: SecondsPerYear, expected: math.MaxUint64},
	} {
		actual, err := Accrued(tc.principal, tc.apyBps, tc.elapsed)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, actual)
	}

	_, err := Accrued(1, DefaultApyBps, -1)
	assert.Equal(t, ErrNegativeElapsed, err)

	_, err = Accrued(math.MaxUint64, 10_000, 2*SecondsPerYear)
	assert.Equal(t, ErrOverflow, err)
}

func TestSplit(t *testing.T) {
	toYield, liquid := Split(1_000)
	assert.EqualValues(t, 900, toYield)
	assert.EqualValues(t, 100, liquid)

	toYield, liquid = Split(15)
	assert.EqualValues(t, 13, toYield)
	assert.EqualValues(t, 2, liquid)

	toYield, liquid = Split(math.MaxUint64)
	assert.Equal(t, uint64(math.MaxUint64), toYield+liquid)
}

func TestDistribute(t *testing.T) {
	employees, employer := Distribute(1_000)
	assert.EqualValues(t, 800, employees)
	assert.EqualValues(t, 200, employer)

	employees, employer = Distribute(7)
	assert.EqualValues(t, 6, employees)
	assert.EqualValues(t, 1, employer)

	employees, employer = Distribute(0)
	assert.Zero(t, employees)
	assert.Zero(t, employer)
}

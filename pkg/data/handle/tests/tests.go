package tests

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagel-payroll/bagel-server/pkg/data/handle"
)

func RunTests(t *testing.T, s handle.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s handle.Store){
		testRoundTrip,
		testHandlesAreImmutable,
		testValidation,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s handle.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		id := strings.Repeat("ab", 16)

		_, err := s.Get(ctx, id)
		assert.Equal(t, handle.ErrNotFound, err)

		maxValue := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
		expected := &handle.Record{
			Handle: id,
			Value:  maxValue,
		}
		require.NoError(t, s.Put(ctx, expected))
		assert.NotZero(t, expected.Id)
		assert.False(t, expected.CreatedAt.IsZero())

		actual, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, expected.Id, actual.Id)
		assert.Equal(t, id, actual.Handle)
		assert.Equal(t, 0, maxValue.Cmp(actual.Value))

		actual.Value.SetInt64(1)
		again, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 0, maxValue.Cmp(again.Value))

		zero := &handle.Record{
			Handle: strings.Repeat("01", 16),
			Value:  big.NewInt(0),
		}
		require.NoError(t, s.Put(ctx, zero))
		actual, err = s.Get(ctx, zero.Handle)
		require.NoError(t, err)
		assert.Zero(t, actual.Value.Sign())
	})
}

func testHandlesAreImmutable(t *testing.T, s handle.Store) {
	t.Run("testHandlesAreImmutable", func(t *testing.T) {
		ctx := context.Background()

		id := strings.Repeat("cd", 16)
		require.NoError(t, s.Put(ctx, &handle.Record{Handle: id, Value: big.NewInt(500)}))

		assert.Equal(t, handle.ErrExists, s.Put(ctx, &handle.Record{Handle: id, Value: big.NewInt(1)}))

		actual, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.EqualValues(t, 500, actual.Value.Int64())
	})
}

func testValidation(t *testing.T, s handle.Store) {
	t.Run("testValidation", func(t *testing.T) {
		ctx := context.Background()

		for _, record := range []*handle.Record{
			{Handle: "", Value: big.NewInt(1)},
			{Handle: "zz", Value: big.NewInt(1)},
			{Handle: strings.Repeat("ab", 15), Value: big.NewInt(1)},
			{Handle: strings.Repeat("ab", 16)},
			{Handle: strings.Repeat("ab", 16), Value: big.NewInt(-1)},
			{Handle: strings.Repeat("ab", 16), Value: new(big.Int).Lsh(big.NewInt(1), 128)},
		} {
			assert.Error(t, s.Put(ctx, record))
		}

		_, err := s.Get(ctx, strings.Repeat("ab", 16))
		assert.Equal(t, handle.ErrNotFound, err)
	})
}

package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagel-payroll/bagel-server/pkg/data/account"
)

func RunTests(t *testing.T, s account.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s account.Store){
		testRoundTrip,
		testPutAllDeletes,
		testGetMany,
		testGetAllByOwner,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s account.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.Get(ctx, "address1")
		assert.Equal(t, account.ErrNotFound, err)

		expected := &account.Record{
			Address:  "address1",
			Owner:    "program1",
			Lamports: 1_000_000,
			Data:     []byte{1, 2, 3, 4},
			Slot:     10,
		}
		require.NoError(t, s.PutAll(ctx, expected))

		actual, err := s.Get(ctx, "address1")
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)
		assert.False(t, actual.CreatedAt.IsZero())
		assert.False(t, actual.LastUpdatedAt.IsZero())

		expected.Lamports = 2_000_000
		expected.Data = []byte{5, 6}
		expected.Owner = "program2"
		expected.Slot = 11
		require.NoError(t, s.PutAll(ctx, expected))

		updated, err := s.Get(ctx, "address1")
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, updated)
		assert.Equal(t, actual.Id, updated.Id)

		updated.Data[0] = 0xff
		again, err := s.Get(ctx, "address1")
		require.NoError(t, err)
		assert.EqualValues(t, 5, again.Data[0])

		assert.Error(t, s.PutAll(ctx, &account.Record{Address: "address2", Lamports: 1}))
		_, err = s.Get(ctx, "address2")
		assert.Equal(t, account.ErrNotFound, err)
	})
}

func testPutAllDeletes(t *testing.T, s account.Store) {
	t.Run("testPutAllDeletes", func(t *testing.T) {
		ctx := context.Background()

		require.NoError(t, s.PutAll(ctx,
			&account.Record{Address: "a", Owner: "p", Lamports: 10},
			&account.Record{Address: "b", Owner: "p", Lamports: 20},
		))

		require.NoError(t, s.PutAll(ctx,
			&account.Record{Address: "a", Owner: "p", Lamports: 0},
			&account.Record{Address: "b", Owner: "p", Lamports: 30},
		))

		_, err := s.Get(ctx, "a")
		assert.Equal(t, account.ErrNotFound, err)

		actual, err := s.Get(ctx, "b")
		require.NoError(t, err)
		assert.EqualValues(t, 30, actual.Lamports)

		// Deleting an account that never existed is a no-op
		require.NoError(t, s.PutAll(ctx, &account.Record{Address: "c", Owner: "p"}))
		_, err = s.Get(ctx, "c")
		assert.Equal(t, account.ErrNotFound, err)
	})
}

func testGetMany(t *testing.T, s account.Store) {
	t.Run("testGetMany", func(t *testing.T) {
		ctx := context.Background()

		records, err := s.GetMany(ctx, "x", "y")
		require.NoError(t, err)
		assert.Empty(t, records)

		require.NoError(t, s.PutAll(ctx,
			&account.Record{Address: "x", Owner: "p", Lamports: 1},
			&account.Record{Address: "y", Owner: "p", Lamports: 2},
		))

		records, err = s.GetMany(ctx, "x", "missing", "y")
		require.NoError(t, err)
		require.Len(t, records, 2)

		byAddress := make(map[string]uint64)
		for _, record := range records {
			byAddress[record.Address] = record.Lamports
		}
		assert.EqualValues(t, 1, byAddress["x"])
		assert.EqualValues(t, 2, byAddress["y"])
	})
}

func testGetAllByOwner(t *testing.T, s account.Store) {
	t.Run("testGetAllByOwner", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetAllByOwner(ctx, "program", nil)
		assert.Equal(t, account.ErrNotFound, err)

		require.NoError(t, s.PutAll(ctx,
			&account.Record{Address: "c", Owner: "program", Lamports: 1, Data: []byte{1, 1, 9}},
			&account.Record{Address: "a", Owner: "program", Lamports: 1, Data: []byte{1, 2, 9}},
			&account.Record{Address: "b", Owner: "program", Lamports: 1, Data: []byte{1, 1, 8}},
			&account.Record{Address: "d", Owner: "other", Lamports: 1, Data: []byte{1, 1, 9}},
			&account.Record{Address: "e", Owner: "program", Lamports: 1},
		))

		records, err := s.GetAllByOwner(ctx, "program", nil)
		require.NoError(t, err)
		require.Len(t, records, 4)
		assert.Equal(t, "a", records[0].Address)
		assert.Equal(t, "e", records[3].Address)

		records, err = s.GetAllByOwner(ctx, "program", []byte{1, 1})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "b", records[0].Address)
		assert.Equal(t, "c", records[1].Address)

		_, err = s.GetAllByOwner(ctx, "program", []byte{2})
		assert.Equal(t, account.ErrNotFound, err)
	})
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *account.Record) {
	assert.Equal(t, obj1.Address, obj2.Address)
	assert.Equal(t, obj1.Owner, obj2.Owner)
	assert.Equal(t, obj1.Lamports, obj2.Lamports)
	assert.Equal(t, obj1.Data, obj2.Data)
	assert.Equal(t, obj1.Executable, obj2.Executable)
	assert.Equal(t, obj1.Slot, obj2.Slot)
}

package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagel-payroll/bagel-server/pkg/data/transaction"
	"github.com/bagel-payroll/bagel-server/pkg/database/query"
)

func RunTests(t *testing.T, s transaction.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s transaction.Store){
		testRoundTrip,
		testUpdate,
		testGetAllByAccount,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s transaction.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.Get(ctx, "sig1")
		assert.Equal(t, transaction.ErrNotFound, err)

		expected := &transaction.Record{
			Signature:         "sig1",
			Slot:              42,
			BlockTime:         time.Unix(1_700_000_000, 0),
			Data:              []byte{1, 2, 3},
			Fee:               5000,
			HasErrors:         true,
			Err:               `{"InstructionError":[0,{"Custom":6005}]}`,
			Logs:              []string{"Program log: one", "Program log: two"},
			ReturnData:        []byte{9, 9},
			Accounts:          []string{"payer", "program"},
			ConfirmationState: transaction.ConfirmationFailed,
		}
		require.NoError(t, s.Put(ctx, expected))
		assert.True(t, expected.Id > 0)

		actual, err := s.Get(ctx, "sig1")
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)

		assert.Error(t, s.Put(ctx, &transaction.Record{Signature: "sig2"}))
		assert.Error(t, s.Put(ctx, &transaction.Record{Signature: "sig2", Data: []byte{1}, HasErrors: true}))
	})
}

func testUpdate(t *testing.T, s transaction.Store) {
	t.Run("testUpdate", func(t *testing.T) {
		ctx := context.Background()

		record := &transaction.Record{
			Signature:         "sig",
			Slot:              1,
			Data:              []byte{1},
			Accounts:          []string{"a"},
			ConfirmationState: transaction.ConfirmationPending,
		}
		require.NoError(t, s.Put(ctx, record))
		id := record.Id

		record.Slot = 2
		record.ConfirmationState = transaction.ConfirmationFinalized
		record.Logs = []string{"done"}
		require.NoError(t, s.Put(ctx, record))
		assert.Equal(t, id, record.Id)

		actual, err := s.Get(ctx, "sig")
		require.NoError(t, err)
		assert.Equal(t, id, actual.Id)
		assert.EqualValues(t, 2, actual.Slot)
		assert.Equal(t, transaction.ConfirmationFinalized, actual.ConfirmationState)
		assert.Equal(t, []string{"done"}, actual.Logs)

		records, err := s.GetAllByAccount(ctx, "a")
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})
}

func testGetAllByAccount(t *testing.T, s transaction.Store) {
	t.Run("testGetAllByAccount", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetAllByAccount(ctx, "employee")
		assert.Equal(t, transaction.ErrNotFound, err)

		var ids []uint64
		for i := 0; i < 10; i++ {
			accounts := []string{"payer"}
			if i%2 == 0 {
				accounts = append(accounts, "employee")
			}

			record := &transaction.Record{
				Signature:         fmt.Sprintf("sig%d", i),
				Slot:              uint64(i),
				Data:              []byte{byte(i)},
				Accounts:          accounts,
				ConfirmationState: transaction.ConfirmationFinalized,
			}
			require.NoError(t, s.Put(ctx, record))
			ids = append(ids, record.Id)
		}

		records, err := s.GetAllByAccount(ctx, "payer")
		require.NoError(t, err)
		assert.Len(t, records, 10)

		records, err = s.GetAllByAccount(ctx, "employee")
		require.NoError(t, err)
		require.Len(t, records, 5)
		for i, record := range records {
			assert.Equal(t, fmt.Sprintf("sig%d", 2*i), record.Signature)
		}

		records, err = s.GetAllByAccount(ctx, "employee", query.WithDirection(query.Descending), query.WithLimit(2))
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "sig8", records[0].Signature)
		assert.Equal(t, "sig6", records[1].Signature)

		records, err = s.GetAllByAccount(ctx, "employee", query.WithCursor(query.ToCursor(ids[4])), query.WithLimit(10))
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "sig6", records[0].Signature)
		assert.Equal(t, "sig8", records[1].Signature)

		_, err = s.GetAllByAccount(ctx, "employee", query.WithCursor(query.ToCursor(ids[8])))
		assert.Equal(t, transaction.ErrNotFound, err)
	})
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *transaction.Record) {
	assert.Equal(t, obj1.Id, obj2.Id)
	assert.Equal(t, obj1.Signature, obj2.Signature)
	assert.Equal(t, obj1.Slot, obj2.Slot)
	assert.Equal(t, obj1.BlockTime.Unix(), obj2.BlockTime.Unix())
	assert.Equal(t, obj1.Data, obj2.Data)
	assert.Equal(t, obj1.Fee, obj2.Fee)
	assert.Equal(t, obj1.HasErrors, obj2.HasErrors)
	assert.Equal(t, obj1.Err, obj2.Err)
	assert.Equal(t, obj1.Logs, obj2.Logs)
	assert.Equal(t, obj1.ReturnData, obj2.ReturnData)
	assert.ElementsMatch(t, obj1.Accounts, obj2.Accounts)
	assert.Equal(t, obj1.ConfirmationState, obj2.ConfirmationState)
}

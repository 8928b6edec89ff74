package solana

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionError_JSON(t *testing.T) {
	mustWrap := func(ixErr *InstructionError) *TransactionError {
		txErr, err := TransactionErrorFromInstructionError(ixErr)
		require.NoError(t, err)
		return txErr
	}

	for _, tc := range []struct {
		name        string
		raw         string
		constructed *TransactionError
		key         TransactionErrorKey
		ixIndex     int
		ixKey       InstructionErrorKey
		custom      *CustomError
	}{
		{
			name:        "payroll program error",
			raw:         `{"InstructionError":[2,{"Custom":6005}]}`,
			constructed: mustWrap(&InstructionError{Index: 2, Err: CustomError(6005)}),
			key:         TransactionErrorInstructionError,
			ixIndex:     2,
			ixKey:       InstructionErrorCustom,
			custom:      customError(6005),
		},
		{
			name:        "builtin instruction error",
			raw:         `{"InstructionError":[0,"InvalidArgument"]}`,
			constructed: mustWrap(&InstructionError{Index: 0, Err: errors.New(string(InstructionErrorInvalidArgument))}),
			key:         TransactionErrorInstructionError,
			ixKey:       InstructionErrorInvalidArgument,
		},
		{
			name:        "transaction error",
			raw:         `"BlockhashNotFound"`,
			constructed: NewTransactionError(TransactionErrorBlockhashNotFound),
			key:         TransactionErrorBlockhashNotFound,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var raw interface{}
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &raw))

			parsed, err := ParseTransactionError(raw)
			require.NoError(t, err)
			assert.Equal(t, tc.key, parsed.ErrorKey())
			assert.Equal(t, raw, tc.constructed.Raw())

			encoded, err := tc.constructed.JSONString()
			require.NoError(t, err)
			assert.JSONEq(t, tc.raw, encoded)

			ixErr := parsed.InstructionError()
			if len(tc.ixKey) == 0 {
				assert.Nil(t, ixErr)
				return
			}
			require.NotNil(t, ixErr)
			assert.Equal(t, tc.ixIndex, ixErr.Index)
			assert.Equal(t, tc.ixKey, ixErr.ErrorKey())
			assert.Equal(t, tc.custom, ixErr.CustomError())
		})
	}
}

func customError(code int) *CustomError {
	c := CustomError(code)
	return &c
}

func TestParseJSONNumber(t *testing.T) {
	for _, v := range []interface{}{"6000", 6000.0, json.Number("6000")} {
		parsed, err := parseJSONNumber(v)
		require.NoError(t, err)
		assert.Equal(t, 6000, parsed, "%T", v)
	}

	_, err := parseJSONNumber(true)
	assert.Error(t, err)
}

func TestCustomErrorCode(t *testing.T) {
	txErr, err := TransactionErrorFromInstructionError(NewCustomInstructionError(1, 6005))
	assert.NoError(t, err)

	code, ok := CustomErrorCode(txErr)
	assert.True(t, ok)
	assert.Equal(t, 6005, code)

	code, ok = CustomErrorCode(NewCustomInstructionError(0, 6008))
	assert.True(t, ok)
	assert.Equal(t, 6008, code)

	_, ok = CustomErrorCode(NewTransactionError(TransactionErrorBlockhashNotFound))
	assert.False(t, ok)

	txErr, err = TransactionErrorFromInstructionError(NewInstructionError(0, InstructionErrorMissingRequiredSignature))
	assert.NoError(t, err)
	_, ok = CustomErrorCode(txErr)
	assert.False(t, ok)
	assert.Equal(t, InstructionErrorMissingRequiredSignature, txErr.InstructionError().ErrorKey())

	_, ok = CustomErrorCode(errors.New("other"))
	assert.False(t, ok)
}

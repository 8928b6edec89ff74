package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
)

// AssertStatusErrorWithCode verifies that the provided error is a gRPC status
// error of the provided status code.
func AssertStatusErrorWithCode(t *testing.T, err error, code codes.Code) {
	require.Error(t, err)
	status, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, code, status.Code())
}

// AssertCustomError verifies that a landed transaction failed with the
// provided program error code.
func AssertCustomError(t *testing.T, result *svm.TxResult, code int) {
	require.NotNil(t, result.Err, "transaction unexpectedly succeeded")

	actual, ok := solana.CustomErrorCode(result.Err)
	require.True(t, ok, "not a custom error: %v", result.Err)
	assert.Equal(t, code, actual, "logs: %v", result.Logs)
}

// AssertInstructionError verifies that a landed transaction failed with the
// provided builtin runtime error.
func AssertInstructionError(t *testing.T, result *svm.TxResult, expected svm.InstructionError) {
	require.NotNil(t, result.Err, "transaction unexpectedly succeeded")

	ixErr := result.Err.InstructionError()
	require.NotNil(t, ixErr)
	assert.Equal(t, solana.InstructionErrorKey(expected), ixErr.ErrorKey())
}

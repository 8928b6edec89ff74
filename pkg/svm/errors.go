package svm

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
)

// InstructionError is a builtin runtime failure that programs can return from
// Process. Programs return solana.CustomError for their own error codes.
type InstructionError solana.InstructionErrorKey

func (e InstructionError) Error() string {
	return string(e)
}

var (
	ErrGenericError                = InstructionError(solana.InstructionErrorGenericError)
	ErrInvalidArgument             = InstructionError(solana.InstructionErrorInvalidArgument)
	ErrInvalidInstructionData      = InstructionError(solana.InstructionErrorInvalidInstructionData)
	ErrInvalidAccountData          = InstructionError(solana.InstructionErrorInvalidAccountData)
	ErrAccountDataTooSmall         = InstructionError(solana.InstructionErrorAccountDataTooSmall)
	ErrInsufficientFunds           = InstructionError(solana.InstructionErrorInsufficientFunds)
	ErrIncorrectProgramID          = InstructionError(solana.InstructionErrorIncorrectProgramID)
	ErrMissingRequiredSignature    = InstructionError(solana.InstructionErrorMissingRequiredSignature)
	ErrAccountAlreadyInitialized   = InstructionError(solana.InstructionErrorAccountAlreadyInitialized)
	ErrUninitializedAccount        = InstructionError(solana.InstructionErrorUninitializedAccount)
	ErrUnbalancedInstruction       = InstructionError(solana.InstructionErrorUnbalancedInstruction)
	ErrModifiedProgramID           = InstructionError(solana.InstructionErrorModifiedProgramID)
	ErrExternalAccountLamportSpend = InstructionError(solana.InstructionErrorExternalAccountLamportSpend)
	ErrExternalAccountDataModified = InstructionError(solana.InstructionErrorExternalAccountDataModified)
	ErrReadonlyLamportChange       = InstructionError(solana.InstructionErrorReadonlyLamportChange)
	ErrReadonlyDataModified        = InstructionError(solana.InstructionErrorReadonlyDataModified)
	ErrNotEnoughAccountKeys        = InstructionError(solana.InstructionErrorNotEnoughAccountKeys)
	ErrUnsupportedProgramID        = InstructionError(solana.InstructionErrorUnsupportedProgramID)
	ErrCallDepth                   = InstructionError(solana.InstructionErrorCallDepth)
	ErrMissingAccount              = InstructionError(solana.InstructionErrorMissingAccount)
	ErrPrivilegeEscalation         = InstructionError(solana.InstructionErrorPrivilegeEscalation)
	ErrInvalidSeeds                = InstructionError(solana.InstructionErrorInvalidSeeds)
	ErrExecutableModified          = InstructionError(solana.InstructionErrorExecutableModified)
	ErrInvalidRealloc              = InstructionError(solana.InstructionErrorInvalidRealloc)
	ErrReentrancyNotAllowed        = InstructionError(solana.InstructionErrorReentrancyNotAllowed)
)

// toInstructionError maps an error returned while processing the instruction
// at index to its on-chain representation.
func toInstructionError(log *logrus.Entry, index int, err error) *solana.InstructionError {
	var custom solana.CustomError
	if errors.As(err, &custom) {
		return solana.NewCustomInstructionError(index, int(custom))
	}

	var builtin InstructionError
	if errors.As(err, &builtin) {
		return solana.NewInstructionError(index, solana.InstructionErrorKey(builtin))
	}

	log.WithError(err).Warn("program returned an untyped error")
	return solana.NewInstructionError(index, solana.InstructionErrorGenericError)
}

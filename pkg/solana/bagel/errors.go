package bagel

import (
	"github.com/bagel-payroll/bagel-server/pkg/solana"
)

// ErrorCode is a custom program error surfaced in an InstructionError.
type ErrorCode int

const errorCodeOffset = 6000

const (
	ErrorCodeInvalidCiphertext ErrorCode = iota + errorCodeOffset
	ErrorCodeInvalidAmount
	ErrorCodeOverflow
	ErrorCodeUnderflow
	ErrorCodeInvalidTimestamp
	ErrorCodeWithdrawTooSoon
	ErrorCodeNoAccruedDough
	ErrorCodeInsufficientFunds
	ErrorCodeUnauthorized
	ErrorCodePayrollInactive
	ErrorCodeInvalidState
	ErrorCodeIdentityVerificationFailed
	ErrorCodeAccountDelegated
)

var errorMessages = map[ErrorCode]string{
	ErrorCodeInvalidCiphertext:          "invalid ciphertext provided",
	ErrorCodeInvalidAmount:              "amount must be greater than zero",
	ErrorCodeOverflow:                   "arithmetic overflow",
	ErrorCodeUnderflow:                  "arithmetic underflow",
	ErrorCodeInvalidTimestamp:           "invalid timestamp",
	ErrorCodeWithdrawTooSoon:            "must wait at least 60 seconds between actions",
	ErrorCodeNoAccruedDough:             "no accrued balance to withdraw",
	ErrorCodeInsufficientFunds:          "insufficient funds in master vault",
	ErrorCodeUnauthorized:               "unauthorized",
	ErrorCodePayrollInactive:            "entry is not active",
	ErrorCodeInvalidState:               "invalid state for this operation",
	ErrorCodeIdentityVerificationFailed: "identity verification failed",
	ErrorCodeAccountDelegated:           "account is delegated to a tee validator",
}

var errorNames = map[ErrorCode]string{
	ErrorCodeInvalidCiphertext:          "InvalidCiphertext",
	ErrorCodeInvalidAmount:              "InvalidAmount",
	ErrorCodeOverflow:                   "Overflow",
	ErrorCodeUnderflow:                  "Underflow",
	ErrorCodeInvalidTimestamp:           "InvalidTimestamp",
	ErrorCodeWithdrawTooSoon:            "WithdrawTooSoon",
	ErrorCodeNoAccruedDough:             "NoAccruedDough",
	ErrorCodeInsufficientFunds:          "InsufficientFunds",
	ErrorCodeUnauthorized:               "Unauthorized",
	ErrorCodePayrollInactive:            "PayrollInactive",
	ErrorCodeInvalidState:               "InvalidState",
	ErrorCodeIdentityVerificationFailed: "IdentityVerificationFailed",
	ErrorCodeAccountDelegated:           "AccountDelegated",
}

func (c ErrorCode) Error() string {
	msg, ok := errorMessages[c]
	if !ok {
		return "unknown bagel error"
	}
	return msg
}

func (c ErrorCode) Name() string {
	name, ok := errorNames[c]
	if !ok {
		return "Unknown"
	}
	return name
}

// GetError maps a raw custom error code to a program error code.
func GetError(code int) (ErrorCode, bool) {
	res := ErrorCode(code)
	_, ok := errorMessages[res]
	return res, ok
}

// ErrorCodeFromError extracts a program error code from a transaction or
// instruction error.
func ErrorCodeFromError(err error) (ErrorCode, bool) {
	code, ok := solana.CustomErrorCode(err)
	if !ok {
		return 0, false
	}
	return GetError(code)
}

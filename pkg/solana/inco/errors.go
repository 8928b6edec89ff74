package inco

// LightningErrorCode is a custom error returned by the co-processor program.
type LightningErrorCode int

const (
	LightningErrorInvalidCiphertext LightningErrorCode = 6100 + iota
	LightningErrorUnknownHandle
	LightningErrorOverflow
	LightningErrorUnderflow
	LightningErrorOperationFailed
)

// TokenErrorCode is a custom error returned by the confidential token program.
type TokenErrorCode int

const (
	TokenErrorTransferFailed TokenErrorCode = 6200 + iota
	TokenErrorInsufficientFunds
	TokenErrorOwnerMismatch
	TokenErrorMintMismatch
	TokenErrorUninitializedAccount
	TokenErrorInvalidCiphertext
)

var lightningErrorNames = map[LightningErrorCode]string{
	LightningErrorInvalidCiphertext: "InvalidCiphertext",
	LightningErrorUnknownHandle:     "UnknownHandle",
	LightningErrorOverflow:          "Overflow",
	LightningErrorUnderflow:         "Underflow",
	LightningErrorOperationFailed:   "OperationFailed",
}

var tokenErrorNames = map[TokenErrorCode]string{
	TokenErrorTransferFailed:       "TransferFailed",
	TokenErrorInsufficientFunds:    "InsufficientFunds",
	TokenErrorOwnerMismatch:        "OwnerMismatch",
	TokenErrorMintMismatch:         "MintMismatch",
	TokenErrorUninitializedAccount: "UninitializedAccount",
	TokenErrorInvalidCiphertext:    "InvalidCiphertext",
}

func (c LightningErrorCode) String() string {
	if name, ok := lightningErrorNames[c]; ok {
		return name
	}
	return "Unknown"
}

func (c TokenErrorCode) String() string {
	if name, ok := tokenErrorNames[c]; ok {
		return name
	}
	return "Unknown"
}

package svm

import (
	"crypto/ed25519"
)

// Program is a builtin program executed by the runtime.
//
// Process mutates the instruction accounts in place. Returning an error fails
// the instruction and, with it, the whole transaction. Programs fail with
// solana.CustomError for their own error codes or one of the runtime's
// InstructionError values.
type Program interface {
	ProgramID() ed25519.PublicKey
	Process(ctx *InvokeContext) error
}

// nativeLoader owns every builtin program account.
var nativeLoader = ed25519.PublicKey(mustBase58Decode("NativeLoader1111111111111111111111111111111"))

func newProgramAccount() *Account {
	return &Account{
		Owner:      nativeLoader,
		Lamports:   1,
		Executable: true,
	}
}

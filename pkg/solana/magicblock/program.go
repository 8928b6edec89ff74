package magicblock

import (
	"crypto/ed25519"
	"errors"

	"github.com/mr-tron/base58"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
)

var (
	ErrInvalidAccountData     = errors.New("unexpected account data")
	ErrInvalidInstructionData = errors.New("unexpected instruction data")
)

var (
	PROGRAM_ADDRESS = mustBase58Decode("DELeGGvXpWV2fqJUhqcF5ZSYMS4JTLjteaAMARRSaeSh")
	PROGRAM_ID      = ed25519.PublicKey(PROGRAM_ADDRESS)

	// DefaultValidator is the TEE validator used when the caller doesn't pick one
	DefaultValidator = ed25519.PublicKey(mustBase58Decode("FnE6VJT5QNZdedZPnCoLsARgBwoE6DeJNjBs2H1gySXA"))

	SYSTEM_PROGRAM_ID = ed25519.PublicKey(mustBase58Decode("11111111111111111111111111111111"))
)

const (
	// DefaultCommitFrequency is the number of seconds between state commits
	// requested from the validator.
	DefaultCommitFrequency uint32 = 3600
)

var (
	DelegationRecordPrefix = []byte("delegation")
)

// GetDelegationRecordAddress derives the record tracking a delegated account.
func GetDelegationRecordAddress(delegated ed25519.PublicKey) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		PROGRAM_ID,
		DelegationRecordPrefix,
		delegated,
	)
}

func mustBase58Decode(value string) []byte {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}

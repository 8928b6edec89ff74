package shadowwire

import (
	"crypto/ed25519"
	"errors"

	"github.com/mr-tron/base58"
)

var (
	ErrInvalidInstructionData = errors.New("unexpected instruction data")
	ErrInvalidProof           = errors.New("invalid transfer proof")
)

var (
	PROGRAM_ADDRESS = mustBase58Decode("GQBqwwoikYh7p6KEUHDUu5r9dHHXx9tMGskAPubmFPzD")
	PROGRAM_ID      = ed25519.PublicKey(PROGRAM_ADDRESS)

	SYSTEM_PROGRAM_ID = ed25519.PublicKey(mustBase58Decode("11111111111111111111111111111111"))
)

const (
	CommitmentSize = 32
	RangeProofSize = 672

	// ProofSize is the size of a serialized commitment and range proof pair
	ProofSize = CommitmentSize + RangeProofSize
)

func mustBase58Decode(value string) []byte {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}

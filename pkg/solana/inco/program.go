package inco

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"

	"github.com/mr-tron/base58"
)

var (
	ErrInvalidProgram         = errors.New("invalid program id")
	ErrInvalidAccountData     = errors.New("unexpected account data")
	ErrInvalidInstructionData = errors.New("unexpected instruction data")
	ErrInvalidCiphertext      = errors.New("invalid ciphertext")
)

var (
	LIGHTNING_PROGRAM_ID = ed25519.PublicKey(mustBase58Decode("5sjEbPiqgZrYwR31ahR6Uk9wf5awoX61YGg7jExQSwaj"))
	TOKEN_PROGRAM_ID     = ed25519.PublicKey(mustBase58Decode("4cyJHzecVWuU2xux6bCAPAhALKQT8woBh4Vx3AGEGe5N"))

	SYSTEM_PROGRAM_ID = ed25519.PublicKey(mustBase58Decode("11111111111111111111111111111111"))
)

const (
	HandleSize = 16

	// InputTypeRawBytes marks ciphertext passed as raw bytes, as opposed to a
	// hex encoded string.
	InputTypeRawBytes uint8 = 1
)

// Handle is an opaque reference to an encrypted 128 bit value held by the
// co-processor.
type Handle [HandleSize]byte

// IsZero reports whether the handle was never assigned.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

// String never reveals the handle bytes.
func (h Handle) String() string {
	if h.IsZero() {
		return "Handle(unset)"
	}
	return "Handle(redacted)"
}

// Hex exposes the raw handle. It's only intended for debugging tools.
func (h Handle) Hex() string {
	return hex.EncodeToString(h[:])
}

// Ciphertext is a value encrypted to the co-processor network key.
type Ciphertext []byte

func (c Ciphertext) String() string {
	return "Ciphertext(redacted)"
}

func (c Ciphertext) Validate() error {
	if len(c) == 0 {
		return ErrInvalidCiphertext
	}
	return nil
}

func mustBase58Decode(value string) []byte {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}

package inco

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"math/big"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/box"
)

const (
	plaintextSize = 16

	devnetKeySeed = "bagel-devnet-coprocessor"
)

// NetworkKey is the public key that clients encrypt values to.
type NetworkKey [32]byte

// NetworkKeyPair is the co-processor's decryption key. Only the devnet
// co-processor holds one.
type NetworkKeyPair struct {
	Public  NetworkKey
	private [32]byte
}

var devnetKeyPair = mustGenerateDevnetKeyPair()

// DevnetNetworkKey returns the encryption key of the devnet co-processor.
func DevnetNetworkKey() NetworkKey {
	return devnetKeyPair.Public
}

// DevnetNetworkKeyPair returns the deterministic devnet co-processor key pair.
func DevnetNetworkKeyPair() *NetworkKeyPair {
	return devnetKeyPair
}

// Encrypt seals a 128 bit little endian plaintext of value to the network key.
func Encrypt(key NetworkKey, value uint64) (Ciphertext, error) {
	return EncryptBig(key, new(big.Int).SetUint64(value))
}

// EncryptBig seals an arbitrary 128 bit value to the network key.
func EncryptBig(key NetworkKey, value *big.Int) (Ciphertext, error) {
	plaintext, err := toPlaintext(value)
	if err != nil {
		return nil, err
	}

	pub := [32]byte(key)
	sealed, err := box.SealAnonymous(nil, plaintext, &pub, rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "error sealing plaintext")
	}
	return sealed, nil
}

// Decrypt opens a ciphertext sealed to the key pair.
func (kp *NetworkKeyPair) Decrypt(ciphertext Ciphertext) (*big.Int, error) {
	pub := [32]byte(kp.Public)
	plaintext, ok := box.OpenAnonymous(nil, ciphertext, &pub, &kp.private)
	if !ok {
		return nil, ErrInvalidCiphertext
	}
	if len(plaintext) != plaintextSize {
		return nil, ErrInvalidCiphertext
	}
	return fromPlaintext(plaintext), nil
}

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// MaxUint128 returns the largest value an encrypted integer can hold.
func MaxUint128() *big.Int {
	return new(big.Int).Set(maxUint128)
}

func toPlaintext(value *big.Int) ([]byte, error) {
	if value.Sign() < 0 || value.Cmp(maxUint128) > 0 {
		return nil, errors.New("value out of range for a 128 bit integer")
	}

	be := value.FillBytes(make([]byte, plaintextSize))

	le := make([]byte, plaintextSize)
	for i := range be {
		le[i] = be[plaintextSize-1-i]
	}
	return le, nil
}

func fromPlaintext(le []byte) *big.Int {
	be := make([]byte, len(le))
	for i := range le {
		be[i] = le[len(le)-1-i]
	}
	return new(big.Int).SetBytes(be)
}

// PutUint128 writes value as 16 little endian bytes.
func PutUint128(dst []byte, value *big.Int) error {
	le, err := toPlaintext(value)
	if err != nil {
		return err
	}
	copy(dst, le)
	return nil
}

// GetUint128 reads 16 little endian bytes.
func GetUint128(src []byte) *big.Int {
	return fromPlaintext(src[:plaintextSize])
}

func mustGenerateDevnetKeyPair() *NetworkKeyPair {
	seed := sha256.Sum256([]byte(devnetKeySeed))
	pub, priv, err := box.GenerateKey(bytes.NewReader(seed[:]))
	if err != nil {
		panic(err)
	}
	return &NetworkKeyPair{
		Public:  NetworkKey(*pub),
		private: *priv,
	}
}

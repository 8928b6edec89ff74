package svm

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
)

func mustBase58Decode(value string) []byte {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}

// accountKey is the map key for an account address.
func accountKey(key ed25519.PublicKey) string {
	return string(key)
}

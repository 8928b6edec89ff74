package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// readKeypair loads a keypair file. Both the solana-keygen JSON byte array
// and a bare base58 private key are accepted.
func readKeypair(path string) (ed25519.PrivateKey, error) {
	if len(path) == 0 {
		return nil, errors.New("no keypair configured, use --keypair or " + keypairEnv)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read keypair %s", path)
	}
	return parseKeypair(raw)
}

func parseKeypair(raw []byte) (ed25519.PrivateKey, error) {
	var key []byte

	var values []int
	if err := json.Unmarshal(raw, &values); err == nil {
		key = make([]byte, len(values))
		for i, b := range values {
			if b < 0 || b > 255 {
				return nil, errors.Errorf("invalid keypair byte at index %d", i)
			}
			key[i] = byte(b)
		}
	} else {
		key, err = base58.Decode(string(bytes.TrimSpace(raw)))
		if err != nil {
			return nil, errors.New("keypair is neither a JSON byte array nor base58")
		}
	}

	if len(key) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("invalid keypair length: %d", len(key))
	}

	private := ed25519.PrivateKey(key)
	derived := ed25519.NewKeyFromSeed(private.Seed())
	if !derived.Equal(private) {
		return nil, errors.New("keypair public half does not match its seed")
	}
	return private, nil
}

// writeKeypair stores key in the solana-keygen JSON format. Existing files are
// never overwritten.
func writeKeypair(path string, key ed25519.PrivateKey) error {
	values := make([]int, len(key))
	for i, b := range key {
		values[i] = int(b)
	}

	encoded, err := json.Marshal(values)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return errors.Wrapf(err, "failed to create keypair %s", path)
	}
	defer f.Close()

	_, err = f.Write(encoded)
	return err
}

func parsePublicKey(value string) (ed25519.PublicKey, error) {
	decoded, err := base58.Decode(value)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid address %q", value)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, errors.Errorf("invalid address %q", value)
	}
	return decoded, nil
}

package binary

import (
	"crypto/sha256"
)

// InstructionDiscriminator returns the 8 byte prefix identifying an instruction
// of a program built with the anchor framework.
func InstructionDiscriminator(name string) []byte {
	return namespacedHash("global", name)
}

// AccountDiscriminator returns the 8 byte prefix identifying an anchor account
// type.
func AccountDiscriminator(name string) []byte {
	return namespacedHash("account", name)
}

// EventDiscriminator returns the 8 byte prefix identifying an anchor event.
func EventDiscriminator(name string) []byte {
	return namespacedHash("event", name)
}

func namespacedHash(namespace, name string) []byte {
	h := sha256.Sum256([]byte(namespace + ":" + name))
	return h[:DiscriminatorSize]
}

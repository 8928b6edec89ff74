package bagel

import (
	"bytes"
	"crypto/ed25519"

	"github.com/bagel-payroll/bagel-server/pkg/solana/magicblock"
)

// DelegationState is the TEE state of an employee entry: either Normal or
// Delegated to a validator.
type DelegationState interface {
	isDelegationState()
}

// Normal entries are owned by the payroll program and can be mutated by it.
type Normal struct{}

// Delegated entries are owned by the delegation program. Only the recorded
// validator can commit state back.
type Delegated struct {
	Validator ed25519.PublicKey
}

func (Normal) isDelegationState()    {}
func (Delegated) isDelegationState() {}

// GetDelegationState derives the state from the entry's current owner and,
// when delegated, its delegation record.
func GetDelegationState(owner ed25519.PublicKey, record *magicblock.DelegationRecord) DelegationState {
	if !bytes.Equal(owner, magicblock.PROGRAM_ID) {
		return Normal{}
	}

	state := Delegated{}
	if record != nil {
		state.Validator = record.Validator
	}
	return state
}

package svm

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/bagel-payroll/bagel-server/pkg/data/account"
	"github.com/bagel-payroll/bagel-server/pkg/solana/system"
)

// Account is the in-memory state of an account while a transaction executes.
type Account struct {
	Owner      ed25519.PublicKey
	Lamports   uint64
	Data       []byte
	Executable bool
}

// newEmptyAccount is the implicit state of an address that has never been
// funded.
func newEmptyAccount() *Account {
	return &Account{
		Owner: system.SystemAccount,
	}
}

func accountFromRecord(record *account.Record) (*Account, error) {
	owner, err := base58.Decode(record.Owner)
	if err != nil {
		return nil, err
	}
	if len(owner) != ed25519.PublicKeySize {
		return nil, errors.Errorf("invalid owner length: %d", len(owner))
	}

	data := make([]byte, len(record.Data))
	copy(data, record.Data)

	return &Account{
		Owner:      owner,
		Lamports:   record.Lamports,
		Data:       data,
		Executable: record.Executable,
	}, nil
}

func (a *Account) toRecord(address ed25519.PublicKey, slot uint64) *account.Record {
	data := make([]byte, len(a.Data))
	copy(data, a.Data)

	return &account.Record{
		Address:    base58.Encode(address),
		Owner:      base58.Encode(a.Owner),
		Lamports:   a.Lamports,
		Data:       data,
		Executable: a.Executable,
		Slot:       slot,
	}
}

// IsOwnedBy reports whether program owns the account.
func (a *Account) IsOwnedBy(program ed25519.PublicKey) bool {
	return bytes.Equal(a.Owner, program)
}

// IsEmpty reports whether the account holds neither lamports nor data.
func (a *Account) IsEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

func (a *Account) Clone() *Account {
	owner := make(ed25519.PublicKey, len(a.Owner))
	copy(owner, a.Owner)

	data := make([]byte, len(a.Data))
	copy(data, a.Data)

	return &Account{
		Owner:      owner,
		Lamports:   a.Lamports,
		Data:       data,
		Executable: a.Executable,
	}
}

func (a *Account) equals(other *Account) bool {
	return bytes.Equal(a.Owner, other.Owner) &&
		a.Lamports == other.Lamports &&
		bytes.Equal(a.Data, other.Data) &&
		a.Executable == other.Executable
}

// Realloc resizes the account data, zero filling any growth.
func (a *Account) Realloc(size int) {
	if size <= len(a.Data) {
		a.Data = a.Data[:size]
		return
	}

	grown := make([]byte, size)
	copy(grown, a.Data)
	a.Data = grown
}

// AccountInfo is an instruction account as seen by a program, along with the
// privileges it was passed with.
type AccountInfo struct {
	*Account

	Key        ed25519.PublicKey
	IsSigner   bool
	IsWritable bool
}

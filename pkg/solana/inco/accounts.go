package inco

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"

	bin "github.com/bagel-payroll/bagel-server/pkg/solana/binary"
)

const (
	MintAccountSize = (bin.DiscriminatorSize +
		32 + // mint_authority
		HandleSize + // supply
		1 + // decimals
		1) // is_initialized

	TokenAccountSize = (bin.DiscriminatorSize +
		32 + // mint
		32 + // owner
		HandleSize + // amount
		1) // state
)

var (
	MintAccountDiscriminator  = bin.AccountDiscriminator("IncoMint")
	TokenAccountDiscriminator = bin.AccountDiscriminator("IncoAccount")
)

type AccountState uint8

const (
	AccountStateUninitialized AccountState = iota
	AccountStateInitialized
	AccountStateFrozen
)

type MintAccount struct {
	MintAuthority ed25519.PublicKey
	Supply        Handle
	Decimals      uint8
	IsInitialized bool
}

func (obj *MintAccount) Marshal() []byte {
	data := make([]byte, MintAccountSize)

	var offset int
	bin.PutDiscriminator(data[offset:], MintAccountDiscriminator, &offset)
	bin.PutKey32(data[offset:], obj.MintAuthority, &offset)
	bin.PutFixed(data[offset:], obj.Supply[:], HandleSize, &offset)
	bin.PutUint8(data[offset:], obj.Decimals, &offset)
	bin.PutBool(data[offset:], obj.IsInitialized, &offset)

	return data
}

func (obj *MintAccount) Unmarshal(data []byte) error {
	if len(data) < MintAccountSize {
		return ErrInvalidAccountData
	}

	var offset int

	var discriminator []byte
	bin.GetDiscriminator(data[offset:], &discriminator, &offset)
	if !bytes.Equal(discriminator, MintAccountDiscriminator) {
		return ErrInvalidAccountData
	}

	bin.GetKey32(data[offset:], &obj.MintAuthority, &offset)
	bin.GetFixed(data[offset:], obj.Supply[:], &offset)
	bin.GetUint8(data[offset:], &obj.Decimals, &offset)
	bin.GetBool(data[offset:], &obj.IsInitialized, &offset)

	return nil
}

func (obj *MintAccount) String() string {
	return fmt.Sprintf(
		"MintAccount{mint_authority=%s,supply=%s,decimals=%d,is_initialized=%v}",
		base58.Encode(obj.MintAuthority),
		obj.Supply.String(),
		obj.Decimals,
		obj.IsInitialized,
	)
}

type TokenAccount struct {
	Mint   ed25519.PublicKey
	Owner  ed25519.PublicKey
	Amount Handle
	State  AccountState
}

func (obj *TokenAccount) Marshal() []byte {
	data := make([]byte, TokenAccountSize)

	var offset int
	bin.PutDiscriminator(data[offset:], TokenAccountDiscriminator, &offset)
	bin.PutKey32(data[offset:], obj.Mint, &offset)
	bin.PutKey32(data[offset:], obj.Owner, &offset)
	bin.PutFixed(data[offset:], obj.Amount[:], HandleSize, &offset)
	bin.PutUint8(data[offset:], uint8(obj.State), &offset)

	return data
}

func (obj *TokenAccount) Unmarshal(data []byte) error {
	if len(data) < TokenAccountSize {
		return ErrInvalidAccountData
	}

	var offset int

	var discriminator []byte
	bin.GetDiscriminator(data[offset:], &discriminator, &offset)
	if !bytes.Equal(discriminator, TokenAccountDiscriminator) {
		return ErrInvalidAccountData
	}

	var state uint8
	bin.GetKey32(data[offset:], &obj.Mint, &offset)
	bin.GetKey32(data[offset:], &obj.Owner, &offset)
	bin.GetFixed(data[offset:], obj.Amount[:], &offset)
	bin.GetUint8(data[offset:], &state, &offset)
	obj.State = AccountState(state)

	return nil
}

func (obj *TokenAccount) String() string {
	return fmt.Sprintf(
		"TokenAccount{mint=%s,owner=%s,amount=%s,state=%d}",
		base58.Encode(obj.Mint),
		base58.Encode(obj.Owner),
		obj.Amount.String(),
		obj.State,
	)
}

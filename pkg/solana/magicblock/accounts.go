package magicblock

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"

	bin "github.com/bagel-payroll/bagel-server/pkg/solana/binary"
)

const (
	DelegationRecordSize = (bin.DiscriminatorSize +
		32 + // delegated_account
		32 + // owner_program
		32 + // validator
		4 + // commit_frequency
		8 + // delegation_slot
		8 + // delegated_at
		8) // last_commit_at
)

var DelegationRecordDiscriminator = bin.AccountDiscriminator("DelegationRecord")

type DelegationRecord struct {
	DelegatedAccount ed25519.PublicKey
	OwnerProgram     ed25519.PublicKey
	Validator        ed25519.PublicKey
	CommitFrequency  uint32
	DelegationSlot   uint64
	DelegatedAt      int64
	LastCommitAt     int64
}

func (obj *DelegationRecord) Marshal() []byte {
	data := make([]byte, DelegationRecordSize)

	var offset int
	bin.PutDiscriminator(data[offset:], DelegationRecordDiscriminator, &offset)
	bin.PutKey32(data[offset:], obj.DelegatedAccount, &offset)
	bin.PutKey32(data[offset:], obj.OwnerProgram, &offset)
	bin.PutKey32(data[offset:], obj.Validator, &offset)
	bin.PutUint32(data[offset:], obj.CommitFrequency, &offset)
	bin.PutUint64(data[offset:], obj.DelegationSlot, &offset)
	bin.PutInt64(data[offset:], obj.DelegatedAt, &offset)
	bin.PutInt64(data[offset:], obj.LastCommitAt, &offset)

	return data
}

func (obj *DelegationRecord) Unmarshal(data []byte) error {
	if len(data) < DelegationRecordSize {
		return ErrInvalidAccountData
	}

	var offset int

	var discriminator []byte
	bin.GetDiscriminator(data[offset:], &discriminator, &offset)
	if !bytes.Equal(discriminator, DelegationRecordDiscriminator) {
		return ErrInvalidAccountData
	}

	bin.GetKey32(data[offset:], &obj.DelegatedAccount, &offset)
	bin.GetKey32(data[offset:], &obj.OwnerProgram, &offset)
	bin.GetKey32(data[offset:], &obj.Validator, &offset)
	bin.GetUint32(data[offset:], &obj.CommitFrequency, &offset)
	bin.GetUint64(data[offset:], &obj.DelegationSlot, &offset)
	bin.GetInt64(data[offset:], &obj.DelegatedAt, &offset)
	bin.GetInt64(data[offset:], &obj.LastCommitAt, &offset)

	return nil
}

func (obj *DelegationRecord) String() string {
	return fmt.Sprintf(
		"DelegationRecord{delegated_account=%s,owner_program=%s,validator=%s,commit_frequency=%d,delegation_slot=%d,delegated_at=%d,last_commit_at=%d}",
		base58.Encode(obj.DelegatedAccount),
		base58.Encode(obj.OwnerProgram),
		base58.Encode(obj.Validator),
		obj.CommitFrequency,
		obj.DelegationSlot,
		obj.DelegatedAt,
		obj.LastCommitAt,
	)
}

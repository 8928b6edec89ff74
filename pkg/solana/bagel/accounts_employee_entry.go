package bagel

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"

	bin "github.com/bagel-payroll/bagel-server/pkg/solana/binary"
	"github.com/bagel-payroll/bagel-server/pkg/solana/inco"
)

const (
	EmployeeEntrySize = (bin.DiscriminatorSize +
		32 + // business_entry
		8 + // employee_index
		inco.HandleSize + // encrypted_employee_id
		inco.HandleSize + // encrypted_salary
		inco.HandleSize + // encrypted_accrued
		8 + // last_action
		1 + // is_active
		1 + // bump
		CommitmentSize) // employee_commitment
)

var EmployeeEntryDiscriminator = bin.AccountDiscriminator("EmployeeEntry")

type EmployeeEntry struct {
	BusinessEntry       ed25519.PublicKey
	EmployeeIndex       uint64
	EncryptedEmployeeId inco.Handle
	EncryptedSalary     inco.Handle
	EncryptedAccrued    inco.Handle
	LastAction          int64
	IsActive            bool
	Bump                uint8
	EmployeeCommitment  Commitment
}

func (obj *EmployeeEntry) Marshal() []byte {
	data := make([]byte, EmployeeEntrySize)

	var offset int
	bin.PutDiscriminator(data[offset:], EmployeeEntryDiscriminator, &offset)
	bin.PutKey32(data[offset:], keyOrZero(obj.BusinessEntry), &offset)
	bin.PutUint64(data[offset:], obj.EmployeeIndex, &offset)
	bin.PutFixed(data[offset:], obj.EncryptedEmployeeId[:], inco.HandleSize, &offset)
	bin.PutFixed(data[offset:], obj.EncryptedSalary[:], inco.HandleSize, &offset)
	bin.PutFixed(data[offset:], obj.EncryptedAccrued[:], inco.HandleSize, &offset)
	bin.PutInt64(data[offset:], obj.LastAction, &offset)
	bin.PutBool(data[offset:], obj.IsActive, &offset)
	bin.PutUint8(data[offset:], obj.Bump, &offset)
	bin.PutFixed(data[offset:], obj.EmployeeCommitment[:], CommitmentSize, &offset)

	return data
}

func (obj *EmployeeEntry) Unmarshal(data []byte) error {
	if len(data) < EmployeeEntrySize {
		return ErrInvalidAccountData
	}

	var offset int

	var discriminator []byte
	bin.GetDiscriminator(data[offset:], &discriminator, &offset)
	if !bytes.Equal(discriminator, EmployeeEntryDiscriminator) {
		return ErrInvalidAccountData
	}

	bin.GetKey32(data[offset:], &obj.BusinessEntry, &offset)
	bin.GetUint64(data[offset:], &obj.EmployeeIndex, &offset)
	bin.GetFixed(data[offset:], obj.EncryptedEmployeeId[:], &offset)
	bin.GetFixed(data[offset:], obj.EncryptedSalary[:], &offset)
	bin.GetFixed(data[offset:], obj.EncryptedAccrued[:], &offset)
	bin.GetInt64(data[offset:], &obj.LastAction, &offset)
	bin.GetBool(data[offset:], &obj.IsActive, &offset)
	bin.GetUint8(data[offset:], &obj.Bump, &offset)
	bin.GetFixed(data[offset:], obj.EmployeeCommitment[:], &offset)

	return nil
}

// HasSameIdentity reports whether two states describe the same employee slot.
// Fields that can't change after add_employee must match.
func (obj *EmployeeEntry) HasSameIdentity(other *EmployeeEntry) bool {
	return bytes.Equal(obj.BusinessEntry, other.BusinessEntry) &&
		obj.EmployeeIndex == other.EmployeeIndex &&
		obj.EncryptedEmployeeId == other.EncryptedEmployeeId &&
		obj.Bump == other.Bump &&
		obj.EmployeeCommitment == other.EmployeeCommitment
}

func (obj *EmployeeEntry) String() string {
	return fmt.Sprintf(
		"EmployeeEntry{business_entry=%s,employee_index=%d,encrypted_employee_id=%s,encrypted_salary=%s,encrypted_accrued=%s,last_action=%d,is_active=%v,bump=%d,employee_commitment=%s}",
		base58.Encode(obj.BusinessEntry),
		obj.EmployeeIndex,
		obj.EncryptedEmployeeId,
		obj.EncryptedSalary,
		obj.EncryptedAccrued,
		obj.LastAction,
		obj.IsActive,
		obj.Bump,
		obj.EmployeeCommitment,
	)
}

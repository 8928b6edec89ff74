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
	BusinessEntrySize = (bin.DiscriminatorSize +
		32 + // master_vault
		8 + // entry_index
		inco.HandleSize + // encrypted_employer_id
		inco.HandleSize + // encrypted_balance
		inco.HandleSize + // encrypted_employee_count
		8 + // next_employee_index
		1 + // is_active
		1 + // bump
		CommitmentSize) // employer_commitment
)

var BusinessEntryDiscriminator = bin.AccountDiscriminator("BusinessEntry")

type BusinessEntry struct {
	MasterVault            ed25519.PublicKey
	EntryIndex             uint64
	EncryptedEmployerId    inco.Handle
	EncryptedBalance       inco.Handle
	EncryptedEmployeeCount inco.Handle
	NextEmployeeIndex      uint64
	IsActive               bool
	Bump                   uint8
	EmployerCommitment     Commitment
}

func (obj *BusinessEntry) Marshal() []byte {
	data := make([]byte, BusinessEntrySize)

	var offset int
	bin.PutDiscriminator(data[offset:], BusinessEntryDiscriminator, &offset)
	bin.PutKey32(data[offset:], keyOrZero(obj.MasterVault), &offset)
	bin.PutUint64(data[offset:], obj.EntryIndex, &offset)
	bin.PutFixed(data[offset:], obj.EncryptedEmployerId[:], inco.HandleSize, &offset)
	bin.PutFixed(data[offset:], obj.EncryptedBalance[:], inco.HandleSize, &offset)
	bin.PutFixed(data[offset:], obj.EncryptedEmployeeCount[:], inco.HandleSize, &offset)
	bin.PutUint64(data[offset:], obj.NextEmployeeIndex, &offset)
	bin.PutBool(data[offset:], obj.IsActive, &offset)
	bin.PutUint8(data[offset:], obj.Bump, &offset)
	bin.PutFixed(data[offset:], obj.EmployerCommitment[:], CommitmentSize, &offset)

	return data
}

func (obj *BusinessEntry) Unmarshal(data []byte) error {
	if len(data) < BusinessEntrySize {
		return ErrInvalidAccountData
	}

	var offset int

	var discriminator []byte
	bin.GetDiscriminator(data[offset:], &discriminator, &offset)
	if !bytes.Equal(discriminator, BusinessEntryDiscriminator) {
		return ErrInvalidAccountData
	}

	bin.GetKey32(data[offset:], &obj.MasterVault, &offset)
	bin.GetUint64(data[offset:], &obj.EntryIndex, &offset)
	bin.GetFixed(data[offset:], obj.EncryptedEmployerId[:], &offset)
	bin.GetFixed(data[offset:], obj.EncryptedBalance[:], &offset)
	bin.GetFixed(data[offset:], obj.EncryptedEmployeeCount[:], &offset)
	bin.GetUint64(data[offset:], &obj.NextEmployeeIndex, &offset)
	bin.GetBool(data[offset:], &obj.IsActive, &offset)
	bin.GetUint8(data[offset:], &obj.Bump, &offset)
	bin.GetFixed(data[offset:], obj.EmployerCommitment[:], &offset)

	return nil
}

func (obj *BusinessEntry) String() string {
	return fmt.Sprintf(
		"BusinessEntry{master_vault=%s,entry_index=%d,encrypted_employer_id=%s,encrypted_balance=%s,encrypted_employee_count=%s,next_employee_index=%d,is_active=%v,bump=%d,employer_commitment=%s}",
		base58.Encode(obj.MasterVault),
		obj.EntryIndex,
		obj.EncryptedEmployerId,
		obj.EncryptedBalance,
		obj.EncryptedEmployeeCount,
		obj.NextEmployeeIndex,
		obj.IsActive,
		obj.Bump,
		obj.EmployerCommitment,
	)
}

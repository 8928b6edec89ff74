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
	LegacyMasterVaultSize = (bin.DiscriminatorSize +
		32 + // authority
		8 + // total_balance
		inco.HandleSize + // encrypted_business_count
		inco.HandleSize + // encrypted_employee_count
		8 + // next_business_index
		1 + // is_active
		1) // bump

	MasterVaultSize = (LegacyMasterVaultSize +
		32 + // confidential_mint
		1 + // use_confidential_tokens
		31) // padding
)

var MasterVaultDiscriminator = bin.AccountDiscriminator("MasterVault")

type MasterVault struct {
	Authority              ed25519.PublicKey
	TotalBalance           uint64
	EncryptedBusinessCount inco.Handle
	EncryptedEmployeeCount inco.Handle
	NextBusinessIndex      uint64
	IsActive               bool
	Bump                   uint8
	ConfidentialMint       ed25519.PublicKey
	UseConfidentialTokens  bool
}

// IsConfidential reports whether value moves with the confidential token
// program rather than lamports.
func (obj *MasterVault) IsConfidential() bool {
	if !obj.UseConfidentialTokens || len(obj.ConfidentialMint) == 0 {
		return false
	}
	return !bytes.Equal(obj.ConfidentialMint, make([]byte, ed25519.PublicKeySize))
}

func (obj *MasterVault) Marshal() []byte {
	data := make([]byte, MasterVaultSize)

	offset := obj.marshalLegacy(data)
	bin.PutKey32(data[offset:], keyOrZero(obj.ConfidentialMint), &offset)
	bin.PutBool(data[offset:], obj.UseConfidentialTokens, &offset)

	return data
}

// MarshalLegacy encodes the vault in the layout that predates confidential
// token support.
func (obj *MasterVault) MarshalLegacy() []byte {
	data := make([]byte, LegacyMasterVaultSize)
	obj.marshalLegacy(data)
	return data
}

func (obj *MasterVault) marshalLegacy(data []byte) int {
	var offset int
	bin.PutDiscriminator(data[offset:], MasterVaultDiscriminator, &offset)
	bin.PutKey32(data[offset:], keyOrZero(obj.Authority), &offset)
	bin.PutUint64(data[offset:], obj.TotalBalance, &offset)
	bin.PutFixed(data[offset:], obj.EncryptedBusinessCount[:], inco.HandleSize, &offset)
	bin.PutFixed(data[offset:], obj.EncryptedEmployeeCount[:], inco.HandleSize, &offset)
	bin.PutUint64(data[offset:], obj.NextBusinessIndex, &offset)
	bin.PutBool(data[offset:], obj.IsActive, &offset)
	bin.PutUint8(data[offset:], obj.Bump, &offset)
	return offset
}

func (obj *MasterVault) Unmarshal(data []byte) error {
	if len(data) < MasterVaultSize {
		return ErrInvalidAccountData
	}

	offset, err := obj.unmarshalLegacy(data)
	if err != nil {
		return err
	}
	bin.GetKey32(data[offset:], &obj.ConfidentialMint, &offset)
	bin.GetBool(data[offset:], &obj.UseConfidentialTokens, &offset)

	return nil
}

// UnmarshalLegacy decodes either layout, ignoring fields added after the
// legacy layout.
func (obj *MasterVault) UnmarshalLegacy(data []byte) error {
	if len(data) < LegacyMasterVaultSize {
		return ErrInvalidAccountData
	}
	_, err := obj.unmarshalLegacy(data)
	return err
}

func (obj *MasterVault) unmarshalLegacy(data []byte) (int, error) {
	var offset int

	var discriminator []byte
	bin.GetDiscriminator(data[offset:], &discriminator, &offset)
	if !bytes.Equal(discriminator, MasterVaultDiscriminator) {
		return 0, ErrInvalidAccountData
	}

	bin.GetKey32(data[offset:], &obj.Authority, &offset)
	bin.GetUint64(data[offset:], &obj.TotalBalance, &offset)
	bin.GetFixed(data[offset:], obj.EncryptedBusinessCount[:], &offset)
	bin.GetFixed(data[offset:], obj.EncryptedEmployeeCount[:], &offset)
	bin.GetUint64(data[offset:], &obj.NextBusinessIndex, &offset)
	bin.GetBool(data[offset:], &obj.IsActive, &offset)
	bin.GetUint8(data[offset:], &obj.Bump, &offset)

	return offset, nil
}

func (obj *MasterVault) String() string {
	return fmt.Sprintf(
		"MasterVault{authority=%s,total_balance=%d,encrypted_business_count=%s,encrypted_employee_count=%s,next_business_index=%d,is_active=%v,bump=%d,confidential_mint=%s,use_confidential_tokens=%v}",
		base58.Encode(obj.Authority),
		obj.TotalBalance,
		obj.EncryptedBusinessCount,
		obj.EncryptedEmployeeCount,
		obj.NextBusinessIndex,
		obj.IsActive,
		obj.Bump,
		base58.Encode(obj.ConfidentialMint),
		obj.UseConfidentialTokens,
	)
}

func keyOrZero(key ed25519.PublicKey) []byte {
	if len(key) == 0 {
		return make([]byte, ed25519.PublicKeySize)
	}
	return key
}

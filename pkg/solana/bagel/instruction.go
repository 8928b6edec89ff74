package bagel

import (
	"bytes"
	"crypto/ed25519"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	bin "github.com/bagel-payroll/bagel-server/pkg/solana/binary"
)

type Instruction uint8

const (
	InstructionUnknown Instruction = iota
	InstructionInitializeVault
	InstructionMigrateVault
	InstructionConfigureConfidentialMint
	InstructionSetVaultActive
	InstructionCloseVault
	InstructionRegisterBusiness
	InstructionDeposit
	InstructionAddEmployee
	InstructionAccrue
	InstructionRequestWithdrawal
	InstructionUpdateSalary
	InstructionDeactivateEmployee
	InstructionCloseEmployeeEntry
	InstructionCloseBusinessEntry
	InstructionDelegateToTee
	InstructionCommitFromTee
	InstructionAllocateToYield
	InstructionHarvestYield
	InstructionReleaseFromYield
	InstructionSetBusinessActive
)

var instructionNames = map[Instruction]string{
	InstructionInitializeVault:           "initialize_vault",
	InstructionMigrateVault:              "migrate_vault",
	InstructionConfigureConfidentialMint: "configure_confidential_mint",
	InstructionSetVaultActive:            "set_vault_active",
	InstructionCloseVault:                "close_vault",
	InstructionRegisterBusiness:          "register_business",
	InstructionDeposit:                   "deposit",
	InstructionAddEmployee:               "add_employee",
	InstructionAccrue:                    "accrue",
	InstructionRequestWithdrawal:         "request_withdrawal",
	InstructionUpdateSalary:              "update_salary",
	InstructionDeactivateEmployee:        "deactivate_employee",
	InstructionCloseEmployeeEntry:        "close_employee_entry",
	InstructionCloseBusinessEntry:        "close_business_entry",
	InstructionDelegateToTee:             "delegate_to_tee",
	InstructionCommitFromTee:             "commit_from_tee",
	InstructionAllocateToYield:           "allocate_to_yield",
	InstructionHarvestYield:              "harvest_yield",
	InstructionReleaseFromYield:          "release_from_yield",
	InstructionSetBusinessActive:         "set_business_active",
}

var instructionsByDiscriminator = func() map[string]Instruction {
	res := make(map[string]Instruction)
	for ix, name := range instructionNames {
		res[string(bin.InstructionDiscriminator(name))] = ix
	}
	return res
}()

func (i Instruction) String() string {
	name, ok := instructionNames[i]
	if !ok {
		return "unknown"
	}
	return name
}

// Discriminator is the anchor discriminator prefixing the instruction data.
func (i Instruction) Discriminator() []byte {
	return bin.InstructionDiscriminator(i.String())
}

func GetInstruction(data []byte) (Instruction, error) {
	if len(data) < bin.DiscriminatorSize {
		return InstructionUnknown, ErrInvalidInstructionData
	}

	ix, ok := instructionsByDiscriminator[string(data[:bin.DiscriminatorSize])]
	if !ok {
		return InstructionUnknown, ErrInvalidInstructionData
	}
	return ix, nil
}

func newInstructionData(ix Instruction, argsSize int) ([]byte, int) {
	var offset int
	data := make([]byte, bin.DiscriminatorSize+argsSize)
	bin.PutDiscriminator(data[offset:], ix.Discriminator(), &offset)
	return data, offset
}

// checkInstructionData verifies the discriminator and, for fixed size
// arguments, the total length.
func checkInstructionData(data []byte, expected Instruction, argsSize int) error {
	ix, err := GetInstruction(data)
	if err != nil {
		return err
	}
	if ix != expected {
		return ErrInvalidInstructionData
	}
	if argsSize >= 0 && len(data) != bin.DiscriminatorSize+argsSize {
		return ErrInvalidInstructionData
	}
	return nil
}

// OptionalAccount returns the meta for an optional account. Absent accounts
// are passed as the program id, which anchor decodes as None.
func OptionalAccount(key ed25519.PublicKey, isWritable bool) solana.AccountMeta {
	if len(key) == 0 {
		return solana.AccountMeta{
			PublicKey:  PROGRAM_ID,
			IsWritable: false,
			IsSigner:   false,
		}
	}
	return solana.AccountMeta{
		PublicKey:  key,
		IsWritable: isWritable,
		IsSigner:   false,
	}
}

// IsAccountPresent reports whether an optional account was provided.
func IsAccountPresent(key ed25519.PublicKey) bool {
	return len(key) > 0 && !bytes.Equal(key, PROGRAM_ID)
}

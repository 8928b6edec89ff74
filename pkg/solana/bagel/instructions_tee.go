package bagel

import (
	"crypto/ed25519"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	bin "github.com/bagel-payroll/bagel-server/pkg/solana/binary"
	"github.com/bagel-payroll/bagel-server/pkg/solana/magicblock"
)

type DelegateToTeeInstructionAccounts struct {
	Payer            ed25519.PublicKey
	MasterVault      ed25519.PublicKey
	BusinessEntry    ed25519.PublicKey
	EmployeeEntry    ed25519.PublicKey
	DelegationRecord ed25519.PublicKey

	// Optional, defaults to magicblock.DefaultValidator
	Validator ed25519.PublicKey
}

// NewDelegateToTeeInstruction hands an employee entry to a TEE validator.
// The payer must be the business's employer.
func NewDelegateToTeeInstruction(accounts *DelegateToTeeInstructionAccounts) solana.Instruction {
	data, _ := newInstructionData(InstructionDelegateToTee, 0)

	return solana.Instruction{
		Program: PROGRAM_ADDRESS,
		Data:    data,
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Payer,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.MasterVault,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.BusinessEntry,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.EmployeeEntry,
				IsWritable: true,
				IsSigner:   false,
			},
			OptionalAccount(accounts.Validator, false),
			{
				PublicKey:  accounts.DelegationRecord,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  magicblock.PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  SYSTEM_PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}

type CommitFromTeeInstructionArgs struct {
	NewState   []byte
	Undelegate bool
}

type CommitFromTeeInstructionAccounts struct {
	Validator        ed25519.PublicKey
	MasterVault      ed25519.PublicKey
	BusinessEntry    ed25519.PublicKey
	EmployeeEntry    ed25519.PublicKey
	DelegationRecord ed25519.PublicKey
}

// NewCommitFromTeeInstruction writes state computed by the validator back to
// the base layer, optionally ending the delegation.
func NewCommitFromTeeInstruction(
	accounts *CommitFromTeeInstructionAccounts,
	args *CommitFromTeeInstructionArgs,
) solana.Instruction {
	data, offset := newInstructionData(InstructionCommitFromTee, bin.VecSize(len(args.NewState))+1)
	bin.PutVec(data[offset:], args.NewState, &offset)
	bin.PutBool(data[offset:], args.Undelegate, &offset)

	return solana.Instruction{
		Program: PROGRAM_ADDRESS,
		Data:    data,
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Validator,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.MasterVault,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.BusinessEntry,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.EmployeeEntry,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.DelegationRecord,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  magicblock.PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}

func ParseCommitFromTeeInstructionArgs(data []byte) (*CommitFromTeeInstructionArgs, error) {
	if err := checkInstructionData(data, InstructionCommitFromTee, -1); err != nil {
		return nil, err
	}

	var args CommitFromTeeInstructionArgs
	offset := bin.DiscriminatorSize
	if err := bin.GetVec(data[offset:], &args.NewState, &offset); err != nil {
		return nil, ErrInvalidInstructionData
	}
	if len(data) != offset+1 {
		return nil, ErrInvalidInstructionData
	}
	bin.GetBool(data[offset:], &args.Undelegate, &offset)
	return &args, nil
}

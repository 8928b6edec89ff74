package bagel

import (
	"crypto/ed25519"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	bin "github.com/bagel-payroll/bagel-server/pkg/solana/binary"
	"github.com/bagel-payroll/bagel-server/pkg/solana/inco"
)

type RegisterBusinessInstructionArgs struct {
	EncryptedEmployerId inco.Ciphertext
}

type RegisterBusinessInstructionAccounts struct {
	Employer      ed25519.PublicKey
	Authority     ed25519.PublicKey
	MasterVault   ed25519.PublicKey
	BusinessEntry ed25519.PublicKey
}

// NewRegisterBusinessInstruction creates the business entry at the vault's
// next index. The vault authority co-signs as the onboarding gate.
func NewRegisterBusinessInstruction(
	accounts *RegisterBusinessInstructionAccounts,
	args *RegisterBusinessInstructionArgs,
) solana.Instruction {
	data, offset := newInstructionData(InstructionRegisterBusiness, bin.VecSize(len(args.EncryptedEmployerId)))
	bin.PutVec(data[offset:], args.EncryptedEmployerId, &offset)

	return solana.Instruction{
		Program: PROGRAM_ADDRESS,
		Data:    data,
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Employer,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.Authority,
				IsWritable: false,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.MasterVault,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.BusinessEntry,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  inco.LIGHTNING_PROGRAM_ID,
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

func ParseRegisterBusinessInstructionArgs(data []byte) (*RegisterBusinessInstructionArgs, error) {
	if err := checkInstructionData(data, InstructionRegisterBusiness, -1); err != nil {
		return nil, err
	}

	offset := bin.DiscriminatorSize
	var ciphertext []byte
	if err := bin.GetVec(data[offset:], &ciphertext, &offset); err != nil || offset != len(data) {
		return nil, ErrInvalidInstructionData
	}
	return &RegisterBusinessInstructionArgs{EncryptedEmployerId: ciphertext}, nil
}

type DepositInstructionArgs struct {
	Amount          uint64
	EncryptedAmount inco.Ciphertext
}

type DepositInstructionAccounts struct {
	Depositor     ed25519.PublicKey
	MasterVault   ed25519.PublicKey
	BusinessEntry ed25519.PublicKey

	// Required only when the vault uses confidential tokens
	IncoTokenProgram        ed25519.PublicKey
	DepositorTokenAccount   ed25519.PublicKey
	MasterVaultTokenAccount ed25519.PublicKey
}

// NewDepositInstruction funds a business. In lamport mode Amount lamports
// move into the vault; in confidential token mode the encrypted amount moves
// between token accounts. Either way the encrypted balance grows by the
// encrypted amount.
func NewDepositInstruction(
	accounts *DepositInstructionAccounts,
	args *DepositInstructionArgs,
) solana.Instruction {
	data, offset := newInstructionData(InstructionDeposit, 8+bin.VecSize(len(args.EncryptedAmount)))
	bin.PutUint64(data[offset:], args.Amount, &offset)
	bin.PutVec(data[offset:], args.EncryptedAmount, &offset)

	return solana.Instruction{
		Program: PROGRAM_ADDRESS,
		Data:    data,
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Depositor,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.MasterVault,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.BusinessEntry,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  inco.LIGHTNING_PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
			OptionalAccount(accounts.IncoTokenProgram, false),
			OptionalAccount(accounts.DepositorTokenAccount, true),
			OptionalAccount(accounts.MasterVaultTokenAccount, true),
			{
				PublicKey:  SYSTEM_PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}

func ParseDepositInstructionArgs(data []byte) (*DepositInstructionArgs, error) {
	if err := checkInstructionData(data, InstructionDeposit, -1); err != nil {
		return nil, err
	}
	if len(data) < bin.DiscriminatorSize+8 {
		return nil, ErrInvalidInstructionData
	}

	var args DepositInstructionArgs
	offset := bin.DiscriminatorSize
	bin.GetUint64(data[offset:], &args.Amount, &offset)

	var ciphertext []byte
	if err := bin.GetVec(data[offset:], &ciphertext, &offset); err != nil || offset != len(data) {
		return nil, ErrInvalidInstructionData
	}
	args.EncryptedAmount = ciphertext
	return &args, nil
}

const SetBusinessActiveInstructionArgsSize = 1 // is_active

type SetBusinessActiveInstructionArgs struct {
	IsActive bool
}

type SetBusinessActiveInstructionAccounts struct {
	Employer      ed25519.PublicKey
	MasterVault   ed25519.PublicKey
	BusinessEntry ed25519.PublicKey
}

// NewSetBusinessActiveInstruction pauses or resumes a single business. While
// paused the business takes no deposits, hires or salary changes, and its
// employees neither accrue nor withdraw.
func NewSetBusinessActiveInstruction(
	accounts *SetBusinessActiveInstructionAccounts,
	args *SetBusinessActiveInstructionArgs,
) solana.Instruction {
	data, offset := newInstructionData(InstructionSetBusinessActive, SetBusinessActiveInstructionArgsSize)
	bin.PutBool(data[offset:], args.IsActive, &offset)

	return solana.Instruction{
		Program: PROGRAM_ADDRESS,
		Data:    data,
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Employer,
				IsWritable: false,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.MasterVault,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.BusinessEntry,
				IsWritable: true,
				IsSigner:   false,
			},
		},
	}
}

func ParseSetBusinessActiveInstructionArgs(data []byte) (*SetBusinessActiveInstructionArgs, error) {
	if err := checkInstructionData(data, InstructionSetBusinessActive, SetBusinessActiveInstructionArgsSize); err != nil {
		return nil, err
	}

	var args SetBusinessActiveInstructionArgs
	offset := bin.DiscriminatorSize
	bin.GetBool(data[offset:], &args.IsActive, &offset)
	return &args, nil
}

type CloseBusinessEntryInstructionAccounts struct {
	Employer      ed25519.PublicKey
	MasterVault   ed25519.PublicKey
	BusinessEntry ed25519.PublicKey

	// Every employee slot ever assigned, in index order
	EmployeeEntries []ed25519.PublicKey
}

// NewCloseBusinessEntryInstruction closes a business whose employees have all
// been deactivated or closed. Only intended for teardown.
func NewCloseBusinessEntryInstruction(accounts *CloseBusinessEntryInstructionAccounts) solana.Instruction {
	data, _ := newInstructionData(InstructionCloseBusinessEntry, 0)

	metas := []solana.AccountMeta{
		{
			PublicKey:  accounts.Employer,
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
			IsWritable: true,
			IsSigner:   false,
		},
	}
	for _, employee := range accounts.EmployeeEntries {
		metas = append(metas, solana.AccountMeta{
			PublicKey:  employee,
			IsWritable: false,
			IsSigner:   false,
		})
	}

	return solana.Instruction{
		Program:  PROGRAM_ADDRESS,
		Data:     data,
		Accounts: metas,
	}
}

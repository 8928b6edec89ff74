package bagel

import (
	"crypto/ed25519"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	bin "github.com/bagel-payroll/bagel-server/pkg/solana/binary"
	"github.com/bagel-payroll/bagel-server/pkg/solana/inco"
	"github.com/bagel-payroll/bagel-server/pkg/solana/shadowwire"
)

type AddEmployeeInstructionArgs struct {
	EncryptedEmployeeId inco.Ciphertext
	EncryptedSalary     inco.Ciphertext
	EmployeeCommitment  Commitment
}

type AddEmployeeInstructionAccounts struct {
	Employer      ed25519.PublicKey
	MasterVault   ed25519.PublicKey
	BusinessEntry ed25519.PublicKey
	EmployeeEntry ed25519.PublicKey
}

func NewAddEmployeeInstruction(
	accounts *AddEmployeeInstructionAccounts,
	args *AddEmployeeInstructionArgs,
) solana.Instruction {
	data, offset := newInstructionData(
		InstructionAddEmployee,
		bin.VecSize(len(args.EncryptedEmployeeId))+bin.VecSize(len(args.EncryptedSalary))+CommitmentSize,
	)
	bin.PutVec(data[offset:], args.EncryptedEmployeeId, &offset)
	bin.PutVec(data[offset:], args.EncryptedSalary, &offset)
	bin.PutFixed(data[offset:], args.EmployeeCommitment[:], CommitmentSize, &offset)

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
				PublicKey:  accounts.EmployeeEntry,
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

func ParseAddEmployeeInstructionArgs(data []byte) (*AddEmployeeInstructionArgs, error) {
	if err := checkInstructionData(data, InstructionAddEmployee, -1); err != nil {
		return nil, err
	}

	offset := bin.DiscriminatorSize

	var employeeId, salary []byte
	if err := bin.GetVec(data[offset:], &employeeId, &offset); err != nil {
		return nil, ErrInvalidInstructionData
	}
	if err := bin.GetVec(data[offset:], &salary, &offset); err != nil {
		return nil, ErrInvalidInstructionData
	}
	if len(data) != offset+CommitmentSize {
		return nil, ErrInvalidInstructionData
	}

	args := &AddEmployeeInstructionArgs{
		EncryptedEmployeeId: employeeId,
		EncryptedSalary:     salary,
	}
	bin.GetFixed(data[offset:], args.EmployeeCommitment[:], &offset)
	return args, nil
}

type AccrueInstructionAccounts struct {
	Cranker       ed25519.PublicKey
	MasterVault   ed25519.PublicKey
	BusinessEntry ed25519.PublicKey
	EmployeeEntry ed25519.PublicKey
}

// NewAccrueInstruction grows the encrypted accrued balance by the encrypted
// salary times the seconds since the last action. Anyone can crank it.
func NewAccrueInstruction(accounts *AccrueInstructionAccounts) solana.Instruction {
	data, _ := newInstructionData(InstructionAccrue, 0)

	return solana.Instruction{
		Program: PROGRAM_ADDRESS,
		Data:    data,
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Cranker,
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
				PublicKey:  inco.LIGHTNING_PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}

type RequestWithdrawalInstructionArgs struct {
	Amount          uint64
	EncryptedAmount inco.Ciphertext
	UseShadowwire   bool

	// Only read when routing a confidential transfer through the zero
	// knowledge layer
	Proof *shadowwire.Proof
}

type RequestWithdrawalInstructionAccounts struct {
	Withdrawer    ed25519.PublicKey
	MasterVault   ed25519.PublicKey
	BusinessEntry ed25519.PublicKey
	EmployeeEntry ed25519.PublicKey

	// Required only when the vault uses confidential tokens
	IncoTokenProgram        ed25519.PublicKey
	MasterVaultTokenAccount ed25519.PublicKey
	EmployeeTokenAccount    ed25519.PublicKey
	ShadowwireProgram       ed25519.PublicKey
}

func NewRequestWithdrawalInstruction(
	accounts *RequestWithdrawalInstructionAccounts,
	args *RequestWithdrawalInstructionArgs,
) solana.Instruction {
	var proof []byte
	if args.Proof != nil {
		proof = args.Proof.Marshal()
	}

	data, offset := newInstructionData(
		InstructionRequestWithdrawal,
		8+bin.VecSize(len(args.EncryptedAmount))+1+bin.VecSize(len(proof)),
	)
	bin.PutUint64(data[offset:], args.Amount, &offset)
	bin.PutVec(data[offset:], args.EncryptedAmount, &offset)
	bin.PutBool(data[offset:], args.UseShadowwire, &offset)
	bin.PutVec(data[offset:], proof, &offset)

	return solana.Instruction{
		Program: PROGRAM_ADDRESS,
		Data:    data,
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Withdrawer,
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
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.EmployeeEntry,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  inco.LIGHTNING_PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
			OptionalAccount(accounts.IncoTokenProgram, false),
			OptionalAccount(accounts.MasterVaultTokenAccount, true),
			OptionalAccount(accounts.EmployeeTokenAccount, true),
			OptionalAccount(accounts.ShadowwireProgram, false),
			{
				PublicKey:  SYSTEM_PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}

func ParseRequestWithdrawalInstructionArgs(data []byte) (*RequestWithdrawalInstructionArgs, error) {
	if err := checkInstructionData(data, InstructionRequestWithdrawal, -1); err != nil {
		return nil, err
	}
	if len(data) < bin.DiscriminatorSize+8 {
		return nil, ErrInvalidInstructionData
	}

	var args RequestWithdrawalInstructionArgs
	offset := bin.DiscriminatorSize
	bin.GetUint64(data[offset:], &args.Amount, &offset)

	var ciphertext []byte
	if err := bin.GetVec(data[offset:], &ciphertext, &offset); err != nil {
		return nil, ErrInvalidInstructionData
	}
	args.EncryptedAmount = ciphertext

	if len(data) < offset+1 {
		return nil, ErrInvalidInstructionData
	}
	bin.GetBool(data[offset:], &args.UseShadowwire, &offset)

	var proof []byte
	if err := bin.GetVec(data[offset:], &proof, &offset); err != nil || offset != len(data) {
		return nil, ErrInvalidInstructionData
	}
	if len(proof) > 0 {
		args.Proof = &shadowwire.Proof{}
		if err := args.Proof.Unmarshal(proof); err != nil {
			return nil, ErrInvalidInstructionData
		}
	}

	return &args, nil
}

type UpdateSalaryInstructionArgs struct {
	EncryptedSalary inco.Ciphertext
}

type UpdateSalaryInstructionAccounts struct {
	Employer      ed25519.PublicKey
	MasterVault   ed25519.PublicKey
	BusinessEntry ed25519.PublicKey
	EmployeeEntry ed25519.PublicKey
}

// NewUpdateSalaryInstruction replaces the encrypted salary rate. Pending
// salary at the old rate is accrued first.
func NewUpdateSalaryInstruction(
	accounts *UpdateSalaryInstructionAccounts,
	args *UpdateSalaryInstructionArgs,
) solana.Instruction {
	data, offset := newInstructionData(InstructionUpdateSalary, bin.VecSize(len(args.EncryptedSalary)))
	bin.PutVec(data[offset:], args.EncryptedSalary, &offset)

	metas := employerAccounts(accounts.Employer, accounts.MasterVault, accounts.BusinessEntry, accounts.EmployeeEntry)
	metas = append(metas, solana.AccountMeta{
		PublicKey:  inco.LIGHTNING_PROGRAM_ID,
		IsWritable: false,
		IsSigner:   false,
	})

	return solana.Instruction{
		Program:  PROGRAM_ADDRESS,
		Data:     data,
		Accounts: metas,
	}
}

func ParseUpdateSalaryInstructionArgs(data []byte) (*UpdateSalaryInstructionArgs, error) {
	if err := checkInstructionData(data, InstructionUpdateSalary, -1); err != nil {
		return nil, err
	}

	offset := bin.DiscriminatorSize
	var ciphertext []byte
	if err := bin.GetVec(data[offset:], &ciphertext, &offset); err != nil || offset != len(data) {
		return nil, ErrInvalidInstructionData
	}
	return &UpdateSalaryInstructionArgs{EncryptedSalary: ciphertext}, nil
}

type DeactivateEmployeeInstructionAccounts struct {
	Employer      ed25519.PublicKey
	MasterVault   ed25519.PublicKey
	BusinessEntry ed25519.PublicKey
	EmployeeEntry ed25519.PublicKey
}

func NewDeactivateEmployeeInstruction(accounts *DeactivateEmployeeInstructionAccounts) solana.Instruction {
	data, _ := newInstructionData(InstructionDeactivateEmployee, 0)

	return solana.Instruction{
		Program:  PROGRAM_ADDRESS,
		Data:     data,
		Accounts: employerAccounts(accounts.Employer, accounts.MasterVault, accounts.BusinessEntry, accounts.EmployeeEntry),
	}
}

type CloseEmployeeEntryInstructionAccounts struct {
	Employer      ed25519.PublicKey
	MasterVault   ed25519.PublicKey
	BusinessEntry ed25519.PublicKey
	EmployeeEntry ed25519.PublicKey
}

// NewCloseEmployeeEntryInstruction closes a deactivated employee entry and
// returns its rent to the employer. Only intended for teardown.
func NewCloseEmployeeEntryInstruction(accounts *CloseEmployeeEntryInstructionAccounts) solana.Instruction {
	data, _ := newInstructionData(InstructionCloseEmployeeEntry, 0)

	return solana.Instruction{
		Program:  PROGRAM_ADDRESS,
		Data:     data,
		Accounts: employerAccounts(accounts.Employer, accounts.MasterVault, accounts.BusinessEntry, accounts.EmployeeEntry),
	}
}

func employerAccounts(employer, masterVault, businessEntry, employeeEntry ed25519.PublicKey) []solana.AccountMeta {
	return []solana.AccountMeta{
		{
			PublicKey:  employer,
			IsWritable: true,
			IsSigner:   true,
		},
		{
			PublicKey:  masterVault,
			IsWritable: false,
			IsSigner:   false,
		},
		{
			PublicKey:  businessEntry,
			IsWritable: false,
			IsSigner:   false,
		},
		{
			PublicKey:  employeeEntry,
			IsWritable: true,
			IsSigner:   false,
		},
	}
}

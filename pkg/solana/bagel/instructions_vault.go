package bagel

import (
	"crypto/ed25519"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	bin "github.com/bagel-payroll/bagel-server/pkg/solana/binary"
	"github.com/bagel-payroll/bagel-server/pkg/solana/inco"
)

type InitializeVaultInstructionAccounts struct {
	Authority   ed25519.PublicKey
	MasterVault ed25519.PublicKey
}

func NewInitializeVaultInstruction(accounts *InitializeVaultInstructionAccounts) solana.Instruction {
	data, _ := newInstructionData(InstructionInitializeVault, 0)

	return solana.Instruction{
		Program: PROGRAM_ADDRESS,
		Data:    data,
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Authority,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.MasterVault,
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

type MigrateVaultInstructionAccounts struct {
	Authority   ed25519.PublicKey
	MasterVault ed25519.PublicKey
}

func NewMigrateVaultInstruction(accounts *MigrateVaultInstructionAccounts) solana.Instruction {
	data, _ := newInstructionData(InstructionMigrateVault, 0)

	return solana.Instruction{
		Program: PROGRAM_ADDRESS,
		Data:    data,
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Authority,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.MasterVault,
				IsWritable: true,
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

const (
	ConfigureConfidentialMintInstructionArgsSize = (32 + // mint
		1) // enable
)

type ConfigureConfidentialMintInstructionArgs struct {
	Mint   ed25519.PublicKey
	Enable bool
}

type ConfigureConfidentialMintInstructionAccounts struct {
	Authority   ed25519.PublicKey
	MasterVault ed25519.PublicKey
}

func NewConfigureConfidentialMintInstruction(
	accounts *ConfigureConfidentialMintInstructionAccounts,
	args *ConfigureConfidentialMintInstructionArgs,
) solana.Instruction {
	data, offset := newInstructionData(InstructionConfigureConfidentialMint, ConfigureConfidentialMintInstructionArgsSize)
	bin.PutKey32(data[offset:], keyOrZero(args.Mint), &offset)
	bin.PutBool(data[offset:], args.Enable, &offset)

	return solana.Instruction{
		Program:  PROGRAM_ADDRESS,
		Data:     data,
		Accounts: authorityAccounts(accounts.Authority, accounts.MasterVault),
	}
}

func ParseConfigureConfidentialMintInstructionArgs(data []byte) (*ConfigureConfidentialMintInstructionArgs, error) {
	if err := checkInstructionData(data, InstructionConfigureConfidentialMint, ConfigureConfidentialMintInstructionArgsSize); err != nil {
		return nil, err
	}

	var args ConfigureConfidentialMintInstructionArgs
	offset := bin.DiscriminatorSize
	bin.GetKey32(data[offset:], &args.Mint, &offset)
	bin.GetBool(data[offset:], &args.Enable, &offset)
	return &args, nil
}

const SetVaultActiveInstructionArgsSize = 1 // is_active

type SetVaultActiveInstructionArgs struct {
	IsActive bool
}

type SetVaultActiveInstructionAccounts struct {
	Authority   ed25519.PublicKey
	MasterVault ed25519.PublicKey
}

func NewSetVaultActiveInstruction(
	accounts *SetVaultActiveInstructionAccounts,
	args *SetVaultActiveInstructionArgs,
) solana.Instruction {
	data, offset := newInstructionData(InstructionSetVaultActive, SetVaultActiveInstructionArgsSize)
	bin.PutBool(data[offset:], args.IsActive, &offset)

	return solana.Instruction{
		Program:  PROGRAM_ADDRESS,
		Data:     data,
		Accounts: authorityAccounts(accounts.Authority, accounts.MasterVault),
	}
}

func ParseSetVaultActiveInstructionArgs(data []byte) (*SetVaultActiveInstructionArgs, error) {
	if err := checkInstructionData(data, InstructionSetVaultActive, SetVaultActiveInstructionArgsSize); err != nil {
		return nil, err
	}

	var args SetVaultActiveInstructionArgs
	offset := bin.DiscriminatorSize
	bin.GetBool(data[offset:], &args.IsActive, &offset)
	return &args, nil
}

type CloseVaultInstructionAccounts struct {
	Authority     ed25519.PublicKey
	MasterVault   ed25519.PublicKey
	YieldPosition ed25519.PublicKey
}

// NewCloseVaultInstruction closes an empty vault and returns its rent to the
// authority. The yield position is passed whether or not it was opened, so
// a vault with principal still lent out can't be closed. Only intended for
// teardown.
func NewCloseVaultInstruction(accounts *CloseVaultInstructionAccounts) solana.Instruction {
	data, _ := newInstructionData(InstructionCloseVault, 0)

	return solana.Instruction{
		Program: PROGRAM_ADDRESS,
		Data:    data,
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Authority,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.MasterVault,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.YieldPosition,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}

func authorityAccounts(authority, masterVault ed25519.PublicKey) []solana.AccountMeta {
	return []solana.AccountMeta{
		{
			PublicKey:  authority,
			IsWritable: false,
			IsSigner:   true,
		},
		{
			PublicKey:  masterVault,
			IsWritable: true,
			IsSigner:   false,
		},
	}
}

package bagel

import (
	"crypto/ed25519"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	bin "github.com/bagel-payroll/bagel-server/pkg/solana/binary"
)

const YieldAmountInstructionArgsSize = 8 // amount

type YieldAmountInstructionArgs struct {
	Amount uint64
}

type YieldInstructionAccounts struct {
	Authority     ed25519.PublicKey
	MasterVault   ed25519.PublicKey
	YieldPosition ed25519.PublicKey
}

// NewAllocateToYieldInstruction moves the yield share of Amount from the
// vault's liquid balance into the yield position, creating it on first use.
func NewAllocateToYieldInstruction(
	accounts *YieldInstructionAccounts,
	args *YieldAmountInstructionArgs,
) solana.Instruction {
	data, offset := newInstructionData(InstructionAllocateToYield, YieldAmountInstructionArgsSize)
	bin.PutUint64(data[offset:], args.Amount, &offset)

	metas := yieldAccounts(accounts, true)
	metas[0].IsWritable = true
	metas = append(metas, solana.AccountMeta{
		PublicKey:  SYSTEM_PROGRAM_ID,
		IsWritable: false,
		IsSigner:   false,
	})

	return solana.Instruction{
		Program:  PROGRAM_ADDRESS,
		Data:     data,
		Accounts: metas,
	}
}

func NewHarvestYieldInstruction(accounts *YieldInstructionAccounts) solana.Instruction {
	data, _ := newInstructionData(InstructionHarvestYield, 0)

	return solana.Instruction{
		Program:  PROGRAM_ADDRESS,
		Data:     data,
		Accounts: yieldAccounts(accounts, false),
	}
}

// NewReleaseFromYieldInstruction moves principal back into the vault's
// liquid balance.
func NewReleaseFromYieldInstruction(
	accounts *YieldInstructionAccounts,
	args *YieldAmountInstructionArgs,
) solana.Instruction {
	data, offset := newInstructionData(InstructionReleaseFromYield, YieldAmountInstructionArgsSize)
	bin.PutUint64(data[offset:], args.Amount, &offset)

	return solana.Instruction{
		Program:  PROGRAM_ADDRESS,
		Data:     data,
		Accounts: yieldAccounts(accounts, true),
	}
}

// ParseYieldAmountInstructionArgs decodes allocate_to_yield and
// release_from_yield arguments.
func ParseYieldAmountInstructionArgs(data []byte) (Instruction, *YieldAmountInstructionArgs, error) {
	ix, err := GetInstruction(data)
	if err != nil {
		return InstructionUnknown, nil, err
	}
	if ix != InstructionAllocateToYield && ix != InstructionReleaseFromYield {
		return InstructionUnknown, nil, ErrInvalidInstructionData
	}
	if len(data) != bin.DiscriminatorSize+YieldAmountInstructionArgsSize {
		return InstructionUnknown, nil, ErrInvalidInstructionData
	}

	var args YieldAmountInstructionArgs
	offset := bin.DiscriminatorSize
	bin.GetUint64(data[offset:], &args.Amount, &offset)
	return ix, &args, nil
}

func yieldAccounts(accounts *YieldInstructionAccounts, isVaultWritable bool) []solana.AccountMeta {
	return []solana.AccountMeta{
		{
			PublicKey:  accounts.Authority,
			IsWritable: false,
			IsSigner:   true,
		},
		{
			PublicKey:  accounts.MasterVault,
			IsWritable: isVaultWritable,
			IsSigner:   false,
		},
		{
			PublicKey:  accounts.YieldPosition,
			IsWritable: true,
			IsSigner:   false,
		},
	}
}

package magicblock

import (
	"bytes"
	"crypto/ed25519"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	bin "github.com/bagel-payroll/bagel-server/pkg/solana/binary"
)

type Instruction uint8

const (
	InstructionUnknown Instruction = iota
	InstructionDelegate
	InstructionCommit
)

var (
	delegateDiscriminator = bin.InstructionDiscriminator("delegate")
	commitDiscriminator   = bin.InstructionDiscriminator("commit")
)

func GetInstruction(data []byte) (Instruction, error) {
	if len(data) < bin.DiscriminatorSize {
		return InstructionUnknown, ErrInvalidInstructionData
	}

	switch prefix := data[:bin.DiscriminatorSize]; {
	case bytes.Equal(prefix, delegateDiscriminator):
		return InstructionDelegate, nil
	case bytes.Equal(prefix, commitDiscriminator):
		return InstructionCommit, nil
	}
	return InstructionUnknown, ErrInvalidInstructionData
}

const (
	DelegateInstructionArgsSize = (4 + // commit_frequency
		32) // validator
)

type DelegateInstructionArgs struct {
	CommitFrequency uint32
	Validator       ed25519.PublicKey
}

type DelegateInstructionAccounts struct {
	Payer            ed25519.PublicKey
	DelegatedAccount ed25519.PublicKey
	OwnerProgram     ed25519.PublicKey
	DelegationRecord ed25519.PublicKey
}

// NewDelegateInstruction hands control of an account to a TEE validator. The
// delegated account must already be owned by the delegation program and must
// sign, which for a PDA means the owner program invokes this with its seeds.
func NewDelegateInstruction(
	accounts *DelegateInstructionAccounts,
	args *DelegateInstructionArgs,
) solana.Instruction {
	var offset int

	data := make([]byte, bin.DiscriminatorSize+DelegateInstructionArgsSize)
	bin.PutDiscriminator(data[offset:], delegateDiscriminator, &offset)
	bin.PutUint32(data[offset:], args.CommitFrequency, &offset)
	bin.PutKey32(data[offset:], args.Validator, &offset)

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
				PublicKey:  accounts.DelegatedAccount,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.OwnerProgram,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.DelegationRecord,
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

func ParseDelegateInstructionArgs(data []byte) (*DelegateInstructionArgs, error) {
	ix, err := GetInstruction(data)
	if err != nil {
		return nil, err
	}
	if ix != InstructionDelegate || len(data) != bin.DiscriminatorSize+DelegateInstructionArgsSize {
		return nil, ErrInvalidInstructionData
	}

	var args DelegateInstructionArgs
	offset := bin.DiscriminatorSize
	bin.GetUint32(data[offset:], &args.CommitFrequency, &offset)
	bin.GetKey32(data[offset:], &args.Validator, &offset)
	return &args, nil
}

type CommitInstructionArgs struct {
	NewState   []byte
	Undelegate bool
}

type CommitInstructionAccounts struct {
	Validator        ed25519.PublicKey
	DelegatedAccount ed25519.PublicKey
	DelegationRecord ed25519.PublicKey
	OwnerProgram     ed25519.PublicKey
}

// NewCommitInstruction writes state computed inside the TEE back to the base
// layer. When Undelegate is set, ownership returns to the owner program and
// the delegation record is closed.
func NewCommitInstruction(
	accounts *CommitInstructionAccounts,
	args *CommitInstructionArgs,
) solana.Instruction {
	var offset int

	data := make([]byte, bin.DiscriminatorSize+bin.VecSize(len(args.NewState))+1)
	bin.PutDiscriminator(data[offset:], commitDiscriminator, &offset)
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
				PublicKey:  accounts.DelegatedAccount,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.DelegationRecord,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.OwnerProgram,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}

func ParseCommitInstructionArgs(data []byte) (*CommitInstructionArgs, error) {
	ix, err := GetInstruction(data)
	if err != nil {
		return nil, err
	}
	if ix != InstructionCommit {
		return nil, ErrInvalidInstructionData
	}

	offset := bin.DiscriminatorSize
	var args CommitInstructionArgs
	if err := bin.GetVec(data[offset:], &args.NewState, &offset); err != nil {
		return nil, ErrInvalidInstructionData
	}
	if len(data) != offset+1 {
		return nil, ErrInvalidInstructionData
	}
	bin.GetBool(data[offset:], &args.Undelegate, &offset)
	return &args, nil
}

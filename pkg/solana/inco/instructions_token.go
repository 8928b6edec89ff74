package inco

import (
	"bytes"
	"crypto/ed25519"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	bin "github.com/bagel-payroll/bagel-server/pkg/solana/binary"
)

type TokenInstruction uint8

const (
	TokenInstructionUnknown TokenInstruction = iota
	TokenInstructionInitializeMint
	TokenInstructionInitializeAccount
	TokenInstructionMintTo
	TokenInstructionTransfer
)

var (
	initializeMintDiscriminator    = bin.InstructionDiscriminator("initialize_mint")
	initializeAccountDiscriminator = bin.InstructionDiscriminator("initialize_account")
	mintToDiscriminator            = bin.InstructionDiscriminator("mint_to")

	// TransferDiscriminator is fixed by the deployed token program
	TransferDiscriminator = []byte{163, 52, 200, 231, 140, 3, 69, 186}
)

func (i TokenInstruction) String() string {
	switch i {
	case TokenInstructionInitializeMint:
		return "initialize_mint"
	case TokenInstructionInitializeAccount:
		return "initialize_account"
	case TokenInstructionMintTo:
		return "mint_to"
	case TokenInstructionTransfer:
		return "transfer"
	}
	return "unknown"
}

func GetTokenInstruction(data []byte) (TokenInstruction, error) {
	if len(data) < bin.DiscriminatorSize {
		return TokenInstructionUnknown, ErrInvalidInstructionData
	}

	prefix := data[:bin.DiscriminatorSize]
	switch {
	case bytes.Equal(prefix, initializeMintDiscriminator):
		return TokenInstructionInitializeMint, nil
	case bytes.Equal(prefix, initializeAccountDiscriminator):
		return TokenInstructionInitializeAccount, nil
	case bytes.Equal(prefix, mintToDiscriminator):
		return TokenInstructionMintTo, nil
	case bytes.Equal(prefix, TransferDiscriminator):
		return TokenInstructionTransfer, nil
	}
	return TokenInstructionUnknown, ErrInvalidInstructionData
}

type InitializeMintInstructionArgs struct {
	Decimals      uint8
	MintAuthority ed25519.PublicKey
}

type InitializeMintInstructionAccounts struct {
	Mint  ed25519.PublicKey
	Payer ed25519.PublicKey
}

// NewInitializeMintInstruction initializes a mint. The mint account must already
// be allocated with MintAccountSize bytes and owned by the token program.
func NewInitializeMintInstruction(
	accounts *InitializeMintInstructionAccounts,
	args *InitializeMintInstructionArgs,
) solana.Instruction {
	var offset int

	data := make([]byte, bin.DiscriminatorSize+1+32)
	bin.PutDiscriminator(data[offset:], initializeMintDiscriminator, &offset)
	bin.PutUint8(data[offset:], args.Decimals, &offset)
	bin.PutKey32(data[offset:], args.MintAuthority, &offset)

	return solana.Instruction{
		Program: TOKEN_PROGRAM_ID,
		Data:    data,
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Mint,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Payer,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  LIGHTNING_PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}

func ParseInitializeMintInstructionArgs(data []byte) (*InitializeMintInstructionArgs, error) {
	if err := checkTokenInstruction(data, TokenInstructionInitializeMint, bin.DiscriminatorSize+1+32); err != nil {
		return nil, err
	}

	var args InitializeMintInstructionArgs
	offset := bin.DiscriminatorSize
	bin.GetUint8(data[offset:], &args.Decimals, &offset)
	bin.GetKey32(data[offset:], &args.MintAuthority, &offset)
	return &args, nil
}

type InitializeAccountInstructionAccounts struct {
	Account ed25519.PublicKey
	Mint    ed25519.PublicKey
	Owner   ed25519.PublicKey
	Payer   ed25519.PublicKey
}

// NewInitializeAccountInstruction initializes a token account. The account must
// already be allocated with TokenAccountSize bytes and owned by the token
// program.
func NewInitializeAccountInstruction(accounts *InitializeAccountInstructionAccounts) solana.Instruction {
	data := make([]byte, bin.DiscriminatorSize)
	copy(data, initializeAccountDiscriminator)

	return solana.Instruction{
		Program: TOKEN_PROGRAM_ID,
		Data:    data,
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Account,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Mint,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Owner,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Payer,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  LIGHTNING_PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}

// ConfidentialAmountInstructionArgs carries an encrypted amount, as used by both
// mint_to and transfer.
type ConfidentialAmountInstructionArgs struct {
	Ciphertext Ciphertext
	InputType  uint8
}

type MintToInstructionAccounts struct {
	Mint      ed25519.PublicKey
	Account   ed25519.PublicKey
	Authority ed25519.PublicKey
}

func NewMintToInstruction(
	accounts *MintToInstructionAccounts,
	args *ConfidentialAmountInstructionArgs,
) solana.Instruction {
	return solana.Instruction{
		Program: TOKEN_PROGRAM_ID,
		Data:    encodeConfidentialAmount(mintToDiscriminator, args),
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Mint,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Account,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Authority,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  LIGHTNING_PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}

type TransferInstructionAccounts struct {
	Source      ed25519.PublicKey
	Destination ed25519.PublicKey
	Authority   ed25519.PublicKey
}

// NewTransferInstruction moves an encrypted amount between token accounts owned
// by the same mint.
func NewTransferInstruction(
	accounts *TransferInstructionAccounts,
	args *ConfidentialAmountInstructionArgs,
) solana.Instruction {
	return solana.Instruction{
		Program: TOKEN_PROGRAM_ID,
		Data:    encodeConfidentialAmount(TransferDiscriminator, args),
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Source,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Destination,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Authority,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  LIGHTNING_PROGRAM_ID,
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

// ParseConfidentialAmountInstructionArgs decodes mint_to and transfer arguments.
func ParseConfidentialAmountInstructionArgs(data []byte) (TokenInstruction, *ConfidentialAmountInstructionArgs, error) {
	ix, err := GetTokenInstruction(data)
	if err != nil {
		return ix, nil, err
	}
	if ix != TokenInstructionMintTo && ix != TokenInstructionTransfer {
		return ix, nil, ErrInvalidInstructionData
	}

	offset := bin.DiscriminatorSize
	var ciphertext []byte
	if err := bin.GetVec(data[offset:], &ciphertext, &offset); err != nil {
		return ix, nil, ErrInvalidInstructionData
	}
	if len(data) != offset+1 {
		return ix, nil, ErrInvalidInstructionData
	}

	args := &ConfidentialAmountInstructionArgs{Ciphertext: ciphertext}
	bin.GetUint8(data[offset:], &args.InputType, &offset)
	return ix, args, nil
}

func encodeConfidentialAmount(discriminator []byte, args *ConfidentialAmountInstructionArgs) []byte {
	var offset int

	data := make([]byte, bin.DiscriminatorSize+bin.VecSize(len(args.Ciphertext))+1)
	bin.PutDiscriminator(data[offset:], discriminator, &offset)
	bin.PutVec(data[offset:], args.Ciphertext, &offset)
	bin.PutUint8(data[offset:], args.InputType, &offset)
	return data
}

func checkTokenInstruction(data []byte, expected TokenInstruction, size int) error {
	actual, err := GetTokenInstruction(data)
	if err != nil {
		return err
	}
	if actual != expected || len(data) != size {
		return ErrInvalidInstructionData
	}
	return nil
}

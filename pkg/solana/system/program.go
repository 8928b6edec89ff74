package system

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
)

var ProgramKey [32]byte

type Command uint32

const (
	CommandCreateAccount Command = iota
	CommandAssign
	CommandTransfer
)

const (
	createAccountDataSize = 4 + 2*8 + 32
	assignDataSize        = 4 + 32
	transferDataSize      = 4 + 8
)

// Custom error codes returned by the system program.
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/system_instruction.rs#L16
const (
	ErrorAccountAlreadyInUse = iota
	ErrorResultWithNegativeLamports
	ErrorInvalidProgramId
	ErrorInvalidAccountDataLength
)

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L58-L72
func CreateAccount(funder, address, owner ed25519.PublicKey, lamports, size uint64) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Funding account
	//   1. [WRITE, SIGNER] New account
	data := make([]byte, createAccountDataSize)
	binary.LittleEndian.PutUint32(data, uint32(CommandCreateAccount))
	binary.LittleEndian.PutUint64(data[4:], lamports)
	binary.LittleEndian.PutUint64(data[4+8:], size)
	copy(data[4+2*8:], owner)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(funder, true),
		solana.NewAccountMeta(address, true),
	)
}

// Assign changes the owner of an account that is still owned by the system
// program.
func Assign(address, owner ed25519.PublicKey) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Assigned account public key
	data := make([]byte, assignDataSize)
	binary.LittleEndian.PutUint32(data, uint32(CommandAssign))
	copy(data[4:], owner)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(address, true),
	)
}

func Transfer(from, to ed25519.PublicKey, lamports uint64) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Funding account
	//   1. [WRITE] Recipient account
	data := make([]byte, transferDataSize)
	binary.LittleEndian.PutUint32(data, uint32(CommandTransfer))
	binary.LittleEndian.PutUint64(data[4:], lamports)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(from, true),
		solana.NewAccountMeta(to, false),
	)
}

type CreateAccountArgs struct {
	Lamports uint64
	Size     uint64
	Owner    ed25519.PublicKey
}

type AssignArgs struct {
	Owner ed25519.PublicKey
}

type TransferArgs struct {
	Lamports uint64
}

// ParseCommand reads the command discriminator of a system instruction.
func ParseCommand(data []byte) (Command, error) {
	if len(data) < 4 {
		return 0, solana.ErrIncorrectInstruction
	}
	return Command(binary.LittleEndian.Uint32(data)), nil
}

func ParseCreateAccount(data []byte) (*CreateAccountArgs, error) {
	if err := checkCommand(data, CommandCreateAccount, createAccountDataSize); err != nil {
		return nil, err
	}

	args := &CreateAccountArgs{
		Lamports: binary.LittleEndian.Uint64(data[4:]),
		Size:     binary.LittleEndian.Uint64(data[4+8:]),
		Owner:    make(ed25519.PublicKey, ed25519.PublicKeySize),
	}
	copy(args.Owner, data[4+2*8:])
	return args, nil
}

func ParseAssign(data []byte) (*AssignArgs, error) {
	if err := checkCommand(data, CommandAssign, assignDataSize); err != nil {
		return nil, err
	}

	args := &AssignArgs{
		Owner: make(ed25519.PublicKey, ed25519.PublicKeySize),
	}
	copy(args.Owner, data[4:])
	return args, nil
}

func ParseTransfer(data []byte) (*TransferArgs, error) {
	if err := checkCommand(data, CommandTransfer, transferDataSize); err != nil {
		return nil, err
	}

	return &TransferArgs{
		Lamports: binary.LittleEndian.Uint64(data[4:]),
	}, nil
}

type DecompiledCreateAccount struct {
	Funder  ed25519.PublicKey
	Address ed25519.PublicKey

	CreateAccountArgs
}

func DecompileCreateAccount(m solana.Message, index int) (*DecompiledCreateAccount, error) {
	if index >= len(m.Instructions) {
		return nil, errors.Errorf("instruction doesn't exist at %d", index)
	}

	i := m.Instructions[index]
	if !bytes.Equal(m.Accounts[i.ProgramIndex], ProgramKey[:]) {
		return nil, solana.ErrIncorrectProgram
	}
	if len(i.Accounts) != 2 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}

	args, err := ParseCreateAccount(i.Data)
	if err != nil {
		return nil, err
	}

	return &DecompiledCreateAccount{
		Funder:            m.Accounts[i.Accounts[0]],
		Address:           m.Accounts[i.Accounts[1]],
		CreateAccountArgs: *args,
	}, nil
}

func checkCommand(data []byte, expected Command, size int) error {
	cmd, err := ParseCommand(data)
	if err != nil {
		return err
	}
	if cmd != expected {
		return solana.ErrIncorrectInstruction
	}
	if len(data) != size {
		return errors.Errorf("invalid instruction data size: %d", len(data))
	}
	return nil
}

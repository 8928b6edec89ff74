package inco

import (
	"bytes"
	"crypto/ed25519"
	"math/big"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	bin "github.com/bagel-payroll/bagel-server/pkg/solana/binary"
)

type LightningInstruction uint8

const (
	LightningInstructionUnknown LightningInstruction = iota
	LightningInstructionNewEuint128
	LightningInstructionAsEuint128
	LightningInstructionEAdd
	LightningInstructionESub
	LightningInstructionEMulScalar
)

var (
	newEuint128Discriminator = bin.InstructionDiscriminator("new_euint128")
	asEuint128Discriminator  = bin.InstructionDiscriminator("as_euint128")
	eAddDiscriminator        = bin.InstructionDiscriminator("e_add")
	eSubDiscriminator        = bin.InstructionDiscriminator("e_sub")
	eMulScalarDiscriminator  = bin.InstructionDiscriminator("e_mul_scalar")
)

func (i LightningInstruction) String() string {
	switch i {
	case LightningInstructionNewEuint128:
		return "new_euint128"
	case LightningInstructionAsEuint128:
		return "as_euint128"
	case LightningInstructionEAdd:
		return "e_add"
	case LightningInstructionESub:
		return "e_sub"
	case LightningInstructionEMulScalar:
		return "e_mul_scalar"
	}
	return "unknown"
}

// GetLightningInstruction identifies a co-processor instruction by its
// discriminator.
func GetLightningInstruction(data []byte) (LightningInstruction, error) {
	if len(data) < bin.DiscriminatorSize {
		return LightningInstructionUnknown, ErrInvalidInstructionData
	}

	prefix := data[:bin.DiscriminatorSize]
	switch {
	case bytes.Equal(prefix, newEuint128Discriminator):
		return LightningInstructionNewEuint128, nil
	case bytes.Equal(prefix, asEuint128Discriminator):
		return LightningInstructionAsEuint128, nil
	case bytes.Equal(prefix, eAddDiscriminator):
		return LightningInstructionEAdd, nil
	case bytes.Equal(prefix, eSubDiscriminator):
		return LightningInstructionESub, nil
	case bytes.Equal(prefix, eMulScalarDiscriminator):
		return LightningInstructionEMulScalar, nil
	}
	return LightningInstructionUnknown, ErrInvalidInstructionData
}

func lightningAccounts(signer ed25519.PublicKey) []solana.AccountMeta {
	return []solana.AccountMeta{
		{
			PublicKey:  signer,
			IsWritable: true,
			IsSigner:   true,
		},
	}
}

type NewEuint128InstructionArgs struct {
	Ciphertext Ciphertext
	InputType  uint8
}

// NewNewEuint128Instruction registers a client ciphertext with the
// co-processor. The new handle is returned as return data.
func NewNewEuint128Instruction(signer ed25519.PublicKey, args *NewEuint128InstructionArgs) solana.Instruction {
	var offset int

	data := make([]byte, bin.DiscriminatorSize+bin.VecSize(len(args.Ciphertext))+1)
	bin.PutDiscriminator(data[offset:], newEuint128Discriminator, &offset)
	bin.PutVec(data[offset:], args.Ciphertext, &offset)
	bin.PutUint8(data[offset:], args.InputType, &offset)

	return solana.Instruction{
		Program:  LIGHTNING_PROGRAM_ID,
		Data:     data,
		Accounts: lightningAccounts(signer),
	}
}

func ParseNewEuint128InstructionArgs(data []byte) (*NewEuint128InstructionArgs, error) {
	if err := checkLightningInstruction(data, LightningInstructionNewEuint128); err != nil {
		return nil, err
	}

	offset := bin.DiscriminatorSize
	var ciphertext []byte
	if err := bin.GetVec(data[offset:], &ciphertext, &offset); err != nil {
		return nil, ErrInvalidInstructionData
	}
	if len(data) != offset+1 {
		return nil, ErrInvalidInstructionData
	}

	var args NewEuint128InstructionArgs
	args.Ciphertext = ciphertext
	bin.GetUint8(data[offset:], &args.InputType, &offset)
	return &args, nil
}

type AsEuint128InstructionArgs struct {
	Value *big.Int
}

// NewAsEuint128Instruction registers a trivially encrypted plaintext constant.
func NewAsEuint128Instruction(signer ed25519.PublicKey, args *AsEuint128InstructionArgs) (solana.Instruction, error) {
	data := make([]byte, bin.DiscriminatorSize+plaintextSize)

	var offset int
	bin.PutDiscriminator(data[offset:], asEuint128Discriminator, &offset)
	if err := PutUint128(data[offset:], args.Value); err != nil {
		return solana.Instruction{}, err
	}

	return solana.Instruction{
		Program:  LIGHTNING_PROGRAM_ID,
		Data:     data,
		Accounts: lightningAccounts(signer),
	}, nil
}

func ParseAsEuint128InstructionArgs(data []byte) (*AsEuint128InstructionArgs, error) {
	if err := checkLightningInstruction(data, LightningInstructionAsEuint128); err != nil {
		return nil, err
	}
	if len(data) != bin.DiscriminatorSize+plaintextSize {
		return nil, ErrInvalidInstructionData
	}

	return &AsEuint128InstructionArgs{
		Value: GetUint128(data[bin.DiscriminatorSize:]),
	}, nil
}

type BinaryOpInstructionArgs struct {
	Lhs Handle
	Rhs Handle

	// ScalarByte is 1 when Rhs holds a plaintext scalar rather than a handle.
	ScalarByte uint8
}

// NewEAddInstruction homomorphically adds two handles.
func NewEAddInstruction(signer ed25519.PublicKey, args *BinaryOpInstructionArgs) solana.Instruction {
	return newBinaryOpInstruction(eAddDiscriminator, signer, args)
}

// NewESubInstruction homomorphically subtracts Rhs from Lhs. The co-processor
// fails the instruction on underflow.
func NewESubInstruction(signer ed25519.PublicKey, args *BinaryOpInstructionArgs) solana.Instruction {
	return newBinaryOpInstruction(eSubDiscriminator, signer, args)
}

func newBinaryOpInstruction(discriminator []byte, signer ed25519.PublicKey, args *BinaryOpInstructionArgs) solana.Instruction {
	var offset int

	data := make([]byte, bin.DiscriminatorSize+2*HandleSize+1)
	bin.PutDiscriminator(data[offset:], discriminator, &offset)
	bin.PutFixed(data[offset:], args.Lhs[:], HandleSize, &offset)
	bin.PutFixed(data[offset:], args.Rhs[:], HandleSize, &offset)
	bin.PutUint8(data[offset:], args.ScalarByte, &offset)

	return solana.Instruction{
		Program:  LIGHTNING_PROGRAM_ID,
		Data:     data,
		Accounts: lightningAccounts(signer),
	}
}

func ParseBinaryOpInstructionArgs(data []byte) (LightningInstruction, *BinaryOpInstructionArgs, error) {
	ix, err := GetLightningInstruction(data)
	if err != nil {
		return ix, nil, err
	}
	if ix != LightningInstructionEAdd && ix != LightningInstructionESub {
		return ix, nil, ErrInvalidInstructionData
	}
	if len(data) != bin.DiscriminatorSize+2*HandleSize+1 {
		return ix, nil, ErrInvalidInstructionData
	}

	var args BinaryOpInstructionArgs
	offset := bin.DiscriminatorSize
	bin.GetFixed(data[offset:], args.Lhs[:], &offset)
	bin.GetFixed(data[offset:], args.Rhs[:], &offset)
	bin.GetUint8(data[offset:], &args.ScalarByte, &offset)
	return ix, &args, nil
}

type EMulScalarInstructionArgs struct {
	Lhs    Handle
	Scalar uint64
}

// NewEMulScalarInstruction multiplies an encrypted value by a plaintext scalar.
func NewEMulScalarInstruction(signer ed25519.PublicKey, args *EMulScalarInstructionArgs) solana.Instruction {
	var offset int

	data := make([]byte, bin.DiscriminatorSize+HandleSize+8)
	bin.PutDiscriminator(data[offset:], eMulScalarDiscriminator, &offset)
	bin.PutFixed(data[offset:], args.Lhs[:], HandleSize, &offset)
	bin.PutUint64(data[offset:], args.Scalar, &offset)

	return solana.Instruction{
		Program:  LIGHTNING_PROGRAM_ID,
		Data:     data,
		Accounts: lightningAccounts(signer),
	}
}

func ParseEMulScalarInstructionArgs(data []byte) (*EMulScalarInstructionArgs, error) {
	if err := checkLightningInstruction(data, LightningInstructionEMulScalar); err != nil {
		return nil, err
	}
	if len(data) != bin.DiscriminatorSize+HandleSize+8 {
		return nil, ErrInvalidInstructionData
	}

	var args EMulScalarInstructionArgs
	offset := bin.DiscriminatorSize
	bin.GetFixed(data[offset:], args.Lhs[:], &offset)
	bin.GetUint64(data[offset:], &args.Scalar, &offset)
	return &args, nil
}

// HandleFromReturnData decodes the handle returned by a co-processor
// instruction.
func HandleFromReturnData(data []byte) (Handle, error) {
	var h Handle
	if len(data) != HandleSize {
		return h, ErrInvalidInstructionData
	}
	copy(h[:], data)
	return h, nil
}

func checkLightningInstruction(data []byte, expected LightningInstruction) error {
	actual, err := GetLightningInstruction(data)
	if err != nil {
		return err
	}
	if actual != expected {
		return ErrInvalidInstructionData
	}
	return nil
}

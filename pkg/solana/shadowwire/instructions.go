package shadowwire

import (
	"bytes"
	"crypto/ed25519"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	bin "github.com/bagel-payroll/bagel-server/pkg/solana/binary"
	"github.com/bagel-payroll/bagel-server/pkg/solana/inco"
)

var TransferDiscriminator = bin.InstructionDiscriminator("private_transfer")

type TransferInstructionArgs struct {
	Proof      *Proof
	Ciphertext inco.Ciphertext
	InputType  uint8
}

type TransferInstructionAccounts struct {
	Source      ed25519.PublicKey
	Destination ed25519.PublicKey
	Authority   ed25519.PublicKey
}

// NewTransferInstruction routes a confidential token transfer through the
// zero knowledge layer. The program verifies the proof and forwards the
// ciphertext to the confidential token program with the same authority.
func NewTransferInstruction(
	accounts *TransferInstructionAccounts,
	args *TransferInstructionArgs,
) solana.Instruction {
	var offset int

	data := make([]byte, bin.DiscriminatorSize+ProofSize+bin.VecSize(len(args.Ciphertext))+1)
	bin.PutDiscriminator(data[offset:], TransferDiscriminator, &offset)
	bin.PutFixed(data[offset:], args.Proof.Commitment[:], CommitmentSize, &offset)
	bin.PutFixed(data[offset:], args.Proof.RangeProof[:], RangeProofSize, &offset)
	bin.PutVec(data[offset:], args.Ciphertext, &offset)
	bin.PutUint8(data[offset:], args.InputType, &offset)

	return solana.Instruction{
		Program: PROGRAM_ADDRESS,
		Data:    data,
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
				PublicKey:  inco.TOKEN_PROGRAM_ID,
				IsWritable: false,
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

func ParseTransferInstructionArgs(data []byte) (*TransferInstructionArgs, error) {
	if len(data) < bin.DiscriminatorSize+ProofSize || !bytes.Equal(data[:bin.DiscriminatorSize], TransferDiscriminator) {
		return nil, ErrInvalidInstructionData
	}

	offset := bin.DiscriminatorSize
	args := &TransferInstructionArgs{
		Proof: &Proof{},
	}
	bin.GetFixed(data[offset:], args.Proof.Commitment[:], &offset)
	bin.GetFixed(data[offset:], args.Proof.RangeProof[:], &offset)

	var ciphertext []byte
	if err := bin.GetVec(data[offset:], &ciphertext, &offset); err != nil {
		return nil, ErrInvalidInstructionData
	}
	args.Ciphertext = ciphertext

	if len(data) != offset+1 {
		return nil, ErrInvalidInstructionData
	}
	bin.GetUint8(data[offset:], &args.InputType, &offset)

	return args, nil
}

package shadowwire

import (
	"crypto/ed25519"

	"github.com/sirupsen/logrus"

	"github.com/bagel-payroll/bagel-server/pkg/solana/inco"
	"github.com/bagel-payroll/bagel-server/pkg/solana/shadowwire"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
)

// Program is a devnet zero knowledge transfer layer. It checks the transfer
// proof and forwards the confidential transfer to the token program.
type Program struct {
	log *logrus.Entry
}

func New() *Program {
	return &Program{
		log: logrus.StandardLogger().WithField("type", "svm/programs/shadowwire"),
	}
}

func (p *Program) ProgramID() ed25519.PublicKey {
	return shadowwire.PROGRAM_ID
}

func (p *Program) Process(ctx *svm.InvokeContext) error {
	args, err := shadowwire.ParseTransferInstructionArgs(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	source, err := ctx.Account(0)
	if err != nil {
		return err
	}
	destination, err := ctx.Account(1)
	if err != nil {
		return err
	}
	authority, err := ctx.Account(2)
	if err != nil {
		return err
	}

	if !authority.IsSigner {
		return svm.ErrMissingRequiredSignature
	}

	if err := shadowwire.VerifyMockProof(args.Proof, args.Ciphertext); err != nil {
		ctx.Logf("Error: transfer proof rejected")
		return svm.ErrInvalidArgument
	}
	ctx.Logf("Transfer proof verified")

	return ctx.Invoke(inco.NewTransferInstruction(
		&inco.TransferInstructionAccounts{
			Source:      source.Key,
			Destination: destination.Key,
			Authority:   authority.Key,
		},
		&inco.ConfidentialAmountInstructionArgs{
			Ciphertext: args.Ciphertext,
			InputType:  args.InputType,
		},
	))
}

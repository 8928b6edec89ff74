package svm

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	"github.com/bagel-payroll/bagel-server/pkg/solana/system"
)

// MaxPermittedDataLength is the largest account the system program allocates.
const MaxPermittedDataLength = 10 * 1024 * 1024

type systemProgram struct{}

func newSystemProgram() Program {
	return &systemProgram{}
}

func (p *systemProgram) ProgramID() ed25519.PublicKey {
	return system.SystemAccount
}

func (p *systemProgram) Process(ctx *InvokeContext) error {
	command, err := system.ParseCommand(ctx.Data())
	if err != nil {
		return ErrInvalidInstructionData
	}

	switch command {
	case system.CommandCreateAccount:
		args, err := system.ParseCreateAccount(ctx.Data())
		if err != nil {
			return ErrInvalidInstructionData
		}
		return p.createAccount(ctx, args)
	case system.CommandAssign:
		args, err := system.ParseAssign(ctx.Data())
		if err != nil {
			return ErrInvalidInstructionData
		}
		return p.assign(ctx, args)
	case system.CommandTransfer:
		args, err := system.ParseTransfer(ctx.Data())
		if err != nil {
			return ErrInvalidInstructionData
		}
		return p.transfer(ctx, args)
	default:
		return ErrInvalidInstructionData
	}
}

func (p *systemProgram) createAccount(ctx *InvokeContext, args *system.CreateAccountArgs) error {
	from, err := ctx.Account(0)
	if err != nil {
		return err
	}
	to, err := ctx.Account(1)
	if err != nil {
		return err
	}

	if !to.IsSigner {
		ctx.Logf("Create Account: account %s must sign", base58.Encode(to.Key))
		return ErrMissingRequiredSignature
	}

	if to.Lamports > 0 || len(to.Data) > 0 || !to.IsOwnedBy(system.SystemAccount) {
		ctx.Logf("Create Account: account %s already in use", base58.Encode(to.Key))
		return solana.CustomError(system.ErrorAccountAlreadyInUse)
	}

	if args.Size > MaxPermittedDataLength {
		return solana.CustomError(system.ErrorInvalidAccountDataLength)
	}

	to.Data = make([]byte, args.Size)
	to.Owner = args.Owner

	return p.move(ctx, from, to, args.Lamports)
}

func (p *systemProgram) assign(ctx *InvokeContext, args *system.AssignArgs) error {
	target, err := ctx.Account(0)
	if err != nil {
		return err
	}

	if target.IsOwnedBy(args.Owner) {
		return nil
	}

	if !target.IsSigner {
		ctx.Logf("Assign: account %s must sign", base58.Encode(target.Key))
		return ErrMissingRequiredSignature
	}

	target.Owner = args.Owner
	return nil
}

func (p *systemProgram) transfer(ctx *InvokeContext, args *system.TransferArgs) error {
	from, err := ctx.Account(0)
	if err != nil {
		return err
	}
	to, err := ctx.Account(1)
	if err != nil {
		return err
	}

	return p.move(ctx, from, to, args.Lamports)
}

func (p *systemProgram) move(ctx *InvokeContext, from, to *AccountInfo, lamports uint64) error {
	if !from.IsSigner {
		ctx.Logf("Transfer: `from` account %s must sign", base58.Encode(from.Key))
		return ErrMissingRequiredSignature
	}

	if len(from.Data) > 0 {
		ctx.Logf("Transfer: `from` must not carry data")
		return ErrInvalidArgument
	}

	if lamports > from.Lamports {
		ctx.Logf("Transfer: insufficient lamports %d, need %d", from.Lamports, lamports)
		return solana.CustomError(system.ErrorResultWithNegativeLamports)
	}

	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}

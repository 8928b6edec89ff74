package magicblock

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/bagel-payroll/bagel-server/pkg/solana/magicblock"
	"github.com/bagel-payroll/bagel-server/pkg/solana/system"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
)

// Program is a devnet delegation program. It keeps one record per delegated
// account and lets the recorded validator commit state back to the base
// layer.
type Program struct {
	log *logrus.Entry
}

func New() *Program {
	return &Program{
		log: logrus.StandardLogger().WithField("type", "svm/programs/magicblock"),
	}
}

func (p *Program) ProgramID() ed25519.PublicKey {
	return magicblock.PROGRAM_ID
}

func (p *Program) Process(ctx *svm.InvokeContext) error {
	ix, err := magicblock.GetInstruction(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	switch ix {
	case magicblock.InstructionDelegate:
		args, err := magicblock.ParseDelegateInstructionArgs(ctx.Data())
		if err != nil {
			return svm.ErrInvalidInstructionData
		}
		return p.delegate(ctx, args)
	case magicblock.InstructionCommit:
		args, err := magicblock.ParseCommitInstructionArgs(ctx.Data())
		if err != nil {
			return svm.ErrInvalidInstructionData
		}
		return p.commit(ctx, args)
	default:
		return svm.ErrInvalidInstructionData
	}
}

func (p *Program) delegate(ctx *svm.InvokeContext, args *magicblock.DelegateInstructionArgs) error {
	payer, err := ctx.Account(0)
	if err != nil {
		return err
	}
	delegated, err := ctx.Account(1)
	if err != nil {
		return err
	}
	ownerProgram, err := ctx.Account(2)
	if err != nil {
		return err
	}
	recordInfo, err := ctx.Account(3)
	if err != nil {
		return err
	}

	if !delegated.IsSigner {
		ctx.Logf("Delegate: account %s must sign", base58.Encode(delegated.Key))
		return svm.ErrMissingRequiredSignature
	}
	if !delegated.IsOwnedBy(magicblock.PROGRAM_ID) {
		ctx.Logf("Delegate: account %s must be assigned to the delegation program first", base58.Encode(delegated.Key))
		return svm.ErrIncorrectProgramID
	}
	if !ctx.IsProgram(ownerProgram.Key) {
		return svm.ErrIncorrectProgramID
	}
	if len(args.Validator) != ed25519.PublicKeySize {
		return svm.ErrInvalidArgument
	}

	recordAddress, bump, err := magicblock.GetDelegationRecordAddress(delegated.Key)
	if err != nil {
		return svm.ErrInvalidSeeds
	}
	if !bytes.Equal(recordAddress, recordInfo.Key) {
		ctx.Logf("Delegate: unexpected delegation record %s", base58.Encode(recordInfo.Key))
		return svm.ErrInvalidArgument
	}

	err = ctx.InvokeSigned(
		system.CreateAccount(
			payer.Key,
			recordInfo.Key,
			magicblock.PROGRAM_ID,
			ctx.Rent().MinimumBalance(magicblock.DelegationRecordSize),
			magicblock.DelegationRecordSize,
		),
		[][]byte{magicblock.DelegationRecordPrefix, delegated.Key, {bump}},
	)
	if err != nil {
		return err
	}

	clock := ctx.Clock()
	record := &magicblock.DelegationRecord{
		DelegatedAccount: delegated.Key,
		OwnerProgram:     ownerProgram.Key,
		Validator:        args.Validator,
		CommitFrequency:  args.CommitFrequency,
		DelegationSlot:   clock.Slot,
		DelegatedAt:      clock.UnixTimestamp,
		LastCommitAt:     clock.UnixTimestamp,
	}
	copy(recordInfo.Data, record.Marshal())

	ctx.Logf("Delegated %s to validator %s", base58.Encode(delegated.Key), base58.Encode(args.Validator))
	return nil
}

func (p *Program) commit(ctx *svm.InvokeContext, args *magicblock.CommitInstructionArgs) error {
	validator, err := ctx.Account(0)
	if err != nil {
		return err
	}
	delegated, err := ctx.Account(1)
	if err != nil {
		return err
	}
	recordInfo, err := ctx.Account(2)
	if err != nil {
		return err
	}
	ownerProgram, err := ctx.Account(3)
	if err != nil {
		return err
	}

	if !recordInfo.IsOwnedBy(magicblock.PROGRAM_ID) {
		return svm.ErrIncorrectProgramID
	}

	var record magicblock.DelegationRecord
	if err := record.Unmarshal(recordInfo.Data); err != nil {
		return svm.ErrInvalidAccountData
	}

	if !bytes.Equal(record.DelegatedAccount, delegated.Key) || !bytes.Equal(record.OwnerProgram, ownerProgram.Key) {
		ctx.Logf("Commit: delegation record does not match account %s", base58.Encode(delegated.Key))
		return svm.ErrInvalidArgument
	}
	if !validator.IsSigner {
		return svm.ErrMissingRequiredSignature
	}
	if !bytes.Equal(record.Validator, validator.Key) {
		ctx.Logf("Commit: %s is not the delegated validator", base58.Encode(validator.Key))
		return svm.ErrInvalidArgument
	}
	if !delegated.IsOwnedBy(magicblock.PROGRAM_ID) {
		return svm.ErrIncorrectProgramID
	}
	if len(args.NewState) != len(delegated.Data) {
		ctx.Logf("Commit: state size %d does not match account size %d", len(args.NewState), len(delegated.Data))
		return svm.ErrInvalidArgument
	}

	copy(delegated.Data, args.NewState)

	if !args.Undelegate {
		record.LastCommitAt = ctx.Clock().UnixTimestamp
		copy(recordInfo.Data, record.Marshal())

		ctx.Logf("Committed %s", base58.Encode(delegated.Key))
		return nil
	}

	delegated.Owner = record.OwnerProgram

	validator.Lamports += recordInfo.Lamports
	recordInfo.Lamports = 0
	recordInfo.Data = nil
	recordInfo.Owner = system.SystemAccount

	ctx.Logf("Committed and undelegated %s", base58.Encode(delegated.Key))
	return nil
}

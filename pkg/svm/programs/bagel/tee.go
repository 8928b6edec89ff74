package bagel

import (
	"bytes"

	"github.com/bagel-payroll/bagel-server/pkg/solana/bagel"
	"github.com/bagel-payroll/bagel-server/pkg/solana/magicblock"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
)

// delegateToTee hands an employee entry to a TEE validator. The entry is
// assigned to the delegation program, which then records the delegation with
// the entry's PDA as signer.
func (p *Program) delegateToTee(ctx *svm.InvokeContext) error {
	infos, err := accounts(ctx, 6)
	if err != nil {
		return err
	}
	payer, vaultInfo, businessInfo, employeeInfo, recordInfo := infos[0], infos[1], infos[2], infos[3], infos[5]

	validator := magicblock.DefaultValidator
	if info := optional(infos[4]); info != nil {
		validator = info.Key
	}

	if _, err := p.loadVault(ctx, vaultInfo); err != nil {
		return err
	}
	business, err := p.loadBusiness(ctx, businessInfo)
	if err != nil {
		return err
	}
	if err := checkEmployer(ctx, businessInfo, business, payer); err != nil {
		return err
	}
	employee, err := p.loadEmployee(ctx, businessInfo, employeeInfo)
	if err != nil {
		return err
	}

	employeeInfo.Owner = magicblock.PROGRAM_ID

	seeds := append(
		bagel.GetEmployeeEntrySeeds(businessInfo.Key, employee.EmployeeIndex),
		[]byte{employee.Bump},
	)
	err = ctx.InvokeSigned(
		magicblock.NewDelegateInstruction(
			&magicblock.DelegateInstructionAccounts{
				Payer:            payer.Key,
				DelegatedAccount: employeeInfo.Key,
				OwnerProgram:     bagel.PROGRAM_ID,
				DelegationRecord: recordInfo.Key,
			},
			&magicblock.DelegateInstructionArgs{
				CommitFrequency: magicblock.DefaultCommitFrequency,
				Validator:       validator,
			},
		),
		seeds,
	)
	if err != nil {
		return err
	}

	emit(ctx, &bagel.DelegatedToTee{
		BusinessIndex: business.EntryIndex,
		EmployeeIndex: employee.EmployeeIndex,
		Timestamp:     ctx.Clock().UnixTimestamp,
	})
	return nil
}

// commitFromTee writes validator computed state back to a delegated entry.
// Fields fixed at add_employee can't change.
func (p *Program) commitFromTee(ctx *svm.InvokeContext) error {
	args, err := bagel.ParseCommitFromTeeInstructionArgs(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	infos, err := accounts(ctx, 5)
	if err != nil {
		return err
	}
	validator, vaultInfo, businessInfo, employeeInfo, recordInfo := infos[0], infos[1], infos[2], infos[3], infos[4]

	if _, err := p.loadVault(ctx, vaultInfo); err != nil {
		return err
	}
	business, err := p.loadBusiness(ctx, businessInfo)
	if err != nil {
		return err
	}

	if !isDelegated(employeeInfo) || !recordInfo.IsOwnedBy(magicblock.PROGRAM_ID) {
		ctx.Logf("Error: employee entry is not delegated")
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}

	var record magicblock.DelegationRecord
	if err := record.Unmarshal(recordInfo.Data); err != nil {
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}
	if !bytes.Equal(record.DelegatedAccount, employeeInfo.Key) || !bytes.Equal(record.OwnerProgram, bagel.PROGRAM_ID) {
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}

	state, ok := bagel.GetDelegationState(employeeInfo.Owner, &record).(bagel.Delegated)
	if !ok || !validator.IsSigner || !bytes.Equal(state.Validator, validator.Key) {
		return fail(ctx, bagel.ErrorCodeUnauthorized)
	}

	var current bagel.EmployeeEntry
	if err := current.Unmarshal(employeeInfo.Data); err != nil {
		return svm.ErrInvalidAccountData
	}
	if err := checkEmployeeAddress(ctx, businessInfo, employeeInfo, &current); err != nil {
		return err
	}

	var next bagel.EmployeeEntry
	if len(args.NewState) != len(employeeInfo.Data) || next.Unmarshal(args.NewState) != nil {
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}
	if !next.HasSameIdentity(&current) {
		ctx.Logf("Error: committed state changes the employee identity")
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}

	err = ctx.Invoke(magicblock.NewCommitInstruction(
		&magicblock.CommitInstructionAccounts{
			Validator:        validator.Key,
			DelegatedAccount: employeeInfo.Key,
			DelegationRecord: recordInfo.Key,
			OwnerProgram:     bagel.PROGRAM_ID,
		},
		&magicblock.CommitInstructionArgs{
			NewState:   args.NewState,
			Undelegate: args.Undelegate,
		},
	))
	if err != nil {
		return err
	}

	emit(ctx, &bagel.CommittedFromTee{
		BusinessIndex: business.EntryIndex,
		EmployeeIndex: current.EmployeeIndex,
		Undelegated:   args.Undelegate,
		Timestamp:     ctx.Clock().UnixTimestamp,
	})
	return nil
}

package bagel

import (
	"bytes"

	"github.com/mr-tron/base58"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	"github.com/bagel-payroll/bagel-server/pkg/solana/bagel"
	"github.com/bagel-payroll/bagel-server/pkg/solana/inco"
	"github.com/bagel-payroll/bagel-server/pkg/solana/shadowwire"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
)

func (p *Program) addEmployee(ctx *svm.InvokeContext) error {
	args, err := bagel.ParseAddEmployeeInstructionArgs(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	infos, err := accounts(ctx, 4)
	if err != nil {
		return err
	}
	employer, vaultInfo, businessInfo, employeeInfo := infos[0], infos[1], infos[2], infos[3]

	if len(args.EncryptedEmployeeId) == 0 || len(args.EncryptedSalary) == 0 {
		return fail(ctx, bagel.ErrorCodeInvalidCiphertext)
	}
	if args.EmployeeCommitment.IsZero() {
		return fail(ctx, bagel.ErrorCodeIdentityVerificationFailed)
	}

	vault, err := p.loadActiveVault(ctx, vaultInfo)
	if err != nil {
		return err
	}
	business, err := p.loadBusiness(ctx, businessInfo)
	if err != nil {
		return err
	}
	if err := checkEmployer(ctx, businessInfo, business, employer); err != nil {
		return err
	}
	if !business.IsActive {
		return fail(ctx, bagel.ErrorCodePayrollInactive)
	}

	employeeIndex := business.NextEmployeeIndex
	address, bump, err := bagel.GetEmployeeEntryAddress(businessInfo.Key, employeeIndex)
	if err != nil || !bytes.Equal(address, employeeInfo.Key) {
		ctx.Logf("Error: expected employee entry %s for index %d", base58.Encode(address), employeeIndex)
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}

	nextIndex, ok := checkedAdd(employeeIndex, 1)
	if !ok {
		return fail(ctx, bagel.ErrorCodeOverflow)
	}

	seeds := bagel.GetEmployeeEntrySeeds(businessInfo.Key, employeeIndex)
	if err := createAccount(ctx, employer, employeeInfo, bagel.EmployeeEntrySize, seeds, bump); err != nil {
		return err
	}

	fhe := newFHE(ctx, employer)
	employeeID, err := fhe.encrypted(args.EncryptedEmployeeId)
	if err != nil {
		return err
	}
	salary, err := fhe.encrypted(args.EncryptedSalary)
	if err != nil {
		return err
	}
	accrued, err := fhe.constant(0)
	if err != nil {
		return err
	}
	businessEmployees, err := fhe.increment(business.EncryptedEmployeeCount, 1)
	if err != nil {
		return err
	}
	vaultEmployees, err := fhe.increment(vault.EncryptedEmployeeCount, 1)
	if err != nil {
		return err
	}

	now := ctx.Clock().UnixTimestamp
	saveEmployee(employeeInfo, &bagel.EmployeeEntry{
		BusinessEntry:       businessInfo.Key,
		EmployeeIndex:       employeeIndex,
		EncryptedEmployeeId: employeeID,
		EncryptedSalary:     salary,
		EncryptedAccrued:    accrued,
		LastAction:          now,
		IsActive:            true,
		Bump:                bump,
		EmployeeCommitment:  args.EmployeeCommitment,
	})

	business.NextEmployeeIndex = nextIndex
	business.EncryptedEmployeeCount = businessEmployees
	saveBusiness(businessInfo, business)

	vault.EncryptedEmployeeCount = vaultEmployees
	saveVault(vaultInfo, vault)

	emit(ctx, &bagel.EmployeeAdded{
		BusinessIndex: business.EntryIndex,
		EmployeeIndex: employeeIndex,
		Timestamp:     now,
	})
	return nil
}

// accrue adds salary × elapsed to the accrued balance. Anyone can crank it.
func (p *Program) accrue(ctx *svm.InvokeContext) error {
	infos, err := accounts(ctx, 4)
	if err != nil {
		return err
	}
	cranker, vaultInfo, businessInfo, employeeInfo := infos[0], infos[1], infos[2], infos[3]

	if err := requireSigner(cranker); err != nil {
		return err
	}

	vault, err := p.loadVault(ctx, vaultInfo)
	if err != nil {
		return err
	}
	business, err := p.loadBusiness(ctx, businessInfo)
	if err != nil {
		return err
	}
	employee, err := p.loadEmployee(ctx, businessInfo, employeeInfo)
	if err != nil {
		return err
	}
	if !vault.IsActive || !business.IsActive || !employee.IsActive {
		return fail(ctx, bagel.ErrorCodePayrollInactive)
	}

	now := ctx.Clock().UnixTimestamp
	elapsed := now - employee.LastAction
	if elapsed < 0 {
		return fail(ctx, bagel.ErrorCodeInvalidTimestamp)
	}
	if elapsed == 0 {
		ctx.Logf("Nothing to accrue")
		return nil
	}

	if err := accrueSalary(newFHE(ctx, cranker), employee, elapsed); err != nil {
		return err
	}
	employee.LastAction = now
	saveEmployee(employeeInfo, employee)

	emit(ctx, &bagel.SalaryAccrued{
		BusinessIndex:  business.EntryIndex,
		EmployeeIndex:  employee.EmployeeIndex,
		ElapsedSeconds: uint64(elapsed),
		Timestamp:      now,
	})
	return nil
}

func accrueSalary(f *fhe, employee *bagel.EmployeeEntry, elapsed int64) error {
	delta, err := f.mulScalar(employee.EncryptedSalary, uint64(elapsed))
	if err != nil {
		return err
	}
	accrued, err := f.add(employee.EncryptedAccrued, delta)
	if err != nil {
		return err
	}
	employee.EncryptedAccrued = accrued
	return nil
}

// requestWithdrawal pays accrued salary out to the employee, in lamports or
// in confidential tokens depending on the vault's funding mode.
func (p *Program) requestWithdrawal(ctx *svm.InvokeContext) error {
	args, err := bagel.ParseRequestWithdrawalInstructionArgs(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	infos, err := accounts(ctx, 9)
	if err != nil {
		return err
	}
	withdrawer, vaultInfo, businessInfo, employeeInfo := infos[0], infos[1], infos[2], infos[3]
	tokenProgram, vaultToken, employeeToken, shadowwireProgram := optional(infos[5]), optional(infos[6]), optional(infos[7]), optional(infos[8])

	if args.Amount == 0 {
		return fail(ctx, bagel.ErrorCodeNoAccruedDough)
	}
	if len(args.EncryptedAmount) == 0 {
		return fail(ctx, bagel.ErrorCodeInvalidCiphertext)
	}

	vault, err := p.loadVault(ctx, vaultInfo)
	if err != nil {
		return err
	}
	business, err := p.loadBusiness(ctx, businessInfo)
	if err != nil {
		return err
	}
	employee, err := p.loadEmployee(ctx, businessInfo, employeeInfo)
	if err != nil {
		return err
	}
	if err := checkEmployee(ctx, employeeInfo, employee, withdrawer); err != nil {
		return err
	}
	if !vault.IsActive || !business.IsActive || !employee.IsActive {
		return fail(ctx, bagel.ErrorCodePayrollInactive)
	}

	now := ctx.Clock().UnixTimestamp
	elapsed := now - employee.LastAction
	if elapsed < 0 {
		return fail(ctx, bagel.ErrorCodeInvalidTimestamp)
	}
	if elapsed < bagel.MinWithdrawInterval {
		ctx.Logf("Error: %d seconds since last action", elapsed)
		return fail(ctx, bagel.ErrorCodeWithdrawTooSoon)
	}

	confidential := vault.IsConfidential()
	if confidential {
		if tokenProgram == nil || vaultToken == nil || employeeToken == nil || !bytes.Equal(tokenProgram.Key, inco.TOKEN_PROGRAM_ID) {
			ctx.Logf("Error: confidential withdrawals require the token program and token accounts")
			return fail(ctx, bagel.ErrorCodeInvalidState)
		}
		if err := p.checkVaultTokenAccount(ctx, vault, vaultToken); err != nil {
			return err
		}
		if args.UseShadowwire && (shadowwireProgram == nil || !bytes.Equal(shadowwireProgram.Key, shadowwire.PROGRAM_ID) || args.Proof == nil) {
			ctx.Logf("Error: private transfers require the shadowwire program and a proof")
			return fail(ctx, bagel.ErrorCodeInvalidState)
		}
	} else {
		if args.Amount > vault.TotalBalance {
			return fail(ctx, bagel.ErrorCodeInsufficientFunds)
		}
		remaining, ok := checkedSub(vaultInfo.Lamports, args.Amount)
		if !ok || !ctx.Rent().IsExempt(remaining, len(vaultInfo.Data)) {
			ctx.Logf("Error: vault would fall below rent exemption")
			return fail(ctx, bagel.ErrorCodeInsufficientFunds)
		}
	}

	fhe := newFHE(ctx, withdrawer)
	amount, err := fhe.encrypted(args.EncryptedAmount)
	if err != nil {
		return err
	}
	accrued, err := fhe.sub(employee.EncryptedAccrued, amount)
	if err != nil {
		return err
	}

	if confidential {
		if err := p.payConfidential(ctx, args, vaultToken, employeeToken); err != nil {
			return err
		}
	} else {
		vaultInfo.Lamports -= args.Amount
		withdrawer.Lamports += args.Amount
		vault.TotalBalance -= args.Amount
		saveVault(vaultInfo, vault)
	}

	employee.EncryptedAccrued = accrued
	employee.LastAction = now
	saveEmployee(employeeInfo, employee)

	emit(ctx, &bagel.WithdrawalProcessed{
		BusinessIndex:     business.EntryIndex,
		EmployeeIndex:     employee.EmployeeIndex,
		Timestamp:         now,
		ShadowwireEnabled: args.UseShadowwire,
	})
	return nil
}

// payConfidential moves the encrypted amount out of the vault token account,
// signed by the vault PDA.
func (p *Program) payConfidential(ctx *svm.InvokeContext, args *bagel.RequestWithdrawalInstructionArgs, vaultToken, employeeToken *svm.AccountInfo) error {
	var ix solana.Instruction
	if args.UseShadowwire {
		ix = shadowwire.NewTransferInstruction(
			&shadowwire.TransferInstructionAccounts{
				Source:      vaultToken.Key,
				Destination: employeeToken.Key,
				Authority:   p.masterVault,
			},
			&shadowwire.TransferInstructionArgs{
				Proof:      args.Proof,
				Ciphertext: args.EncryptedAmount,
				InputType:  inco.InputTypeRawBytes,
			},
		)
	} else {
		ix = inco.NewTransferInstruction(
			&inco.TransferInstructionAccounts{
				Source:      vaultToken.Key,
				Destination: employeeToken.Key,
				Authority:   p.masterVault,
			},
			&inco.ConfidentialAmountInstructionArgs{
				Ciphertext: args.EncryptedAmount,
				InputType:  inco.InputTypeRawBytes,
			},
		)
	}

	return ctx.InvokeSigned(ix, [][]byte{bagel.MasterVaultPrefix, {p.masterVaultBump}})
}

// updateSalary settles pending salary at the old rate before switching to the
// new one.
func (p *Program) updateSalary(ctx *svm.InvokeContext) error {
	args, err := bagel.ParseUpdateSalaryInstructionArgs(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	infos, err := accounts(ctx, 4)
	if err != nil {
		return err
	}
	employer, vaultInfo, businessInfo, employeeInfo := infos[0], infos[1], infos[2], infos[3]

	if len(args.EncryptedSalary) == 0 {
		return fail(ctx, bagel.ErrorCodeInvalidCiphertext)
	}

	employee, business, err := p.loadForEmployer(ctx, employer, vaultInfo, businessInfo, employeeInfo)
	if err != nil {
		return err
	}
	if !business.IsActive || !employee.IsActive {
		return fail(ctx, bagel.ErrorCodePayrollInactive)
	}

	now := ctx.Clock().UnixTimestamp
	elapsed := now - employee.LastAction
	if elapsed < 0 {
		return fail(ctx, bagel.ErrorCodeInvalidTimestamp)
	}

	fhe := newFHE(ctx, employer)
	if elapsed > 0 {
		if err := accrueSalary(fhe, employee, elapsed); err != nil {
			return err
		}
		employee.LastAction = now
	}

	salary, err := fhe.encrypted(args.EncryptedSalary)
	if err != nil {
		return err
	}
	employee.EncryptedSalary = salary
	saveEmployee(employeeInfo, employee)
	return nil
}

func (p *Program) deactivateEmployee(ctx *svm.InvokeContext) error {
	infos, err := accounts(ctx, 4)
	if err != nil {
		return err
	}
	employer, vaultInfo, businessInfo, employeeInfo := infos[0], infos[1], infos[2], infos[3]

	employee, business, err := p.loadForEmployer(ctx, employer, vaultInfo, businessInfo, employeeInfo)
	if err != nil {
		return err
	}
	if !employee.IsActive {
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}

	employee.IsActive = false
	saveEmployee(employeeInfo, employee)

	emit(ctx, &bagel.EmployeeDeactivated{
		BusinessIndex: business.EntryIndex,
		EmployeeIndex: employee.EmployeeIndex,
		Timestamp:     ctx.Clock().UnixTimestamp,
	})
	return nil
}

func (p *Program) closeEmployeeEntry(ctx *svm.InvokeContext) error {
	infos, err := accounts(ctx, 4)
	if err != nil {
		return err
	}
	employer, vaultInfo, businessInfo, employeeInfo := infos[0], infos[1], infos[2], infos[3]

	employee, _, err := p.loadForEmployer(ctx, employer, vaultInfo, businessInfo, employeeInfo)
	if err != nil {
		return err
	}
	if employee.IsActive {
		ctx.Logf("Error: employee must be deactivated first")
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}

	closeAccount(employeeInfo, employer)
	return nil
}

// loadForEmployer loads the entries touched by employer only instructions
// and verifies the employer's identity.
func (p *Program) loadForEmployer(ctx *svm.InvokeContext, employer, vaultInfo, businessInfo, employeeInfo *svm.AccountInfo) (*bagel.EmployeeEntry, *bagel.BusinessEntry, error) {
	if _, err := p.loadVault(ctx, vaultInfo); err != nil {
		return nil, nil, err
	}
	business, err := p.loadBusiness(ctx, businessInfo)
	if err != nil {
		return nil, nil, err
	}
	employee, err := p.loadEmployee(ctx, businessInfo, employeeInfo)
	if err != nil {
		return nil, nil, err
	}
	if err := checkEmployer(ctx, businessInfo, business, employer); err != nil {
		return nil, nil, err
	}
	return employee, business, nil
}

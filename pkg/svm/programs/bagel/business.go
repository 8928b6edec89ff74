package bagel

import (
	"bytes"

	"github.com/mr-tron/base58"

	"github.com/bagel-payroll/bagel-server/pkg/solana/bagel"
	"github.com/bagel-payroll/bagel-server/pkg/solana/inco"
	"github.com/bagel-payroll/bagel-server/pkg/solana/system"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
)

// registerBusiness consumes the next business index. The vault authority
// co-signs every registration.
func (p *Program) registerBusiness(ctx *svm.InvokeContext) error {
	args, err := bagel.ParseRegisterBusinessInstructionArgs(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	infos, err := accounts(ctx, 4)
	if err != nil {
		return err
	}
	employer, authority, vaultInfo, businessInfo := infos[0], infos[1], infos[2], infos[3]

	if len(args.EncryptedEmployerId) == 0 {
		return fail(ctx, bagel.ErrorCodeInvalidCiphertext)
	}

	vault, err := p.loadActiveVault(ctx, vaultInfo)
	if err != nil {
		return err
	}
	if err := checkAuthority(ctx, vault, authority); err != nil {
		return err
	}
	if err := requireSigner(employer); err != nil {
		return err
	}

	entryIndex := vault.NextBusinessIndex
	address, bump, err := bagel.GetBusinessEntryAddress(p.masterVault, entryIndex)
	if err != nil || !bytes.Equal(address, businessInfo.Key) {
		ctx.Logf("Error: expected business entry %s for index %d", base58.Encode(address), entryIndex)
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}

	nextIndex, ok := checkedAdd(entryIndex, 1)
	if !ok {
		return fail(ctx, bagel.ErrorCodeOverflow)
	}

	seeds := bagel.GetBusinessEntrySeeds(p.masterVault, entryIndex)
	if err := createAccount(ctx, employer, businessInfo, bagel.BusinessEntrySize, seeds, bump); err != nil {
		return err
	}

	fhe := newFHE(ctx, employer)
	employerID, err := fhe.encrypted(args.EncryptedEmployerId)
	if err != nil {
		return err
	}
	balance, err := fhe.constant(0)
	if err != nil {
		return err
	}
	employeeCount, err := fhe.constant(0)
	if err != nil {
		return err
	}
	businessCount, err := fhe.increment(vault.EncryptedBusinessCount, 1)
	if err != nil {
		return err
	}

	saveBusiness(businessInfo, &bagel.BusinessEntry{
		MasterVault:            p.masterVault,
		EntryIndex:             entryIndex,
		EncryptedEmployerId:    employerID,
		EncryptedBalance:       balance,
		EncryptedEmployeeCount: employeeCount,
		IsActive:               true,
		Bump:                   bump,
		EmployerCommitment:     bagel.EmployerCommitment(businessInfo.Key, employer.Key),
	})

	vault.NextBusinessIndex = nextIndex
	vault.EncryptedBusinessCount = businessCount
	saveVault(vaultInfo, vault)

	emit(ctx, &bagel.BusinessRegistered{
		EntryIndex: entryIndex,
		Timestamp:  ctx.Clock().UnixTimestamp,
	})
	return nil
}

// deposit funds a business. Value moves first, then the encrypted amount is
// added to the business balance.
func (p *Program) deposit(ctx *svm.InvokeContext) error {
	args, err := bagel.ParseDepositInstructionArgs(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	infos, err := accounts(ctx, 7)
	if err != nil {
		return err
	}
	depositor, vaultInfo, businessInfo := infos[0], infos[1], infos[2]
	tokenProgram, depositorToken, vaultToken := optional(infos[4]), optional(infos[5]), optional(infos[6])

	if args.Amount == 0 {
		return fail(ctx, bagel.ErrorCodeInvalidAmount)
	}
	if len(args.EncryptedAmount) == 0 {
		return fail(ctx, bagel.ErrorCodeInvalidCiphertext)
	}
	if err := requireSigner(depositor); err != nil {
		return err
	}

	vault, err := p.loadActiveVault(ctx, vaultInfo)
	if err != nil {
		return err
	}
	business, err := p.loadBusiness(ctx, businessInfo)
	if err != nil {
		return err
	}
	if !business.IsActive {
		return fail(ctx, bagel.ErrorCodePayrollInactive)
	}

	if vault.IsConfidential() {
		if tokenProgram == nil || depositorToken == nil || vaultToken == nil || !bytes.Equal(tokenProgram.Key, inco.TOKEN_PROGRAM_ID) {
			ctx.Logf("Error: confidential deposits require the token program and token accounts")
			return fail(ctx, bagel.ErrorCodeInvalidState)
		}
		if err := p.checkVaultTokenAccount(ctx, vault, vaultToken); err != nil {
			return err
		}

		err = ctx.Invoke(inco.NewTransferInstruction(
			&inco.TransferInstructionAccounts{
				Source:      depositorToken.Key,
				Destination: vaultToken.Key,
				Authority:   depositor.Key,
			},
			&inco.ConfidentialAmountInstructionArgs{
				Ciphertext: args.EncryptedAmount,
				InputType:  inco.InputTypeRawBytes,
			},
		))
		if err != nil {
			return err
		}
	} else {
		totalBalance, ok := checkedAdd(vault.TotalBalance, args.Amount)
		if !ok {
			return fail(ctx, bagel.ErrorCodeOverflow)
		}

		if err := ctx.Invoke(system.Transfer(depositor.Key, vaultInfo.Key, args.Amount)); err != nil {
			return err
		}

		vault.TotalBalance = totalBalance
		saveVault(vaultInfo, vault)
	}

	fhe := newFHE(ctx, depositor)
	amount, err := fhe.encrypted(args.EncryptedAmount)
	if err != nil {
		return err
	}
	balance, err := fhe.add(business.EncryptedBalance, amount)
	if err != nil {
		return err
	}

	business.EncryptedBalance = balance
	saveBusiness(businessInfo, business)

	emit(ctx, &bagel.FundsDeposited{
		EntryIndex: business.EntryIndex,
		Timestamp:  ctx.Clock().UnixTimestamp,
	})
	return nil
}

// checkVaultTokenAccount verifies the vault's confidential token account is
// held by the vault PDA for the configured mint.
func (p *Program) checkVaultTokenAccount(ctx *svm.InvokeContext, vault *bagel.MasterVault, info *svm.AccountInfo) error {
	if !info.IsOwnedBy(inco.TOKEN_PROGRAM_ID) {
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}

	var account inco.TokenAccount
	if err := account.Unmarshal(info.Data); err != nil {
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}
	if !bytes.Equal(account.Owner, p.masterVault) || !bytes.Equal(account.Mint, vault.ConfidentialMint) {
		ctx.Logf("Error: %s is not the vault token account", base58.Encode(info.Key))
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}
	return nil
}

// setBusinessActive pauses or resumes one business without touching the rest
// of the vault. Deactivating an already inactive business is a no-op that
// still emits the event.
func (p *Program) setBusinessActive(ctx *svm.InvokeContext) error {
	args, err := bagel.ParseSetBusinessActiveInstructionArgs(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	infos, err := accounts(ctx, 3)
	if err != nil {
		return err
	}
	employer, vaultInfo, businessInfo := infos[0], infos[1], infos[2]

	if _, err := p.loadVault(ctx, vaultInfo); err != nil {
		return err
	}
	business, err := p.loadBusiness(ctx, businessInfo)
	if err != nil {
		return err
	}
	if err := checkEmployer(ctx, businessInfo, business, employer); err != nil {
		return err
	}
	business.IsActive = args.IsActive
	saveBusiness(businessInfo, business)

	emit(ctx, &bagel.BusinessActiveChanged{
		BusinessIndex: business.EntryIndex,
		IsActive:      args.IsActive,
		Timestamp:     ctx.Clock().UnixTimestamp,
	})
	return nil
}

// closeBusinessEntry tears down a business once every employee entry it ever
// created is closed or inactive. The employee entries are passed in index
// order after the fixed accounts.
func (p *Program) closeBusinessEntry(ctx *svm.InvokeContext) error {
	infos, err := accounts(ctx, 3)
	if err != nil {
		return err
	}
	employer, vaultInfo, businessInfo := infos[0], infos[1], infos[2]
	employees := ctx.Accounts()[3:]

	if _, err := p.loadVault(ctx, vaultInfo); err != nil {
		return err
	}
	business, err := p.loadBusiness(ctx, businessInfo)
	if err != nil {
		return err
	}
	if err := checkEmployer(ctx, businessInfo, business, employer); err != nil {
		return err
	}

	if uint64(len(employees)) != business.NextEmployeeIndex {
		ctx.Logf("Error: expected %d employee entries, got %d", business.NextEmployeeIndex, len(employees))
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}

	for i, info := range employees {
		address, _, err := bagel.GetEmployeeEntryAddress(businessInfo.Key, uint64(i))
		if err != nil || !bytes.Equal(address, info.Key) {
			return fail(ctx, bagel.ErrorCodeInvalidState)
		}

		if isDelegated(info) {
			return fail(ctx, bagel.ErrorCodeAccountDelegated)
		}
		if !info.IsOwnedBy(bagel.PROGRAM_ID) || len(info.Data) == 0 {
			continue
		}

		var employee bagel.EmployeeEntry
		if err := employee.Unmarshal(info.Data); err != nil {
			return svm.ErrInvalidAccountData
		}
		if employee.IsActive {
			ctx.Logf("Error: employee %d is still active", i)
			return fail(ctx, bagel.ErrorCodeInvalidState)
		}
	}

	closeAccount(businessInfo, employer)
	return nil
}

package bagel

import (
	"bytes"

	"github.com/bagel-payroll/bagel-server/pkg/solana/bagel"
	"github.com/bagel-payroll/bagel-server/pkg/solana/system"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
)

func (p *Program) initializeVault(ctx *svm.InvokeContext) error {
	infos, err := accounts(ctx, 2)
	if err != nil {
		return err
	}
	authority, vaultInfo := infos[0], infos[1]

	if err := requireSigner(authority); err != nil {
		return err
	}
	if !bytes.Equal(vaultInfo.Key, p.masterVault) {
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}

	err = createAccount(ctx, authority, vaultInfo, bagel.MasterVaultSize, [][]byte{bagel.MasterVaultPrefix}, p.masterVaultBump)
	if err != nil {
		return err
	}

	fhe := newFHE(ctx, authority)
	businessCount, err := fhe.constant(0)
	if err != nil {
		return err
	}
	employeeCount, err := fhe.constant(0)
	if err != nil {
		return err
	}

	saveVault(vaultInfo, &bagel.MasterVault{
		Authority:              authority.Key,
		EncryptedBusinessCount: businessCount,
		EncryptedEmployeeCount: employeeCount,
		IsActive:               true,
		Bump:                   p.masterVaultBump,
	})

	emit(ctx, &bagel.VaultInitialized{Timestamp: ctx.Clock().UnixTimestamp})
	return nil
}

// migrateVault grows a legacy vault to the current layout. Vaults already at
// the current size are left untouched.
func (p *Program) migrateVault(ctx *svm.InvokeContext) error {
	infos, err := accounts(ctx, 2)
	if err != nil {
		return err
	}
	authority, vaultInfo := infos[0], infos[1]

	if !bytes.Equal(vaultInfo.Key, p.masterVault) {
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}
	if !vaultInfo.IsOwnedBy(bagel.PROGRAM_ID) {
		return svm.ErrIncorrectProgramID
	}

	var vault bagel.MasterVault
	if err := vault.UnmarshalLegacy(vaultInfo.Data); err != nil {
		return svm.ErrInvalidAccountData
	}
	if err := checkAuthority(ctx, &vault, authority); err != nil {
		return err
	}

	previousSize := len(vaultInfo.Data)
	if previousSize >= bagel.MasterVaultSize {
		ctx.Logf("Vault already migrated")
		return nil
	}

	required := ctx.Rent().MinimumBalance(bagel.MasterVaultSize)
	if vaultInfo.Lamports < required {
		if err := ctx.Invoke(system.Transfer(authority.Key, vaultInfo.Key, required-vaultInfo.Lamports)); err != nil {
			return err
		}
	}

	vaultInfo.Realloc(bagel.MasterVaultSize)
	saveVault(vaultInfo, &vault)

	emit(ctx, &bagel.VaultMigrated{
		PreviousSize: uint64(previousSize),
		Timestamp:    ctx.Clock().UnixTimestamp,
	})
	return nil
}

func (p *Program) configureConfidentialMint(ctx *svm.InvokeContext) error {
	args, err := bagel.ParseConfigureConfidentialMintInstructionArgs(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	infos, err := accounts(ctx, 2)
	if err != nil {
		return err
	}
	authority, vaultInfo := infos[0], infos[1]

	vault, err := p.loadVault(ctx, vaultInfo)
	if err != nil {
		return err
	}
	if err := checkAuthority(ctx, vault, authority); err != nil {
		return err
	}

	vault.ConfidentialMint = args.Mint
	vault.UseConfidentialTokens = args.Enable
	saveVault(vaultInfo, vault)

	emit(ctx, &bagel.ConfidentialMintConfigured{
		Enabled:   args.Enable,
		Timestamp: ctx.Clock().UnixTimestamp,
	})
	return nil
}

func (p *Program) setVaultActive(ctx *svm.InvokeContext) error {
	args, err := bagel.ParseSetVaultActiveInstructionArgs(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	infos, err := accounts(ctx, 2)
	if err != nil {
		return err
	}
	authority, vaultInfo := infos[0], infos[1]

	vault, err := p.loadVault(ctx, vaultInfo)
	if err != nil {
		return err
	}
	if err := checkAuthority(ctx, vault, authority); err != nil {
		return err
	}

	vault.IsActive = args.IsActive
	saveVault(vaultInfo, vault)

	emit(ctx, &bagel.VaultActiveChanged{
		IsActive:  args.IsActive,
		Timestamp: ctx.Clock().UnixTimestamp,
	})
	return nil
}

// closeVault tears down an empty vault, legacy or current. The vault is only
// empty once nothing is lent out through its yield position either.
func (p *Program) closeVault(ctx *svm.InvokeContext) error {
	infos, err := accounts(ctx, 3)
	if err != nil {
		return err
	}
	authority, vaultInfo, positionInfo := infos[0], infos[1], infos[2]

	if !bytes.Equal(vaultInfo.Key, p.masterVault) {
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}
	if !vaultInfo.IsOwnedBy(bagel.PROGRAM_ID) {
		return svm.ErrIncorrectProgramID
	}

	var vault bagel.MasterVault
	if err := vault.UnmarshalLegacy(vaultInfo.Data); err != nil {
		return svm.ErrInvalidAccountData
	}
	if err := checkAuthority(ctx, &vault, authority); err != nil {
		return err
	}
	if vault.TotalBalance != 0 {
		ctx.Logf("Error: vault still holds %d lamports of payroll funds", vault.TotalBalance)
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}

	address, _, err := bagel.GetYieldPositionAddress(p.masterVault)
	if err != nil || !bytes.Equal(address, positionInfo.Key) {
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}
	if positionInfo.IsOwnedBy(bagel.PROGRAM_ID) {
		position, err := p.loadPosition(ctx, positionInfo)
		if err != nil {
			return err
		}
		if position.Principal != 0 {
			ctx.Logf("Error: %d lamports are still allocated to yield", position.Principal)
			return fail(ctx, bagel.ErrorCodeInvalidState)
		}
	}

	closeAccount(vaultInfo, authority)
	return nil
}

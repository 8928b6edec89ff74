package bagel

import (
	"bytes"

	"github.com/bagel-payroll/bagel-server/pkg/solana/bagel"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
	"github.com/bagel-payroll/bagel-server/pkg/yield"
)

// allocateToYield moves the yield share of the amount from the vault's liquid
// balance into the lending position, opening it on first use.
func (p *Program) allocateToYield(ctx *svm.InvokeContext) error {
	_, args, err := bagel.ParseYieldAmountInstructionArgs(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	infos, err := accounts(ctx, 3)
	if err != nil {
		return err
	}
	authority, vaultInfo, positionInfo := infos[0], infos[1], infos[2]

	if args.Amount == 0 {
		return fail(ctx, bagel.ErrorCodeInvalidAmount)
	}

	vault, err := p.loadVault(ctx, vaultInfo)
	if err != nil {
		return err
	}
	if err := checkAuthority(ctx, vault, authority); err != nil {
		return err
	}

	address, bump, err := bagel.GetYieldPositionAddress(p.masterVault)
	if err != nil || !bytes.Equal(address, positionInfo.Key) {
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}

	now := ctx.Clock().UnixTimestamp

	var position *bagel.YieldPosition
	if positionInfo.IsOwnedBy(bagel.PROGRAM_ID) {
		if position, err = p.loadPosition(ctx, positionInfo); err != nil {
			return err
		}
		if err := settle(ctx, position, now); err != nil {
			return err
		}
	} else {
		seeds := [][]byte{bagel.YieldPositionPrefix, p.masterVault}
		if err := createAccount(ctx, authority, positionInfo, bagel.YieldPositionSize, seeds, bump); err != nil {
			return err
		}
		position = &bagel.YieldPosition{
			MasterVault: p.masterVault,
			ApyBps:      yield.DefaultApyBps,
			LastHarvest: now,
			Bump:        bump,
		}
	}

	if args.Amount > vault.TotalBalance {
		return fail(ctx, bagel.ErrorCodeInsufficientFunds)
	}
	toYield, liquid := yield.Split(args.Amount)
	principal, ok := checkedAdd(position.Principal, toYield)
	if !ok {
		return fail(ctx, bagel.ErrorCodeOverflow)
	}
	ctx.Logf("Allocated %d to yield, %d stays liquid", toYield, liquid)

	vault.TotalBalance -= toYield
	position.Principal = principal

	saveVault(vaultInfo, vault)
	savePosition(positionInfo, position)
	return nil
}

func (p *Program) harvestYield(ctx *svm.InvokeContext) error {
	infos, err := accounts(ctx, 3)
	if err != nil {
		return err
	}
	authority, vaultInfo, positionInfo := infos[0], infos[1], infos[2]

	vault, err := p.loadVault(ctx, vaultInfo)
	if err != nil {
		return err
	}
	if err := checkAuthority(ctx, vault, authority); err != nil {
		return err
	}
	position, err := p.loadPosition(ctx, positionInfo)
	if err != nil {
		return err
	}

	if err := settle(ctx, position, ctx.Clock().UnixTimestamp); err != nil {
		return err
	}
	savePosition(positionInfo, position)
	return nil
}

// releaseFromYield moves principal back into the vault's liquid balance.
func (p *Program) releaseFromYield(ctx *svm.InvokeContext) error {
	_, args, err := bagel.ParseYieldAmountInstructionArgs(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	infos, err := accounts(ctx, 3)
	if err != nil {
		return err
	}
	authority, vaultInfo, positionInfo := infos[0], infos[1], infos[2]

	if args.Amount == 0 {
		return fail(ctx, bagel.ErrorCodeInvalidAmount)
	}

	vault, err := p.loadVault(ctx, vaultInfo)
	if err != nil {
		return err
	}
	if err := checkAuthority(ctx, vault, authority); err != nil {
		return err
	}
	position, err := p.loadPosition(ctx, positionInfo)
	if err != nil {
		return err
	}
	if err := settle(ctx, position, ctx.Clock().UnixTimestamp); err != nil {
		return err
	}

	if args.Amount > position.Principal {
		return fail(ctx, bagel.ErrorCodeInsufficientFunds)
	}
	totalBalance, ok := checkedAdd(vault.TotalBalance, args.Amount)
	if !ok {
		return fail(ctx, bagel.ErrorCodeOverflow)
	}

	position.Principal -= args.Amount
	vault.TotalBalance = totalBalance

	saveVault(vaultInfo, vault)
	savePosition(positionInfo, position)
	return nil
}

func (p *Program) loadPosition(ctx *svm.InvokeContext, info *svm.AccountInfo) (*bagel.YieldPosition, error) {
	if !info.IsOwnedBy(bagel.PROGRAM_ID) {
		return nil, svm.ErrIncorrectProgramID
	}

	var position bagel.YieldPosition
	if err := position.Unmarshal(info.Data); err != nil {
		return nil, svm.ErrInvalidAccountData
	}
	if !bytes.Equal(position.MasterVault, p.masterVault) {
		return nil, fail(ctx, bagel.ErrorCodeInvalidState)
	}
	return &position, nil
}

// settle accrues yield up to now and books it 80/20 between employees and
// the employer.
func settle(ctx *svm.InvokeContext, position *bagel.YieldPosition, now int64) error {
	accrued, err := yield.Accrued(position.Principal, position.ApyBps, now-position.LastHarvest)
	switch err {
	case nil:
	case yield.ErrNegativeElapsed:
		return fail(ctx, bagel.ErrorCodeInvalidTimestamp)
	default:
		return fail(ctx, bagel.ErrorCodeOverflow)
	}

	employees, employer := yield.Distribute(accrued)

	totalHarvested, ok1 := checkedAdd(position.TotalHarvested, accrued)
	employeeTotal, ok2 := checkedAdd(position.EmployeeYieldTotal, employees)
	employerTotal, ok3 := checkedAdd(position.EmployerYieldTotal, employer)
	if !ok1 || !ok2 || !ok3 {
		return fail(ctx, bagel.ErrorCodeOverflow)
	}

	position.TotalHarvested = totalHarvested
	position.EmployeeYieldTotal = employeeTotal
	position.EmployerYieldTotal = employerTotal
	position.LastHarvest = now

	if accrued > 0 {
		ctx.Logf("Harvested %d: %d to employees, %d to employer", accrued, employees, employer)
	}
	return nil
}

func savePosition(info *svm.AccountInfo, position *bagel.YieldPosition) {
	copy(info.Data, position.Marshal())
}

package payroll

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/bagel-payroll/bagel-server/pkg/solana/bagel"
	"github.com/bagel-payroll/bagel-server/pkg/yield"
)

func (c *Client) yieldAccounts(authority ed25519.PrivateKey) (*bagel.YieldInstructionAccounts, error) {
	position, _, err := bagel.GetYieldPositionAddress(c.masterVault)
	if err != nil {
		return nil, err
	}

	return &bagel.YieldInstructionAccounts{
		Authority:     authority.Public().(ed25519.PublicKey),
		MasterVault:   c.masterVault,
		YieldPosition: position,
	}, nil
}

// AllocateToYield moves the yield share of amount out of the vault's liquid
// balance into the lending position.
func (c *Client) AllocateToYield(ctx context.Context, authority ed25519.PrivateKey, amount uint64) (*Result, error) {
	accounts, err := c.yieldAccounts(authority)
	if err != nil {
		return nil, err
	}

	return c.submit(ctx, "AllocateToYield", []ed25519.PrivateKey{authority}, bagel.NewAllocateToYieldInstruction(
		accounts,
		&bagel.YieldAmountInstructionArgs{Amount: amount},
	))
}

func (c *Client) HarvestYield(ctx context.Context, authority ed25519.PrivateKey) (*Result, error) {
	accounts, err := c.yieldAccounts(authority)
	if err != nil {
		return nil, err
	}

	return c.submit(ctx, "HarvestYield", []ed25519.PrivateKey{authority}, bagel.NewHarvestYieldInstruction(accounts))
}

func (c *Client) ReleaseFromYield(ctx context.Context, authority ed25519.PrivateKey, amount uint64) (*Result, error) {
	accounts, err := c.yieldAccounts(authority)
	if err != nil {
		return nil, err
	}

	return c.submit(ctx, "ReleaseFromYield", []ed25519.PrivateKey{authority}, bagel.NewReleaseFromYieldInstruction(
		accounts,
		&bagel.YieldAmountInstructionArgs{Amount: amount},
	))
}

// PendingYield is what a harvest at the given time would collect, split the
// way the program splits it.
type PendingYield struct {
	Total    uint64
	Employee uint64
	Employer uint64
}

func (c *Client) GetPendingYield(ctx context.Context, at time.Time) (*PendingYield, error) {
	position, err := c.GetYieldPosition(ctx)
	if err != nil {
		return nil, err
	}

	elapsed := at.Unix() - position.LastHarvest
	if elapsed < 0 {
		elapsed = 0
	}

	total, err := yield.Accrued(position.Principal, position.ApyBps, elapsed)
	if err != nil {
		return nil, err
	}

	employee, employer := yield.Distribute(total)
	return &PendingYield{
		Total:    total,
		Employee: employee,
		Employer: employer,
	}, nil
}

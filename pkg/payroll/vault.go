package payroll

import (
	"context"
	"crypto/ed25519"

	"github.com/bagel-payroll/bagel-server/pkg/solana/bagel"
)

func (c *Client) InitializeVault(ctx context.Context, authority ed25519.PrivateKey) (*Result, error) {
	return c.submit(ctx, "InitializeVault", []ed25519.PrivateKey{authority}, bagel.NewInitializeVaultInstruction(
		&bagel.InitializeVaultInstructionAccounts{
			Authority:   authority.Public().(ed25519.PublicKey),
			MasterVault: c.masterVault,
		},
	))
}

// MigrateVault grows a vault created before confidential token support to
// the current layout. Migrating an already migrated vault is a no-op.
func (c *Client) MigrateVault(ctx context.Context, authority ed25519.PrivateKey) (*Result, error) {
	return c.submit(ctx, "MigrateVault", []ed25519.PrivateKey{authority}, bagel.NewMigrateVaultInstruction(
		&bagel.MigrateVaultInstructionAccounts{
			Authority:   authority.Public().(ed25519.PublicKey),
			MasterVault: c.masterVault,
		},
	))
}

func (c *Client) ConfigureConfidentialMint(ctx context.Context, authority ed25519.PrivateKey, mint ed25519.PublicKey, enable bool) (*Result, error) {
	return c.submit(ctx, "ConfigureConfidentialMint", []ed25519.PrivateKey{authority}, bagel.NewConfigureConfidentialMintInstruction(
		&bagel.ConfigureConfidentialMintInstructionAccounts{
			Authority:   authority.Public().(ed25519.PublicKey),
			MasterVault: c.masterVault,
		},
		&bagel.ConfigureConfidentialMintInstructionArgs{
			Mint:   mint,
			Enable: enable,
		},
	))
}

func (c *Client) SetVaultActive(ctx context.Context, authority ed25519.PrivateKey, active bool) (*Result, error) {
	return c.submit(ctx, "SetVaultActive", []ed25519.PrivateKey{authority}, bagel.NewSetVaultActiveInstruction(
		&bagel.SetVaultActiveInstructionAccounts{
			Authority:   authority.Public().(ed25519.PublicKey),
			MasterVault: c.masterVault,
		},
		&bagel.SetVaultActiveInstructionArgs{IsActive: active},
	))
}

func (c *Client) CloseVault(ctx context.Context, authority ed25519.PrivateKey) (*Result, error) {
	position, _, err := bagel.GetYieldPositionAddress(c.masterVault)
	if err != nil {
		return nil, err
	}

	return c.submit(ctx, "CloseVault", []ed25519.PrivateKey{authority}, bagel.NewCloseVaultInstruction(
		&bagel.CloseVaultInstructionAccounts{
			Authority:     authority.Public().(ed25519.PublicKey),
			MasterVault:   c.masterVault,
			YieldPosition: position,
		},
	))
}

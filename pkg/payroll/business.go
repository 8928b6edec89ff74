package payroll

import (
	"context"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/bagel-payroll/bagel-server/pkg/solana/bagel"
	"github.com/bagel-payroll/bagel-server/pkg/solana/inco"
)

var (
	ErrTokenAccountsRequired = errors.New("vault uses confidential tokens and token accounts were not provided")
)

// TokenAccounts are the confidential token accounts value moves between when
// the vault has a confidential mint configured.
type TokenAccounts struct {
	// Held by the master vault
	Vault ed25519.PublicKey

	// Held by the depositing employer or the withdrawing employee
	Wallet ed25519.PublicKey
}

// RegisterBusiness creates a business entry at the vault's next index. The
// vault authority co-signs as the onboarding gate.
func (c *Client) RegisterBusiness(ctx context.Context, employer, authority ed25519.PrivateKey, employerId uint64) (ed25519.PublicKey, *Result, error) {
	vault, err := c.GetMasterVault(ctx)
	if err != nil {
		return nil, nil, err
	}

	business, _, err := bagel.GetBusinessEntryAddress(c.masterVault, vault.NextBusinessIndex)
	if err != nil {
		return nil, nil, err
	}

	encryptedId, err := c.encrypt(employerId)
	if err != nil {
		return nil, nil, err
	}

	result, err := c.submit(ctx, "RegisterBusiness", []ed25519.PrivateKey{employer, authority}, bagel.NewRegisterBusinessInstruction(
		&bagel.RegisterBusinessInstructionAccounts{
			Employer:      employer.Public().(ed25519.PublicKey),
			Authority:     authority.Public().(ed25519.PublicKey),
			MasterVault:   c.masterVault,
			BusinessEntry: business,
		},
		&bagel.RegisterBusinessInstructionArgs{
			EncryptedEmployerId: encryptedId,
		},
	))
	if err != nil {
		return nil, nil, err
	}
	return business, result, nil
}

// Deposit funds a business. Lamports move unless the vault has a confidential
// mint configured, in which case tokens are required.
func (c *Client) Deposit(ctx context.Context, depositor ed25519.PrivateKey, business ed25519.PublicKey, amount uint64, tokens *TokenAccounts) (*Result, error) {
	vault, err := c.GetMasterVault(ctx)
	if err != nil {
		return nil, err
	}

	encryptedAmount, err := c.encrypt(amount)
	if err != nil {
		return nil, err
	}

	accounts := &bagel.DepositInstructionAccounts{
		Depositor:     depositor.Public().(ed25519.PublicKey),
		MasterVault:   c.masterVault,
		BusinessEntry: business,
	}
	if vault.IsConfidential() {
		if tokens == nil {
			return nil, ErrTokenAccountsRequired
		}
		accounts.IncoTokenProgram = inco.TOKEN_PROGRAM_ID
		accounts.DepositorTokenAccount = tokens.Wallet
		accounts.MasterVaultTokenAccount = tokens.Vault
	}

	return c.submit(ctx, "Deposit", []ed25519.PrivateKey{depositor}, bagel.NewDepositInstruction(
		accounts,
		&bagel.DepositInstructionArgs{
			Amount:          amount,
			EncryptedAmount: encryptedAmount,
		},
	))
}

func (c *Client) SetBusinessActive(ctx context.Context, employer ed25519.PrivateKey, business ed25519.PublicKey, active bool) (*Result, error) {
	return c.submit(ctx, "SetBusinessActive", []ed25519.PrivateKey{employer}, bagel.NewSetBusinessActiveInstruction(
		&bagel.SetBusinessActiveInstructionAccounts{
			Employer:      employer.Public().(ed25519.PublicKey),
			MasterVault:   c.masterVault,
			BusinessEntry: business,
		},
		&bagel.SetBusinessActiveInstructionArgs{
			IsActive: active,
		},
	))
}

// CloseBusinessEntry tears down a business once every employee it ever had is
// deactivated or closed.
func (c *Client) CloseBusinessEntry(ctx context.Context, employer ed25519.PrivateKey, business ed25519.PublicKey) (*Result, error) {
	entry, err := c.GetBusinessEntry(ctx, business)
	if err != nil {
		return nil, err
	}

	employees := make([]ed25519.PublicKey, 0, entry.NextEmployeeIndex)
	for i := uint64(0); i < entry.NextEmployeeIndex; i++ {
		employee, _, err := bagel.GetEmployeeEntryAddress(business, i)
		if err != nil {
			return nil, err
		}
		employees = append(employees, employee)
	}

	return c.submit(ctx, "CloseBusinessEntry", []ed25519.PrivateKey{employer}, bagel.NewCloseBusinessEntryInstruction(
		&bagel.CloseBusinessEntryInstructionAccounts{
			Employer:        employer.Public().(ed25519.PublicKey),
			MasterVault:     c.masterVault,
			BusinessEntry:   business,
			EmployeeEntries: employees,
		},
	))
}

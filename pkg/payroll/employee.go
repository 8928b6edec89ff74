package payroll

import (
	"context"
	"crypto/ed25519"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	"github.com/bagel-payroll/bagel-server/pkg/solana/bagel"
	"github.com/bagel-payroll/bagel-server/pkg/solana/inco"
	"github.com/bagel-payroll/bagel-server/pkg/solana/shadowwire"
)

// AddEmployee creates an employee entry at the business's next index, bound to
// the wallet that will be allowed to withdraw.
func (c *Client) AddEmployee(
	ctx context.Context,
	employer ed25519.PrivateKey,
	business ed25519.PublicKey,
	wallet ed25519.PublicKey,
	employeeId uint64,
	salaryPerSecond uint64,
) (ed25519.PublicKey, *Result, error) {
	businessEntry, err := c.GetBusinessEntry(ctx, business)
	if err != nil {
		return nil, nil, err
	}

	entry, _, err := bagel.GetEmployeeEntryAddress(business, businessEntry.NextEmployeeIndex)
	if err != nil {
		return nil, nil, err
	}

	encryptedId, err := c.encrypt(employeeId)
	if err != nil {
		return nil, nil, err
	}
	encryptedSalary, err := c.encrypt(salaryPerSecond)
	if err != nil {
		return nil, nil, err
	}

	result, err := c.submit(ctx, "AddEmployee", []ed25519.PrivateKey{employer}, bagel.NewAddEmployeeInstruction(
		&bagel.AddEmployeeInstructionAccounts{
			Employer:      employer.Public().(ed25519.PublicKey),
			MasterVault:   c.masterVault,
			BusinessEntry: business,
			EmployeeEntry: entry,
		},
		&bagel.AddEmployeeInstructionArgs{
			EncryptedEmployeeId: encryptedId,
			EncryptedSalary:     encryptedSalary,
			EmployeeCommitment:  bagel.EmployeeCommitment(entry, wallet),
		},
	))
	if err != nil {
		return nil, nil, err
	}
	return entry, result, nil
}

func (c *Client) accrueInstruction(cranker, business, entry ed25519.PublicKey) solana.Instruction {
	return bagel.NewAccrueInstruction(&bagel.AccrueInstructionAccounts{
		Cranker:       cranker,
		MasterVault:   c.masterVault,
		BusinessEntry: business,
		EmployeeEntry: entry,
	})
}

// Accrue folds the salary earned since the employee's last action into the
// encrypted accrued balance. Anyone can crank it.
func (c *Client) Accrue(ctx context.Context, cranker ed25519.PrivateKey, business, entry ed25519.PublicKey) (*Result, error) {
	return c.submit(ctx, "Accrue", []ed25519.PrivateKey{cranker}, c.accrueInstruction(cranker.Public().(ed25519.PublicKey), business, entry))
}

// AccrueBatch cranks several employee entries in a single transaction. The
// batch lands or fails as a whole.
func (c *Client) AccrueBatch(ctx context.Context, cranker ed25519.PrivateKey, employees []*EmployeeRecord) (*Result, error) {
	if len(employees) == 0 {
		return nil, nil
	}

	instructions := make([]solana.Instruction, len(employees))
	for i, employee := range employees {
		instructions[i] = c.accrueInstruction(cranker.Public().(ed25519.PublicKey), employee.Entry.BusinessEntry, employee.Address)
	}
	return c.submit(ctx, "AccrueBatch", []ed25519.PrivateKey{cranker}, instructions...)
}

// WithdrawalOptions routes a withdrawal from a confidential vault.
type WithdrawalOptions struct {
	Tokens *TokenAccounts

	// Private sends the transfer through the zero knowledge transfer layer
	Private bool
}

// RequestWithdrawal pays out part of the employee's accrued balance to the
// wallet bound to the entry.
func (c *Client) RequestWithdrawal(
	ctx context.Context,
	employee ed25519.PrivateKey,
	business ed25519.PublicKey,
	entry ed25519.PublicKey,
	amount uint64,
	opts *WithdrawalOptions,
) (*Result, error) {
	vault, err := c.GetMasterVault(ctx)
	if err != nil {
		return nil, err
	}

	encryptedAmount, err := c.encrypt(amount)
	if err != nil {
		return nil, err
	}

	accounts := &bagel.RequestWithdrawalInstructionAccounts{
		Withdrawer:    employee.Public().(ed25519.PublicKey),
		MasterVault:   c.masterVault,
		BusinessEntry: business,
		EmployeeEntry: entry,
	}
	args := &bagel.RequestWithdrawalInstructionArgs{
		Amount:          amount,
		EncryptedAmount: encryptedAmount,
	}

	if vault.IsConfidential() {
		if opts == nil || opts.Tokens == nil {
			return nil, ErrTokenAccountsRequired
		}
		accounts.IncoTokenProgram = inco.TOKEN_PROGRAM_ID
		accounts.MasterVaultTokenAccount = opts.Tokens.Vault
		accounts.EmployeeTokenAccount = opts.Tokens.Wallet

		if opts.Private {
			accounts.ShadowwireProgram = shadowwire.PROGRAM_ID
			args.UseShadowwire = true
			args.Proof = shadowwire.NewMockProof(encryptedAmount)
		}
	}

	return c.submit(ctx, "RequestWithdrawal", []ed25519.PrivateKey{employee}, bagel.NewRequestWithdrawalInstruction(accounts, args))
}

func (c *Client) UpdateSalary(ctx context.Context, employer ed25519.PrivateKey, business, entry ed25519.PublicKey, salaryPerSecond uint64) (*Result, error) {
	encryptedSalary, err := c.encrypt(salaryPerSecond)
	if err != nil {
		return nil, err
	}

	return c.submit(ctx, "UpdateSalary", []ed25519.PrivateKey{employer}, bagel.NewUpdateSalaryInstruction(
		&bagel.UpdateSalaryInstructionAccounts{
			Employer:      employer.Public().(ed25519.PublicKey),
			MasterVault:   c.masterVault,
			BusinessEntry: business,
			EmployeeEntry: entry,
		},
		&bagel.UpdateSalaryInstructionArgs{EncryptedSalary: encryptedSalary},
	))
}

func (c *Client) DeactivateEmployee(ctx context.Context, employer ed25519.PrivateKey, business, entry ed25519.PublicKey) (*Result, error) {
	return c.submit(ctx, "DeactivateEmployee", []ed25519.PrivateKey{employer}, bagel.NewDeactivateEmployeeInstruction(
		&bagel.DeactivateEmployeeInstructionAccounts{
			Employer:      employer.Public().(ed25519.PublicKey),
			MasterVault:   c.masterVault,
			BusinessEntry: business,
			EmployeeEntry: entry,
		},
	))
}

func (c *Client) CloseEmployeeEntry(ctx context.Context, employer ed25519.PrivateKey, business, entry ed25519.PublicKey) (*Result, error) {
	return c.submit(ctx, "CloseEmployeeEntry", []ed25519.PrivateKey{employer}, bagel.NewCloseEmployeeEntryInstruction(
		&bagel.CloseEmployeeEntryInstructionAccounts{
			Employer:      employer.Public().(ed25519.PublicKey),
			MasterVault:   c.masterVault,
			BusinessEntry: business,
			EmployeeEntry: entry,
		},
	))
}

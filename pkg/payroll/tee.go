package payroll

import (
	"context"
	"crypto/ed25519"

	"github.com/bagel-payroll/bagel-server/pkg/solana/bagel"
	"github.com/bagel-payroll/bagel-server/pkg/solana/magicblock"
)

// DelegateToTee hands an employee entry to a TEE validator. A nil validator
// selects the default one.
func (c *Client) DelegateToTee(ctx context.Context, employer ed25519.PrivateKey, business, entry, validator ed25519.PublicKey) (*Result, error) {
	record, _, err := magicblock.GetDelegationRecordAddress(entry)
	if err != nil {
		return nil, err
	}

	return c.submit(ctx, "DelegateToTee", []ed25519.PrivateKey{employer}, bagel.NewDelegateToTeeInstruction(
		&bagel.DelegateToTeeInstructionAccounts{
			Payer:            employer.Public().(ed25519.PublicKey),
			MasterVault:      c.masterVault,
			BusinessEntry:    business,
			EmployeeEntry:    entry,
			DelegationRecord: record,
			Validator:        validator,
		},
	))
}

// CommitFromTee writes validator computed state back to the base layer. The
// entry returns to the payroll program when undelegate is set.
func (c *Client) CommitFromTee(
	ctx context.Context,
	validator ed25519.PrivateKey,
	business ed25519.PublicKey,
	entry ed25519.PublicKey,
	state *bagel.EmployeeEntry,
	undelegate bool,
) (*Result, error) {
	record, _, err := magicblock.GetDelegationRecordAddress(entry)
	if err != nil {
		return nil, err
	}

	return c.submit(ctx, "CommitFromTee", []ed25519.PrivateKey{validator}, bagel.NewCommitFromTeeInstruction(
		&bagel.CommitFromTeeInstructionAccounts{
			Validator:        validator.Public().(ed25519.PublicKey),
			MasterVault:      c.masterVault,
			BusinessEntry:    business,
			EmployeeEntry:    entry,
			DelegationRecord: record,
		},
		&bagel.CommitFromTeeInstructionArgs{
			NewState:   state.Marshal(),
			Undelegate: undelegate,
		},
	))
}

package magicblock_test

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagel-payroll/bagel-server/pkg/solana/bagel"
	"github.com/bagel-payroll/bagel-server/pkg/solana/magicblock"
	"github.com/bagel-payroll/bagel-server/pkg/solana/system"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
	"github.com/bagel-payroll/bagel-server/pkg/testutil"
)

const stateSize = 16

type testEnv struct {
	d *testutil.Devnet

	payer     ed25519.PrivateKey
	delegated ed25519.PrivateKey
	validator ed25519.PrivateKey
	record    ed25519.PublicKey
}

// setup creates an account already assigned to the delegation program, the
// way an owner program hands over a PDA before delegating it.
func setup(t *testing.T) *testEnv {
	d := testutil.NewDevnet(t)

	env := &testEnv{
		d:         d,
		payer:     d.Fund(t, 1_000_000_000),
		delegated: testutil.GenerateSolanaKeypair(t),
		validator: d.Fund(t, 1_000_000_000),
	}

	d.MustSubmit(t, []ed25519.PrivateKey{env.payer, env.delegated}, system.CreateAccount(
		testutil.PublicKey(env.payer),
		testutil.PublicKey(env.delegated),
		magicblock.PROGRAM_ID,
		d.Bank.Rent().MinimumBalance(stateSize),
		stateSize,
	))

	record, _, err := magicblock.GetDelegationRecordAddress(testutil.PublicKey(env.delegated))
	require.NoError(t, err)
	env.record = record
	return env
}

func (e *testEnv) delegate(t *testing.T) *svm.TxResult {
	return e.d.Submit(t, []ed25519.PrivateKey{e.payer, e.delegated}, magicblock.NewDelegateInstruction(
		&magicblock.DelegateInstructionAccounts{
			Payer:            testutil.PublicKey(e.payer),
			DelegatedAccount: testutil.PublicKey(e.delegated),
			OwnerProgram:     bagel.PROGRAM_ID,
			DelegationRecord: e.record,
		},
		&magicblock.DelegateInstructionArgs{
			CommitFrequency: magicblock.DefaultCommitFrequency,
			Validator:       testutil.PublicKey(e.validator),
		},
	))
}

func (e *testEnv) commit(t *testing.T, signer ed25519.PrivateKey, state []byte, undelegate bool) *svm.TxResult {
	return e.d.Submit(t, []ed25519.PrivateKey{signer}, magicblock.NewCommitInstruction(
		&magicblock.CommitInstructionAccounts{
			Validator:        testutil.PublicKey(signer),
			DelegatedAccount: testutil.PublicKey(e.delegated),
			DelegationRecord: e.record,
			OwnerProgram:     bagel.PROGRAM_ID,
		},
		&magicblock.CommitInstructionArgs{
			NewState:   state,
			Undelegate: undelegate,
		},
	))
}

func TestDelegateAndCommit(t *testing.T) {
	env := setup(t)

	result := env.delegate(t)
	require.Nil(t, result.Err)

	account := env.d.GetAccount(t, env.record)
	require.NotNil(t, account)
	assert.EqualValues(t, magicblock.PROGRAM_ID, account.Owner)

	var record magicblock.DelegationRecord
	require.NoError(t, record.Unmarshal(account.Data))
	assert.EqualValues(t, testutil.PublicKey(env.delegated), record.DelegatedAccount)
	assert.EqualValues(t, bagel.PROGRAM_ID, record.OwnerProgram)
	assert.EqualValues(t, testutil.PublicKey(env.validator), record.Validator)
	assert.Equal(t, magicblock.DefaultCommitFrequency, record.CommitFrequency)
	assert.Equal(t, env.d.Clock.Now().Unix(), record.DelegatedAt)

	state := make([]byte, stateSize)
	for i := range state {
		state[i] = byte(i)
	}

	require.Nil(t, env.commit(t, env.validator, state, false).Err)
	delegated := env.d.GetAccount(t, testutil.PublicKey(env.delegated))
	assert.Equal(t, state, delegated.Data)
	assert.EqualValues(t, magicblock.PROGRAM_ID, delegated.Owner)

	validatorBefore := env.d.Balance(t, testutil.PublicKey(env.validator))
	recordLamports := env.d.Balance(t, env.record)

	result = env.commit(t, env.validator, state, true)
	require.Nil(t, result.Err)

	delegated = env.d.GetAccount(t, testutil.PublicKey(env.delegated))
	assert.EqualValues(t, bagel.PROGRAM_ID, delegated.Owner)
	assert.Nil(t, env.d.GetAccount(t, env.record))
	assert.Equal(t, validatorBefore+recordLamports-result.Fee, env.d.Balance(t, testutil.PublicKey(env.validator)))
}

func TestDelegate_Validation(t *testing.T) {
	env := setup(t)
	require.Nil(t, env.delegate(t).Err)

	// Already delegated
	testutil.AssertCustomError(t, env.delegate(t), system.ErrorAccountAlreadyInUse)

	unassigned := testutil.GenerateSolanaKeypair(t)
	record, _, err := magicblock.GetDelegationRecordAddress(testutil.PublicKey(unassigned))
	require.NoError(t, err)
	env.d.MustSubmit(t, []ed25519.PrivateKey{env.payer, unassigned}, system.CreateAccount(
		testutil.PublicKey(env.payer),
		testutil.PublicKey(unassigned),
		system.SystemAccount,
		env.d.Bank.Rent().MinimumBalance(stateSize),
		stateSize,
	))

	result := env.d.Submit(t, []ed25519.PrivateKey{env.payer, unassigned}, magicblock.NewDelegateInstruction(
		&magicblock.DelegateInstructionAccounts{
			Payer:            testutil.PublicKey(env.payer),
			DelegatedAccount: testutil.PublicKey(unassigned),
			OwnerProgram:     bagel.PROGRAM_ID,
			DelegationRecord: record,
		},
		&magicblock.DelegateInstructionArgs{
			CommitFrequency: magicblock.DefaultCommitFrequency,
			Validator:       testutil.PublicKey(env.validator),
		},
	))
	testutil.AssertInstructionError(t, result, svm.ErrIncorrectProgramID)
}

func TestCommit_Validation(t *testing.T) {
	env := setup(t)
	require.Nil(t, env.delegate(t).Err)

	outsider := env.d.Fund(t, 1_000_000_000)
	testutil.AssertInstructionError(t, env.commit(t, outsider, make([]byte, stateSize), false), svm.ErrInvalidArgument)
	testutil.AssertInstructionError(t, env.commit(t, env.validator, make([]byte, stateSize+1), false), svm.ErrInvalidArgument)

	delegated := env.d.GetAccount(t, testutil.PublicKey(env.delegated))
	assert.Equal(t, make([]byte, stateSize), delegated.Data)
}

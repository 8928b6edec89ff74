package bagel_test

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	"github.com/bagel-payroll/bagel-server/pkg/solana/bagel"
	"github.com/bagel-payroll/bagel-server/pkg/solana/inco"
	"github.com/bagel-payroll/bagel-server/pkg/solana/magicblock"
	"github.com/bagel-payroll/bagel-server/pkg/solana/shadowwire"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
	"github.com/bagel-payroll/bagel-server/pkg/testutil"
)

const initialFunds = 10_000_000_000

type testEnv struct {
	d *testutil.Devnet

	authority ed25519.PrivateKey
	employer  ed25519.PrivateKey
	employee  ed25519.PrivateKey

	vault ed25519.PublicKey
}

func setup(t *testing.T) *testEnv {
	d := testutil.NewDevnet(t)

	env := &testEnv{
		d:         d,
		authority: d.Fund(t, initialFunds),
		employer:  d.Fund(t, initialFunds),
		employee:  d.Fund(t, initialFunds),
	}

	vault, _, err := bagel.GetMasterVaultAddress()
	require.NoError(t, err)
	env.vault = vault

	d.MustSubmit(t, []ed25519.PrivateKey{env.authority}, bagel.NewInitializeVaultInstruction(&bagel.InitializeVaultInstructionAccounts{
		Authority:   testutil.PublicKey(env.authority),
		MasterVault: vault,
	}))
	return env
}

func (e *testEnv) businessAddress(t *testing.T, index uint64) ed25519.PublicKey {
	address, _, err := bagel.GetBusinessEntryAddress(e.vault, index)
	require.NoError(t, err)
	return address
}

func (e *testEnv) employeeAddress(t *testing.T, business ed25519.PublicKey, index uint64) ed25519.PublicKey {
	address, _, err := bagel.GetEmployeeEntryAddress(business, index)
	require.NoError(t, err)
	return address
}

func (e *testEnv) registerBusiness(t *testing.T, employer ed25519.PrivateKey) ed25519.PublicKey {
	_, vault := e.d.MasterVault(t)
	business := e.businessAddress(t, vault.NextBusinessIndex)

	e.d.MustSubmit(t, []ed25519.PrivateKey{employer, e.authority}, e.registerBusinessInstruction(t, employer, business))
	return business
}

func (e *testEnv) registerBusinessInstruction(t *testing.T, employer ed25519.PrivateKey, business ed25519.PublicKey) solana.Instruction {
	return bagel.NewRegisterBusinessInstruction(
		&bagel.RegisterBusinessInstructionAccounts{
			Employer:      testutil.PublicKey(employer),
			Authority:     testutil.PublicKey(e.authority),
			MasterVault:   e.vault,
			BusinessEntry: business,
		},
		&bagel.RegisterBusinessInstructionArgs{
			EncryptedEmployerId: e.d.Encrypt(t, 1234),
		},
	)
}

func (e *testEnv) deposit(t *testing.T, business ed25519.PublicKey, amount uint64) {
	e.d.MustSubmit(t, []ed25519.PrivateKey{e.employer}, bagel.NewDepositInstruction(
		&bagel.DepositInstructionAccounts{
			Depositor:     testutil.PublicKey(e.employer),
			MasterVault:   e.vault,
			BusinessEntry: business,
		},
		&bagel.DepositInstructionArgs{
			Amount:          amount,
			EncryptedAmount: e.d.Encrypt(t, amount),
		},
	))
}

func (e *testEnv) addEmployee(t *testing.T, business ed25519.PublicKey, wallet ed25519.PrivateKey, salary uint64) ed25519.PublicKey {
	entry := e.employeeAddress(t, business, e.d.BusinessEntry(t, business).NextEmployeeIndex)

	e.d.MustSubmit(t, []ed25519.PrivateKey{e.employer}, bagel.NewAddEmployeeInstruction(
		&bagel.AddEmployeeInstructionAccounts{
			Employer:      testutil.PublicKey(e.employer),
			MasterVault:   e.vault,
			BusinessEntry: business,
			EmployeeEntry: entry,
		},
		&bagel.AddEmployeeInstructionArgs{
			EncryptedEmployeeId: e.d.Encrypt(t, 42),
			EncryptedSalary:     e.d.Encrypt(t, salary),
			EmployeeCommitment:  bagel.EmployeeCommitment(entry, testutil.PublicKey(wallet)),
		},
	))
	return entry
}

func (e *testEnv) accrueInstruction(business, entry ed25519.PublicKey) solana.Instruction {
	return bagel.NewAccrueInstruction(&bagel.AccrueInstructionAccounts{
		Cranker:       testutil.PublicKey(e.authority),
		MasterVault:   e.vault,
		BusinessEntry: business,
		EmployeeEntry: entry,
	})
}

func (e *testEnv) closeVaultInstruction(t *testing.T, signer ed25519.PrivateKey) solana.Instruction {
	position, _, err := bagel.GetYieldPositionAddress(e.vault)
	require.NoError(t, err)

	return bagel.NewCloseVaultInstruction(&bagel.CloseVaultInstructionAccounts{
		Authority:     testutil.PublicKey(signer),
		MasterVault:   e.vault,
		YieldPosition: position,
	})
}

func (e *testEnv) withdrawInstruction(t *testing.T, wallet ed25519.PrivateKey, business, entry ed25519.PublicKey, amount uint64) solana.Instruction {
	return bagel.NewRequestWithdrawalInstruction(
		&bagel.RequestWithdrawalInstructionAccounts{
			Withdrawer:    testutil.PublicKey(wallet),
			MasterVault:   e.vault,
			BusinessEntry: business,
			EmployeeEntry: entry,
		},
		&bagel.RequestWithdrawalInstructionArgs{
			Amount:          amount,
			EncryptedAmount: e.d.Encrypt(t, amount),
		},
	)
}

func TestInitializeVault(t *testing.T) {
	env := setup(t)

	_, vault := env.d.MasterVault(t)
	assert.EqualValues(t, testutil.PublicKey(env.authority), vault.Authority)
	assert.True(t, vault.IsActive)
	assert.EqualValues(t, 0, vault.TotalBalance)
	assert.EqualValues(t, 0, vault.NextBusinessIndex)
	assert.False(t, vault.IsConfidential())
	assert.EqualValues(t, 0, env.d.Plaintext(t, vault.EncryptedBusinessCount))
	assert.EqualValues(t, 0, env.d.Plaintext(t, vault.EncryptedEmployeeCount))

	account := env.d.GetAccount(t, env.vault)
	assert.Len(t, account.Data, bagel.MasterVaultSize)
	assert.True(t, env.d.Bank.Rent().IsExempt(account.Lamports, len(account.Data)))

	// The vault PDA already exists
	env.d.Clock.Advance(time.Second)
	result := env.d.Submit(t, []ed25519.PrivateKey{env.employer}, bagel.NewInitializeVaultInstruction(&bagel.InitializeVaultInstructionAccounts{
		Authority:   testutil.PublicKey(env.employer),
		MasterVault: env.vault,
	}))
	require.NotNil(t, result.Err)

	_, vault = env.d.MasterVault(t)
	assert.EqualValues(t, testutil.PublicKey(env.authority), vault.Authority)
}

func TestRegisterBusiness_IndicesAreMonotonic(t *testing.T) {
	env := setup(t)

	for i := uint64(0); i < 3; i++ {
		employer := env.d.Fund(t, initialFunds)
		business := env.registerBusiness(t, employer)
		assert.EqualValues(t, env.businessAddress(t, i), business)

		entry := env.d.BusinessEntry(t, business)
		assert.Equal(t, i, entry.EntryIndex)
		assert.True(t, entry.IsActive)
		assert.EqualValues(t, 0, entry.NextEmployeeIndex)
		assert.Equal(t, bagel.EmployerCommitment(business, testutil.PublicKey(employer)), entry.EmployerCommitment)
		assert.EqualValues(t, 1234, env.d.Plaintext(t, entry.EncryptedEmployerId))
		assert.EqualValues(t, 0, env.d.Plaintext(t, entry.EncryptedBalance))

		_, vault := env.d.MasterVault(t)
		assert.Equal(t, i+1, vault.NextBusinessIndex)
		assert.Equal(t, i+1, env.d.Plaintext(t, vault.EncryptedBusinessCount))
	}

	// Reusing a consumed index
	result := env.d.Submit(t, []ed25519.PrivateKey{env.employer, env.authority}, env.registerBusinessInstruction(t, env.employer, env.businessAddress(t, 1)))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodeInvalidState))

	// Skipping ahead
	result = env.d.Submit(t, []ed25519.PrivateKey{env.employer, env.authority}, env.registerBusinessInstruction(t, env.employer, env.businessAddress(t, 5)))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodeInvalidState))

	_, vault := env.d.MasterVault(t)
	assert.EqualValues(t, 3, vault.NextBusinessIndex)
}

func TestRegisterBusiness_Validation(t *testing.T) {
	env := setup(t)
	business := env.businessAddress(t, 0)

	outsider := env.d.Fund(t, initialFunds)
	ix := bagel.NewRegisterBusinessInstruction(
		&bagel.RegisterBusinessInstructionAccounts{
			Employer:      testutil.PublicKey(env.employer),
			Authority:     testutil.PublicKey(outsider),
			MasterVault:   env.vault,
			BusinessEntry: business,
		},
		&bagel.RegisterBusinessInstructionArgs{
			EncryptedEmployerId: env.d.Encrypt(t, 1),
		},
	)
	result := env.d.Submit(t, []ed25519.PrivateKey{env.employer, outsider}, ix)
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodeUnauthorized))

	ix = bagel.NewRegisterBusinessInstruction(
		&bagel.RegisterBusinessInstructionAccounts{
			Employer:      testutil.PublicKey(env.employer),
			Authority:     testutil.PublicKey(env.authority),
			MasterVault:   env.vault,
			BusinessEntry: business,
		},
		&bagel.RegisterBusinessInstructionArgs{},
	)
	result = env.d.Submit(t, []ed25519.PrivateKey{env.employer, env.authority}, ix)
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodeInvalidCiphertext))

	assert.Nil(t, env.d.GetAccount(t, business))
	_, vault := env.d.MasterVault(t)
	assert.EqualValues(t, 0, vault.NextBusinessIndex)
}

func TestDeposit_Lamports(t *testing.T) {
	env := setup(t)
	business := env.registerBusiness(t, env.employer)

	before := env.d.Balance(t, env.vault)
	env.deposit(t, business, 500)
	env.deposit(t, business, 250)

	assert.EqualValues(t, before+750, env.d.Balance(t, env.vault))
	_, vault := env.d.MasterVault(t)
	assert.EqualValues(t, 750, vault.TotalBalance)
	assert.EqualValues(t, 750, env.d.Plaintext(t, env.d.BusinessEntry(t, business).EncryptedBalance))

	result := env.d.Submit(t, []ed25519.PrivateKey{env.employer}, bagel.NewDepositInstruction(
		&bagel.DepositInstructionAccounts{
			Depositor:     testutil.PublicKey(env.employer),
			MasterVault:   env.vault,
			BusinessEntry: business,
		},
		&bagel.DepositInstructionArgs{
			Amount:          0,
			EncryptedAmount: env.d.Encrypt(t, 0),
		},
	))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodeInvalidAmount))
}

func TestDeposit_FheFailureRollsBackTransfer(t *testing.T) {
	env := setup(t)
	business := env.registerBusiness(t, env.employer)
	vaultBefore := env.d.Balance(t, env.vault)

	env.d.Lightning.InduceOperationFailures()
	result := env.d.Submit(t, []ed25519.PrivateKey{env.employer}, bagel.NewDepositInstruction(
		&bagel.DepositInstructionAccounts{
			Depositor:     testutil.PublicKey(env.employer),
			MasterVault:   env.vault,
			BusinessEntry: business,
		},
		&bagel.DepositInstructionArgs{
			Amount:          500,
			EncryptedAmount: env.d.Encrypt(t, 500),
		},
	))
	require.NotNil(t, result.Err)
	env.d.Lightning.StopInducingOperationFailures()

	assert.Equal(t, vaultBefore, env.d.Balance(t, env.vault))
	_, vault := env.d.MasterVault(t)
	assert.EqualValues(t, 0, vault.TotalBalance)
	assert.EqualValues(t, 0, env.d.Plaintext(t, env.d.BusinessEntry(t, business).EncryptedBalance))
}

func TestAddEmployee(t *testing.T) {
	env := setup(t)
	business := env.registerBusiness(t, env.employer)

	for i := uint64(0); i < 2; i++ {
		wallet := env.d.Fund(t, initialFunds)
		entry := env.addEmployee(t, business, wallet, 10+i)
		assert.EqualValues(t, env.employeeAddress(t, business, i), entry)

		employee := env.d.EmployeeEntry(t, entry)
		assert.Equal(t, i, employee.EmployeeIndex)
		assert.EqualValues(t, business, employee.BusinessEntry)
		assert.True(t, employee.IsActive)
		assert.Equal(t, env.d.Clock.Now().Unix(), employee.LastAction)
		assert.Equal(t, 10+i, env.d.Plaintext(t, employee.EncryptedSalary))
		assert.EqualValues(t, 0, env.d.Plaintext(t, employee.EncryptedAccrued))
	}

	entry := env.d.BusinessEntry(t, business)
	assert.EqualValues(t, 2, entry.NextEmployeeIndex)
	assert.EqualValues(t, 2, env.d.Plaintext(t, entry.EncryptedEmployeeCount))
	_, vault := env.d.MasterVault(t)
	assert.EqualValues(t, 2, env.d.Plaintext(t, vault.EncryptedEmployeeCount))
}

func TestAddEmployee_RequiresEmployer(t *testing.T) {
	env := setup(t)
	business := env.registerBusiness(t, env.employer)

	impostor := env.d.Fund(t, initialFunds)
	entry := env.employeeAddress(t, business, 0)
	result := env.d.Submit(t, []ed25519.PrivateKey{impostor}, bagel.NewAddEmployeeInstruction(
		&bagel.AddEmployeeInstructionAccounts{
			Employer:      testutil.PublicKey(impostor),
			MasterVault:   env.vault,
			BusinessEntry: business,
			EmployeeEntry: entry,
		},
		&bagel.AddEmployeeInstructionArgs{
			EncryptedEmployeeId: env.d.Encrypt(t, 1),
			EncryptedSalary:     env.d.Encrypt(t, 1),
			EmployeeCommitment:  bagel.EmployeeCommitment(entry, testutil.PublicKey(env.employee)),
		},
	))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodeIdentityVerificationFailed))

	result = env.d.Submit(t, []ed25519.PrivateKey{env.employer}, bagel.NewAddEmployeeInstruction(
		&bagel.AddEmployeeInstructionAccounts{
			Employer:      testutil.PublicKey(env.employer),
			MasterVault:   env.vault,
			BusinessEntry: business,
			EmployeeEntry: entry,
		},
		&bagel.AddEmployeeInstructionArgs{
			EncryptedEmployeeId: env.d.Encrypt(t, 1),
			EncryptedSalary:     env.d.Encrypt(t, 1),
		},
	))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodeIdentityVerificationFailed))

	assert.Nil(t, env.d.GetAccount(t, entry))
}

func TestAccrue(t *testing.T) {
	env := setup(t)
	business := env.registerBusiness(t, env.employer)
	entry := env.addEmployee(t, business, env.employee, 3)
	start := env.d.Clock.Now().Unix()

	// Nothing elapsed
	env.d.MustSubmit(t, []ed25519.PrivateKey{env.authority}, env.accrueInstruction(business, entry))
	employee := env.d.EmployeeEntry(t, entry)
	assert.EqualValues(t, 0, env.d.Plaintext(t, employee.EncryptedAccrued))
	assert.Equal(t, start, employee.LastAction)

	env.d.Clock.Advance(100 * time.Second)
	env.d.MustSubmit(t, []ed25519.PrivateKey{env.authority}, env.accrueInstruction(business, entry))
	employee = env.d.EmployeeEntry(t, entry)
	assert.EqualValues(t, 300, env.d.Plaintext(t, employee.EncryptedAccrued))
	assert.Equal(t, start+100, employee.LastAction)

	env.d.Clock.Advance(10 * time.Second)
	env.d.MustSubmit(t, []ed25519.PrivateKey{env.authority}, env.accrueInstruction(business, entry))
	employee = env.d.EmployeeEntry(t, entry)
	assert.EqualValues(t, 330, env.d.Plaintext(t, employee.EncryptedAccrued))
	assert.Equal(t, start+110, employee.LastAction)
}

func TestRestart_EncryptedStateSurvives(t *testing.T) {
	env := setup(t)
	business := env.registerBusiness(t, env.employer)
	env.deposit(t, business, 500)
	entry := env.addEmployee(t, business, env.employee, 1)

	env.d.Restart(t)

	second := env.registerBusiness(t, env.employer)
	env.deposit(t, second, 100)
	env.deposit(t, business, 250)

	env.d.Clock.Advance(60 * time.Second)
	env.d.MustSubmit(t, []ed25519.PrivateKey{env.authority}, env.accrueInstruction(business, entry))
	env.d.Clock.Advance(60 * time.Second)
	env.d.MustSubmit(t, []ed25519.PrivateKey{env.employee}, env.withdrawInstruction(t, env.employee, business, entry, 50))

	_, vault := env.d.MasterVault(t)
	assert.EqualValues(t, 2, env.d.Plaintext(t, vault.EncryptedBusinessCount))
	assert.EqualValues(t, 1, env.d.Plaintext(t, vault.EncryptedEmployeeCount))
	assert.EqualValues(t, 100, env.d.Plaintext(t, env.d.BusinessEntry(t, second).EncryptedBalance))
	assert.EqualValues(t, 10, env.d.Plaintext(t, env.d.EmployeeEntry(t, entry).EncryptedAccrued))
}

func TestRequestWithdrawal_Lamports(t *testing.T) {
	env := setup(t)
	business := env.registerBusiness(t, env.employer)
	env.deposit(t, business, 500)
	entry := env.addEmployee(t, business, env.employee, 1)
	start := env.d.Clock.Now().Unix()

	env.d.Clock.Advance(60 * time.Second)
	env.d.MustSubmit(t, []ed25519.PrivateKey{env.authority}, env.accrueInstruction(business, entry))
	assert.Equal(t, start+60, env.d.EmployeeEntry(t, entry).LastAction)

	env.d.Clock.Advance(60 * time.Second)
	vaultBefore := env.d.Balance(t, env.vault)
	walletBefore := env.d.Balance(t, testutil.PublicKey(env.employee))

	result := env.d.MustSubmit(t, []ed25519.PrivateKey{env.employee}, env.withdrawInstruction(t, env.employee, business, entry, 50))

	employee := env.d.EmployeeEntry(t, entry)
	assert.Equal(t, start+120, employee.LastAction)
	assert.True(t, employee.IsActive)
	assert.EqualValues(t, 10, env.d.Plaintext(t, employee.EncryptedAccrued))

	assert.Equal(t, vaultBefore-50, env.d.Balance(t, env.vault))
	assert.Equal(t, walletBefore+50-result.Fee, env.d.Balance(t, testutil.PublicKey(env.employee)))
	_, vault := env.d.MasterVault(t)
	assert.EqualValues(t, 450, vault.TotalBalance)

	events := bagel.ParseEventsFromLogs(result.Logs)
	require.Len(t, events, 1)
	withdrawal, ok := events[0].(*bagel.WithdrawalProcessed)
	require.True(t, ok)
	assert.EqualValues(t, 0, withdrawal.BusinessIndex)
	assert.EqualValues(t, 0, withdrawal.EmployeeIndex)
	assert.Equal(t, start+120, withdrawal.Timestamp)
	assert.False(t, withdrawal.ShadowwireEnabled)
}

func TestRequestWithdrawal_TooSoon(t *testing.T) {
	env := setup(t)
	business := env.registerBusiness(t, env.employer)
	env.deposit(t, business, 500)
	entry := env.addEmployee(t, business, env.employee, 1)

	env.d.Clock.Advance(60 * time.Second)
	env.d.MustSubmit(t, []ed25519.PrivateKey{env.authority}, env.accrueInstruction(business, entry))
	before := env.d.EmployeeEntry(t, entry)

	env.d.Clock.Advance(59 * time.Second)
	result := env.d.Submit(t, []ed25519.PrivateKey{env.employee}, env.withdrawInstruction(t, env.employee, business, entry, 10))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodeWithdrawTooSoon))

	assert.Equal(t, before, env.d.EmployeeEntry(t, entry))
	_, vault := env.d.MasterVault(t)
	assert.EqualValues(t, 500, vault.TotalBalance)

	env.d.Clock.Advance(time.Second)
	env.d.MustSubmit(t, []ed25519.PrivateKey{env.employee}, env.withdrawInstruction(t, env.employee, business, entry, 10))
	assert.EqualValues(t, 50, env.d.Plaintext(t, env.d.EmployeeEntry(t, entry).EncryptedAccrued))
}

func TestRequestWithdrawal_MoreThanAccrued(t *testing.T) {
	env := setup(t)
	business := env.registerBusiness(t, env.employer)
	env.deposit(t, business, 500)
	entry := env.addEmployee(t, business, env.employee, 1)

	env.d.Clock.Advance(60 * time.Second)
	env.d.MustSubmit(t, []ed25519.PrivateKey{env.authority}, env.accrueInstruction(business, entry))
	env.d.Clock.Advance(60 * time.Second)

	vaultBefore := env.d.Balance(t, env.vault)
	result := env.d.Submit(t, []ed25519.PrivateKey{env.employee}, env.withdrawInstruction(t, env.employee, business, entry, 61))
	testutil.AssertCustomError(t, result, int(inco.LightningErrorUnderflow))

	assert.Equal(t, vaultBefore, env.d.Balance(t, env.vault))
	assert.EqualValues(t, 60, env.d.Plaintext(t, env.d.EmployeeEntry(t, entry).EncryptedAccrued))
}

func TestRequestWithdrawal_Validation(t *testing.T) {
	env := setup(t)
	business := env.registerBusiness(t, env.employer)
	env.deposit(t, business, 100)
	entry := env.addEmployee(t, business, env.employee, 1)
	env.d.Clock.Advance(time.Hour)

	// Only the committed wallet can withdraw
	result := env.d.Submit(t, []ed25519.PrivateKey{env.employer}, env.withdrawInstruction(t, env.employer, business, entry, 10))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodeIdentityVerificationFailed))

	result = env.d.Submit(t, []ed25519.PrivateKey{env.employee}, env.withdrawInstruction(t, env.employee, business, entry, 0))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodeNoAccruedDough))

	result = env.d.Submit(t, []ed25519.PrivateKey{env.employee}, env.withdrawInstruction(t, env.employee, business, entry, 101))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodeInsufficientFunds))

	_, vault := env.d.MasterVault(t)
	assert.EqualValues(t, 100, vault.TotalBalance)
}

func TestPause(t *testing.T) {
	env := setup(t)
	business := env.registerBusiness(t, env.employer)
	env.deposit(t, business, 100)
	entry := env.addEmployee(t, business, env.employee, 1)

	setActive := func(signer ed25519.PrivateKey, active bool) *svm.TxResult {
		return env.d.Submit(t, []ed25519.PrivateKey{signer}, bagel.NewSetVaultActiveInstruction(
			&bagel.SetVaultActiveInstructionAccounts{
				Authority:   testutil.PublicKey(signer),
				MasterVault: env.vault,
			},
			&bagel.SetVaultActiveInstructionArgs{IsActive: active},
		))
	}

	testutil.AssertCustomError(t, setActive(env.employer, false), int(bagel.ErrorCodeUnauthorized))
	require.Nil(t, setActive(env.authority, false).Err)

	env.d.Clock.Advance(time.Hour)

	result := env.d.Submit(t, []ed25519.PrivateKey{env.authority}, env.accrueInstruction(business, entry))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodePayrollInactive))

	result = env.d.Submit(t, []ed25519.PrivateKey{env.employee}, env.withdrawInstruction(t, env.employee, business, entry, 10))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodePayrollInactive))

	result = env.d.Submit(t, []ed25519.PrivateKey{env.employer, env.authority}, env.registerBusinessInstruction(t, env.employer, env.businessAddress(t, 1)))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodePayrollInactive))

	require.Nil(t, setActive(env.authority, true).Err)
	env.d.MustSubmit(t, []ed25519.PrivateKey{env.authority}, env.accrueInstruction(business, entry))
	assert.EqualValues(t, 3600, env.d.Plaintext(t, env.d.EmployeeEntry(t, entry).EncryptedAccrued))
}

func TestPauseBusiness(t *testing.T) {
	env := setup(t)
	business := env.registerBusiness(t, env.employer)
	env.deposit(t, business, 500)
	entry := env.addEmployee(t, business, env.employee, 1)
	start := env.d.Clock.Now().Unix()

	env.d.Clock.Advance(60 * time.Second)
	env.d.MustSubmit(t, []ed25519.PrivateKey{env.authority}, env.accrueInstruction(business, entry))

	setActive := func(signer ed25519.PrivateKey, active bool) *svm.TxResult {
		return env.d.Submit(t, []ed25519.PrivateKey{signer}, bagel.NewSetBusinessActiveInstruction(
			&bagel.SetBusinessActiveInstructionAccounts{
				Employer:      testutil.PublicKey(signer),
				MasterVault:   env.vault,
				BusinessEntry: business,
			},
			&bagel.SetBusinessActiveInstructionArgs{IsActive: active},
		))
	}

	testutil.AssertCustomError(t, setActive(env.employee, false), int(bagel.ErrorCodeIdentityVerificationFailed))
	testutil.AssertCustomError(t, setActive(env.authority, false), int(bagel.ErrorCodeIdentityVerificationFailed))
	assert.True(t, env.d.BusinessEntry(t, business).IsActive)

	result := setActive(env.employer, false)
	require.Nil(t, result.Err)
	assert.False(t, env.d.BusinessEntry(t, business).IsActive)

	events := bagel.ParseEventsFromLogs(result.Logs)
	require.Len(t, events, 1)
	changed, ok := events[0].(*bagel.BusinessActiveChanged)
	require.True(t, ok)
	assert.EqualValues(t, 0, changed.BusinessIndex)
	assert.False(t, changed.IsActive)
	assert.Equal(t, start+60, changed.Timestamp)

	env.d.Clock.Advance(60 * time.Second)

	result = env.d.Submit(t, []ed25519.PrivateKey{env.employee}, env.withdrawInstruction(t, env.employee, business, entry, 10))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodePayrollInactive))

	result = env.d.Submit(t, []ed25519.PrivateKey{env.authority}, env.accrueInstruction(business, entry))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodePayrollInactive))

	result = env.d.Submit(t, []ed25519.PrivateKey{env.employer}, bagel.NewDepositInstruction(
		&bagel.DepositInstructionAccounts{
			Depositor:     testutil.PublicKey(env.employer),
			MasterVault:   env.vault,
			BusinessEntry: business,
		},
		&bagel.DepositInstructionArgs{Amount: 100, EncryptedAmount: env.d.Encrypt(t, 100)},
	))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodePayrollInactive))

	result = env.d.Submit(t, []ed25519.PrivateKey{env.employer}, bagel.NewUpdateSalaryInstruction(
		&bagel.UpdateSalaryInstructionAccounts{
			Employer:      testutil.PublicKey(env.employer),
			MasterVault:   env.vault,
			BusinessEntry: business,
			EmployeeEntry: entry,
		},
		&bagel.UpdateSalaryInstructionArgs{EncryptedSalary: env.d.Encrypt(t, 5)},
	))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodePayrollInactive))

	result = env.d.Submit(t, []ed25519.PrivateKey{env.employer}, bagel.NewAddEmployeeInstruction(
		&bagel.AddEmployeeInstructionAccounts{
			Employer:      testutil.PublicKey(env.employer),
			MasterVault:   env.vault,
			BusinessEntry: business,
			EmployeeEntry: env.employeeAddress(t, business, 1),
		},
		&bagel.AddEmployeeInstructionArgs{
			EncryptedEmployeeId: env.d.Encrypt(t, 43),
			EncryptedSalary:     env.d.Encrypt(t, 1),
			EmployeeCommitment:  bagel.EmployeeCommitment(env.employeeAddress(t, business, 1), testutil.PublicKey(env.employee)),
		},
	))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodePayrollInactive))

	// Other businesses in the vault are unaffected
	other := env.registerBusiness(t, env.employer)
	env.deposit(t, other, 100)
	assert.EqualValues(t, 100, env.d.Plaintext(t, env.d.BusinessEntry(t, other).EncryptedBalance))

	employee := env.d.EmployeeEntry(t, entry)
	assert.Equal(t, start+60, employee.LastAction)
	assert.EqualValues(t, 60, env.d.Plaintext(t, employee.EncryptedAccrued))
	assert.EqualValues(t, 500, env.d.Plaintext(t, env.d.BusinessEntry(t, business).EncryptedBalance))

	require.Nil(t, setActive(env.employer, true).Err)
	env.d.MustSubmit(t, []ed25519.PrivateKey{env.employee}, env.withdrawInstruction(t, env.employee, business, entry, 50))

	employee = env.d.EmployeeEntry(t, entry)
	assert.Equal(t, start+120, employee.LastAction)
	assert.EqualValues(t, 10, env.d.Plaintext(t, employee.EncryptedAccrued))
	_, vault := env.d.MasterVault(t)
	assert.EqualValues(t, 550, vault.TotalBalance)
}

func TestUpdateSalary(t *testing.T) {
	env := setup(t)
	business := env.registerBusiness(t, env.employer)
	entry := env.addEmployee(t, business, env.employee, 2)
	start := env.d.Clock.Now().Unix()

	env.d.Clock.Advance(10 * time.Second)
	env.d.MustSubmit(t, []ed25519.PrivateKey{env.employer}, bagel.NewUpdateSalaryInstruction(
		&bagel.UpdateSalaryInstructionAccounts{
			Employer:      testutil.PublicKey(env.employer),
			MasterVault:   env.vault,
			BusinessEntry: business,
			EmployeeEntry: entry,
		},
		&bagel.UpdateSalaryInstructionArgs{EncryptedSalary: env.d.Encrypt(t, 5)},
	))

	employee := env.d.EmployeeEntry(t, entry)
	assert.EqualValues(t, 20, env.d.Plaintext(t, employee.EncryptedAccrued))
	assert.EqualValues(t, 5, env.d.Plaintext(t, employee.EncryptedSalary))
	assert.Equal(t, start+10, employee.LastAction)

	env.d.Clock.Advance(10 * time.Second)
	env.d.MustSubmit(t, []ed25519.PrivateKey{env.authority}, env.accrueInstruction(business, entry))
	assert.EqualValues(t, 70, env.d.Plaintext(t, env.d.EmployeeEntry(t, entry).EncryptedAccrued))
}

func TestDeactivateAndClose(t *testing.T) {
	env := setup(t)
	business := env.registerBusiness(t, env.employer)
	first := env.addEmployee(t, business, env.employee, 1)
	second := env.addEmployee(t, business, env.d.Fund(t, initialFunds), 1)

	closeBusiness := func() *svm.TxResult {
		return env.d.Submit(t, []ed25519.PrivateKey{env.employer}, bagel.NewCloseBusinessEntryInstruction(&bagel.CloseBusinessEntryInstructionAccounts{
			Employer:        testutil.PublicKey(env.employer),
			MasterVault:     env.vault,
			BusinessEntry:   business,
			EmployeeEntries: []ed25519.PublicKey{first, second},
		}))
	}
	deactivate := func(entry ed25519.PublicKey) *svm.TxResult {
		return env.d.Submit(t, []ed25519.PrivateKey{env.employer}, bagel.NewDeactivateEmployeeInstruction(&bagel.DeactivateEmployeeInstructionAccounts{
			Employer:      testutil.PublicKey(env.employer),
			MasterVault:   env.vault,
			BusinessEntry: business,
			EmployeeEntry: entry,
		}))
	}
	closeEmployee := func(entry ed25519.PublicKey) *svm.TxResult {
		return env.d.Submit(t, []ed25519.PrivateKey{env.employer}, bagel.NewCloseEmployeeEntryInstruction(&bagel.CloseEmployeeEntryInstructionAccounts{
			Employer:      testutil.PublicKey(env.employer),
			MasterVault:   env.vault,
			BusinessEntry: business,
			EmployeeEntry: entry,
		}))
	}

	testutil.AssertCustomError(t, closeEmployee(first), int(bagel.ErrorCodeInvalidState))
	testutil.AssertCustomError(t, closeBusiness(), int(bagel.ErrorCodeInvalidState))

	require.Nil(t, deactivate(first).Err)
	assert.False(t, env.d.EmployeeEntry(t, first).IsActive)
	testutil.AssertCustomError(t, deactivate(first), int(bagel.ErrorCodeInvalidState))

	env.d.Clock.Advance(time.Hour)
	result := env.d.Submit(t, []ed25519.PrivateKey{env.authority}, env.accrueInstruction(business, first))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodePayrollInactive))

	employerBefore := env.d.Balance(t, testutil.PublicKey(env.employer))
	rent := env.d.Balance(t, first)
	result = closeEmployee(first)
	require.Nil(t, result.Err)
	assert.Nil(t, env.d.GetAccount(t, first))
	assert.Equal(t, employerBefore+rent-result.Fee, env.d.Balance(t, testutil.PublicKey(env.employer)))

	// The second entry is still active
	testutil.AssertCustomError(t, closeBusiness(), int(bagel.ErrorCodeInvalidState))

	require.Nil(t, deactivate(second).Err)
	require.Nil(t, closeBusiness().Err)
	assert.Nil(t, env.d.GetAccount(t, business))

	// Closed indices are never reused
	_, vault := env.d.MasterVault(t)
	assert.EqualValues(t, 1, vault.NextBusinessIndex)
}

func TestCloseVault(t *testing.T) {
	env := setup(t)

	closeVault := func(signer ed25519.PrivateKey) *svm.TxResult {
		return env.d.Submit(t, []ed25519.PrivateKey{signer}, env.closeVaultInstruction(t, signer))
	}

	business := env.registerBusiness(t, env.employer)
	env.deposit(t, business, 10)

	testutil.AssertCustomError(t, closeVault(env.employer), int(bagel.ErrorCodeUnauthorized))
	testutil.AssertCustomError(t, closeVault(env.authority), int(bagel.ErrorCodeInvalidState))

	fresh := setup(t)
	require.Nil(t, fresh.d.Submit(t, []ed25519.PrivateKey{fresh.authority}, fresh.closeVaultInstruction(t, fresh.authority)).Err)
	assert.Nil(t, fresh.d.GetAccount(t, fresh.vault))
}

func TestCloseVault_YieldPrincipalOutstanding(t *testing.T) {
	env := setup(t)
	business := env.registerBusiness(t, env.employer)
	env.deposit(t, business, 900_000)

	position, _, err := bagel.GetYieldPositionAddress(env.vault)
	require.NoError(t, err)
	accounts := &bagel.YieldInstructionAccounts{
		Authority:     testutil.PublicKey(env.authority),
		MasterVault:   env.vault,
		YieldPosition: position,
	}

	// The liquid share has to exist too, not just the lent out share
	result := env.d.Submit(t, []ed25519.PrivateKey{env.authority}, bagel.NewAllocateToYieldInstruction(accounts, &bagel.YieldAmountInstructionArgs{Amount: 1_000_000}))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodeInsufficientFunds))
	assert.Nil(t, env.d.GetAccount(t, position))
	_, vault := env.d.MasterVault(t)
	assert.EqualValues(t, 900_000, vault.TotalBalance)

	env.d.MustSubmit(t, []ed25519.PrivateKey{env.authority}, bagel.NewAllocateToYieldInstruction(accounts, &bagel.YieldAmountInstructionArgs{Amount: 900_000}))

	// Pay out the liquid balance so only the lent out principal remains
	info := env.d.GetAccount(t, env.vault)
	_, vault = env.d.MasterVault(t)
	vault.TotalBalance = 0
	env.d.SetAccount(t, env.vault, bagel.PROGRAM_ID, info.Lamports, vault.Marshal())

	closeVault := func() *svm.TxResult {
		return env.d.Submit(t, []ed25519.PrivateKey{env.authority}, env.closeVaultInstruction(t, env.authority))
	}

	testutil.AssertCustomError(t, closeVault(), int(bagel.ErrorCodeInvalidState))
	assert.NotNil(t, env.d.GetAccount(t, env.vault))

	// A position that isn't the vault's PDA is rejected
	spoofed := env.closeVaultInstruction(t, env.authority)
	spoofed.Accounts[2].PublicKey = testutil.PublicKey(testutil.GenerateSolanaKeypair(t))
	testutil.AssertCustomError(t, env.d.Submit(t, []ed25519.PrivateKey{env.authority}, spoofed), int(bagel.ErrorCodeInvalidState))

	env.d.MustSubmit(t, []ed25519.PrivateKey{env.authority}, bagel.NewReleaseFromYieldInstruction(accounts, &bagel.YieldAmountInstructionArgs{Amount: 810_000}))
	_, vault = env.d.MasterVault(t)
	assert.EqualValues(t, 810_000, vault.TotalBalance)
	testutil.AssertCustomError(t, closeVault(), int(bagel.ErrorCodeInvalidState))
}

func TestMigrateVault(t *testing.T) {
	d := testutil.NewDevnet(t)
	authority := d.Fund(t, initialFunds)

	address, bump, err := bagel.GetMasterVaultAddress()
	require.NoError(t, err)

	legacy := &bagel.MasterVault{
		Authority:              testutil.PublicKey(authority),
		TotalBalance:           0,
		EncryptedBusinessCount: d.Handle(t, 3),
		EncryptedEmployeeCount: d.Handle(t, 7),
		NextBusinessIndex:      3,
		IsActive:               true,
		Bump:                   bump,
	}
	d.SetAccount(
		t,
		address,
		bagel.PROGRAM_ID,
		d.Bank.Rent().MinimumBalance(bagel.LegacyMasterVaultSize),
		legacy.MarshalLegacy(),
	)

	migrate := func(signer ed25519.PrivateKey) *svm.TxResult {
		return d.Submit(t, []ed25519.PrivateKey{signer}, bagel.NewMigrateVaultInstruction(&bagel.MigrateVaultInstructionAccounts{
			Authority:   testutil.PublicKey(signer),
			MasterVault: address,
		}))
	}

	// Unmigrated vaults are rejected by everything else
	business, _, err := bagel.GetBusinessEntryAddress(address, 3)
	require.NoError(t, err)
	employer := d.Fund(t, initialFunds)
	result := d.Submit(t, []ed25519.PrivateKey{employer, authority}, bagel.NewRegisterBusinessInstruction(
		&bagel.RegisterBusinessInstructionAccounts{
			Employer:      testutil.PublicKey(employer),
			Authority:     testutil.PublicKey(authority),
			MasterVault:   address,
			BusinessEntry: business,
		},
		&bagel.RegisterBusinessInstructionArgs{EncryptedEmployerId: d.Encrypt(t, 1)},
	))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodeInvalidState))

	testutil.AssertCustomError(t, migrate(employer), int(bagel.ErrorCodeUnauthorized))

	require.Nil(t, migrate(authority).Err)

	account := d.GetAccount(t, address)
	require.Len(t, account.Data, bagel.MasterVaultSize)
	assert.True(t, d.Bank.Rent().IsExempt(account.Lamports, len(account.Data)))

	_, migrated := d.MasterVault(t)
	assert.EqualValues(t, legacy.Authority, migrated.Authority)
	assert.Equal(t, legacy.NextBusinessIndex, migrated.NextBusinessIndex)
	assert.Equal(t, legacy.EncryptedBusinessCount, migrated.EncryptedBusinessCount)
	assert.Equal(t, legacy.EncryptedEmployeeCount, migrated.EncryptedEmployeeCount)
	assert.True(t, migrated.IsActive)
	assert.False(t, migrated.IsConfidential())

	// Migrating again is a no-op
	lamports := account.Lamports
	result = migrate(authority)
	require.Nil(t, result.Err)
	assert.Contains(t, result.Logs, "Program log: Vault already migrated")

	account = d.GetAccount(t, address)
	assert.Equal(t, lamports, account.Lamports)
	_, again := d.MasterVault(t)
	assert.Equal(t, migrated, again)

	require.Nil(t, d.Submit(t, []ed25519.PrivateKey{employer, authority}, bagel.NewRegisterBusinessInstruction(
		&bagel.RegisterBusinessInstructionAccounts{
			Employer:      testutil.PublicKey(employer),
			Authority:     testutil.PublicKey(authority),
			MasterVault:   address,
			BusinessEntry: business,
		},
		&bagel.RegisterBusinessInstructionArgs{EncryptedEmployerId: d.Encrypt(t, 1)},
	)).Err)
}

type confidentialEnv struct {
	*testEnv

	mint          ed25519.PublicKey
	vaultToken    ed25519.PublicKey
	employerToken ed25519.PublicKey
	employeeToken ed25519.PublicKey
}

func setupConfidential(t *testing.T) *confidentialEnv {
	env := setup(t)

	mint := env.d.CreateMint(t, env.authority, env.authority)
	vaultToken := env.d.CreateTokenAccount(t, env.authority, mint, env.vault)
	employerToken := env.d.CreateTokenAccount(t, env.employer, mint, testutil.PublicKey(env.employer))
	employeeToken := env.d.CreateTokenAccount(t, env.employee, mint, testutil.PublicKey(env.employee))
	env.d.MintTo(t, env.authority, mint, employerToken, 1_000)

	env.d.MustSubmit(t, []ed25519.PrivateKey{env.authority}, bagel.NewConfigureConfidentialMintInstruction(
		&bagel.ConfigureConfidentialMintInstructionAccounts{
			Authority:   testutil.PublicKey(env.authority),
			MasterVault: env.vault,
		},
		&bagel.ConfigureConfidentialMintInstructionArgs{
			Mint:   mint,
			Enable: true,
		},
	))

	_, vault := env.d.MasterVault(t)
	require.True(t, vault.IsConfidential())
	require.EqualValues(t, mint, vault.ConfidentialMint)

	return &confidentialEnv{
		testEnv:       env,
		mint:          mint,
		vaultToken:    vaultToken,
		employerToken: employerToken,
		employeeToken: employeeToken,
	}
}

func (e *confidentialEnv) depositInstruction(t *testing.T, business ed25519.PublicKey, amount uint64) solana.Instruction {
	return bagel.NewDepositInstruction(
		&bagel.DepositInstructionAccounts{
			Depositor:               testutil.PublicKey(e.employer),
			MasterVault:             e.vault,
			BusinessEntry:           business,
			IncoTokenProgram:        inco.TOKEN_PROGRAM_ID,
			DepositorTokenAccount:   e.employerToken,
			MasterVaultTokenAccount: e.vaultToken,
		},
		&bagel.DepositInstructionArgs{
			Amount:          amount,
			EncryptedAmount: e.d.Encrypt(t, amount),
		},
	)
}

func (e *confidentialEnv) withdrawInstruction(t *testing.T, business, entry ed25519.PublicKey, amount uint64, private bool) solana.Instruction {
	ciphertext := e.d.Encrypt(t, amount)

	accounts := &bagel.RequestWithdrawalInstructionAccounts{
		Withdrawer:              testutil.PublicKey(e.employee),
		MasterVault:             e.vault,
		BusinessEntry:           business,
		EmployeeEntry:           entry,
		IncoTokenProgram:        inco.TOKEN_PROGRAM_ID,
		MasterVaultTokenAccount: e.vaultToken,
		EmployeeTokenAccount:    e.employeeToken,
	}
	args := &bagel.RequestWithdrawalInstructionArgs{
		Amount:          amount,
		EncryptedAmount: ciphertext,
	}
	if private {
		accounts.ShadowwireProgram = shadowwire.PROGRAM_ID
		args.UseShadowwire = true
		args.Proof = shadowwire.NewMockProof(ciphertext)
	}
	return bagel.NewRequestWithdrawalInstruction(accounts, args)
}

func TestConfidentialPayroll(t *testing.T) {
	for _, private := range []bool{false, true} {
		t.Run(map[bool]string{false: "token", true: "shadowwire"}[private], func(t *testing.T) {
			env := setupConfidential(t)
			business := env.registerBusiness(t, env.employer)

			vaultLamports := env.d.Balance(t, env.vault)
			env.d.MustSubmit(t, []ed25519.PrivateKey{env.employer}, env.depositInstruction(t, business, 500))

			assert.EqualValues(t, 500, env.d.TokenBalance(t, env.employerToken))
			assert.EqualValues(t, 500, env.d.TokenBalance(t, env.vaultToken))
			assert.EqualValues(t, 500, env.d.Plaintext(t, env.d.BusinessEntry(t, business).EncryptedBalance))
			assert.Equal(t, vaultLamports, env.d.Balance(t, env.vault))

			entry := env.addEmployee(t, business, env.employee, 1)
			env.d.Clock.Advance(60 * time.Second)
			env.d.MustSubmit(t, []ed25519.PrivateKey{env.authority}, env.accrueInstruction(business, entry))
			env.d.Clock.Advance(60 * time.Second)

			transfers := len(env.d.Token.Transfers())
			env.d.MustSubmit(t, []ed25519.PrivateKey{env.employee}, env.withdrawInstruction(t, business, entry, 50, private))

			assert.EqualValues(t, 450, env.d.TokenBalance(t, env.vaultToken))
			assert.EqualValues(t, 50, env.d.TokenBalance(t, env.employeeToken))
			assert.EqualValues(t, 10, env.d.Plaintext(t, env.d.EmployeeEntry(t, entry).EncryptedAccrued))
			assert.Equal(t, vaultLamports, env.d.Balance(t, env.vault))

			all := env.d.Token.Transfers()
			require.Len(t, all, transfers+1)
			last := all[len(all)-1]
			assert.EqualValues(t, env.vaultToken, last.Source)
			assert.EqualValues(t, env.employeeToken, last.Destination)
			assert.EqualValues(t, env.vault, last.Authority)
			assert.EqualValues(t, 50, last.Amount.Uint64())
		})
	}
}

func TestConfidentialDeposit_TransferFailureIsAtomic(t *testing.T) {
	env := setupConfidential(t)
	business := env.registerBusiness(t, env.employer)

	env.d.Token.InduceTransferFailures()
	result := env.d.Submit(t, []ed25519.PrivateKey{env.employer}, env.depositInstruction(t, business, 500))
	require.NotNil(t, result.Err)
	env.d.Token.StopInducingTransferFailures()

	assert.EqualValues(t, 0, env.d.Plaintext(t, env.d.BusinessEntry(t, business).EncryptedBalance))
	assert.EqualValues(t, 1_000, env.d.TokenBalance(t, env.employerToken))
	assert.EqualValues(t, 0, env.d.TokenBalance(t, env.vaultToken))
	assert.Empty(t, env.d.Token.Transfers())
}

func TestConfidentialDeposit_RequiresTokenAccounts(t *testing.T) {
	env := setupConfidential(t)
	business := env.registerBusiness(t, env.employer)

	// Lamport style deposit against a confidential vault
	result := env.d.Submit(t, []ed25519.PrivateKey{env.employer}, bagel.NewDepositInstruction(
		&bagel.DepositInstructionAccounts{
			Depositor:     testutil.PublicKey(env.employer),
			MasterVault:   env.vault,
			BusinessEntry: business,
		},
		&bagel.DepositInstructionArgs{
			Amount:          10,
			EncryptedAmount: env.d.Encrypt(t, 10),
		},
	))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodeInvalidState))

	// Vault token account not held by the vault
	result = env.d.Submit(t, []ed25519.PrivateKey{env.employer}, bagel.NewDepositInstruction(
		&bagel.DepositInstructionAccounts{
			Depositor:               testutil.PublicKey(env.employer),
			MasterVault:             env.vault,
			BusinessEntry:           business,
			IncoTokenProgram:        inco.TOKEN_PROGRAM_ID,
			DepositorTokenAccount:   env.employerToken,
			MasterVaultTokenAccount: env.employeeToken,
		},
		&bagel.DepositInstructionArgs{
			Amount:          10,
			EncryptedAmount: env.d.Encrypt(t, 10),
		},
	))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodeInvalidState))
}

func TestTee(t *testing.T) {
	env := setup(t)
	business := env.registerBusiness(t, env.employer)
	env.deposit(t, business, 100)
	entry := env.addEmployee(t, business, env.employee, 1)
	validator := env.d.Fund(t, initialFunds)

	record, _, err := magicblock.GetDelegationRecordAddress(entry)
	require.NoError(t, err)

	env.d.MustSubmit(t, []ed25519.PrivateKey{env.employer}, bagel.NewDelegateToTeeInstruction(&bagel.DelegateToTeeInstructionAccounts{
		Payer:            testutil.PublicKey(env.employer),
		MasterVault:      env.vault,
		BusinessEntry:    business,
		EmployeeEntry:    entry,
		DelegationRecord: record,
		Validator:        testutil.PublicKey(validator),
	}))

	account := env.d.GetAccount(t, entry)
	assert.EqualValues(t, magicblock.PROGRAM_ID, account.Owner)

	var delegation magicblock.DelegationRecord
	require.NoError(t, delegation.Unmarshal(env.d.GetAccount(t, record).Data))
	assert.EqualValues(t, entry, delegation.DelegatedAccount)
	assert.EqualValues(t, bagel.PROGRAM_ID, delegation.OwnerProgram)
	assert.EqualValues(t, testutil.PublicKey(validator), delegation.Validator)

	// Base layer mutations are blocked while delegated
	env.d.Clock.Advance(time.Hour)
	result := env.d.Submit(t, []ed25519.PrivateKey{env.authority}, env.accrueInstruction(business, entry))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodeAccountDelegated))

	commit := func(signer ed25519.PrivateKey, state []byte, undelegate bool) *svm.TxResult {
		return env.d.Submit(t, []ed25519.PrivateKey{signer}, bagel.NewCommitFromTeeInstruction(
			&bagel.CommitFromTeeInstructionAccounts{
				Validator:        testutil.PublicKey(signer),
				MasterVault:      env.vault,
				BusinessEntry:    business,
				EmployeeEntry:    entry,
				DelegationRecord: record,
			},
			&bagel.CommitFromTeeInstructionArgs{
				NewState:   state,
				Undelegate: undelegate,
			},
		))
	}

	current := env.d.EmployeeEntry(t, entry)

	next := *current
	next.LastAction = env.d.Clock.Now().Unix()
	next.EncryptedAccrued = env.d.Handle(t, 3600)

	testutil.AssertCustomError(t, commit(env.employer, next.Marshal(), false), int(bagel.ErrorCodeUnauthorized))

	hijacked := next
	hijacked.EmployeeCommitment = bagel.EmployeeCommitment(entry, testutil.PublicKey(env.employer))
	testutil.AssertCustomError(t, commit(validator, hijacked.Marshal(), false), int(bagel.ErrorCodeInvalidState))

	require.Nil(t, commit(validator, next.Marshal(), false).Err)
	assert.EqualValues(t, magicblock.PROGRAM_ID, env.d.GetAccount(t, entry).Owner)
	assert.EqualValues(t, 3600, env.d.Plaintext(t, env.d.EmployeeEntry(t, entry).EncryptedAccrued))

	require.Nil(t, commit(validator, next.Marshal(), true).Err)
	assert.EqualValues(t, bagel.PROGRAM_ID, env.d.GetAccount(t, entry).Owner)
	assert.Nil(t, env.d.GetAccount(t, record))

	// Back on the base layer
	env.d.Clock.Advance(time.Minute)
	env.d.MustSubmit(t, []ed25519.PrivateKey{env.employee}, env.withdrawInstruction(t, env.employee, business, entry, 1))
	assert.EqualValues(t, 3599, env.d.Plaintext(t, env.d.EmployeeEntry(t, entry).EncryptedAccrued))
}

func TestYield(t *testing.T) {
	env := setup(t)
	business := env.registerBusiness(t, env.employer)
	env.deposit(t, business, 1_000_000)

	position, _, err := bagel.GetYieldPositionAddress(env.vault)
	require.NoError(t, err)

	accounts := &bagel.YieldInstructionAccounts{
		Authority:     testutil.PublicKey(env.authority),
		MasterVault:   env.vault,
		YieldPosition: position,
	}
	loadPosition := func() *bagel.YieldPosition {
		var res bagel.YieldPosition
		require.NoError(t, res.Unmarshal(env.d.GetAccount(t, position).Data))
		return &res
	}

	result := env.d.Submit(t, []ed25519.PrivateKey{env.employer}, bagel.NewAllocateToYieldInstruction(
		&bagel.YieldInstructionAccounts{
			Authority:     testutil.PublicKey(env.employer),
			MasterVault:   env.vault,
			YieldPosition: position,
		},
		&bagel.YieldAmountInstructionArgs{Amount: 1_000_000},
	))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodeUnauthorized))

	env.d.MustSubmit(t, []ed25519.PrivateKey{env.authority}, bagel.NewAllocateToYieldInstruction(accounts, &bagel.YieldAmountInstructionArgs{Amount: 1_000_000}))

	state := loadPosition()
	assert.EqualValues(t, 900_000, state.Principal)
	assert.EqualValues(t, 700, state.ApyBps)
	_, vault := env.d.MasterVault(t)
	assert.EqualValues(t, 100_000, vault.TotalBalance)

	env.d.Clock.Advance(365 * 24 * time.Hour)
	env.d.MustSubmit(t, []ed25519.PrivateKey{env.authority}, bagel.NewHarvestYieldInstruction(accounts))

	state = loadPosition()
	assert.EqualValues(t, 63_000, state.TotalHarvested)
	assert.EqualValues(t, 50_400, state.EmployeeYieldTotal)
	assert.EqualValues(t, 12_600, state.EmployerYieldTotal)
	assert.Equal(t, env.d.Clock.Now().Unix(), state.LastHarvest)

	result = env.d.Submit(t, []ed25519.PrivateKey{env.authority}, bagel.NewReleaseFromYieldInstruction(accounts, &bagel.YieldAmountInstructionArgs{Amount: 900_001}))
	testutil.AssertCustomError(t, result, int(bagel.ErrorCodeInsufficientFunds))

	env.d.MustSubmit(t, []ed25519.PrivateKey{env.authority}, bagel.NewReleaseFromYieldInstruction(accounts, &bagel.YieldAmountInstructionArgs{Amount: 400_000}))
	assert.EqualValues(t, 500_000, loadPosition().Principal)
	_, vault = env.d.MasterVault(t)
	assert.EqualValues(t, 500_000, vault.TotalBalance)
}

package bagel

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	"github.com/bagel-payroll/bagel-server/pkg/solana/inco"
	"github.com/bagel-payroll/bagel-server/pkg/solana/magicblock"
	"github.com/bagel-payroll/bagel-server/pkg/solana/shadowwire"
)

func TestAddresses(t *testing.T) {
	vault, _, err := GetMasterVaultAddress()
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := uint64(0); i < 5; i++ {
		business, bump, err := GetBusinessEntryAddress(vault, i)
		require.NoError(t, err)

		expected, err := solana.CreateProgramAddress(PROGRAM_ID, BusinessEntryPrefix, vault, indexSeed(i), []byte{bump})
		require.NoError(t, err)
		assert.EqualValues(t, expected, business)

		seen[string(business)] = struct{}{}
	}
	assert.Len(t, seen, 5)

	business, _, err := GetBusinessEntryAddress(vault, 0)
	require.NoError(t, err)
	employee, bump, err := GetEmployeeEntryAddress(business, 3)
	require.NoError(t, err)

	seeds := append(GetEmployeeEntrySeeds(business, 3), []byte{bump})
	expected, err := solana.CreateProgramAddress(PROGRAM_ID, seeds...)
	require.NoError(t, err)
	assert.EqualValues(t, expected, employee)
}

func TestCommitments(t *testing.T) {
	entry := generateKey(t)
	wallet := generateKey(t)

	employer := EmployerCommitment(entry, wallet)
	assert.False(t, employer.IsZero())
	assert.Equal(t, employer, EmployerCommitment(entry, wallet))
	assert.NotEqual(t, employer, EmployeeCommitment(entry, wallet))
	assert.NotEqual(t, employer, EmployerCommitment(entry, generateKey(t)))
	assert.Equal(t, "Commitment(redacted)", employer.String())
}

func TestMasterVaultLayout(t *testing.T) {
	expected := &MasterVault{
		Authority:         generateKey(t),
		TotalBalance:      1_000,
		NextBusinessIndex: 7,
		IsActive:          true,
		Bump:              254,
		ConfidentialMint:  generateKey(t),
	}
	expected.EncryptedBusinessCount[0] = 1
	expected.EncryptedEmployeeCount[15] = 2

	data := expected.Marshal()
	require.Len(t, data, MasterVaultSize)
	assert.Equal(t, 154, MasterVaultSize)
	assert.False(t, expected.IsConfidential())

	var actual MasterVault
	require.NoError(t, actual.Unmarshal(data))
	assert.Equal(t, expected, &actual)

	expected.UseConfidentialTokens = true
	assert.True(t, expected.IsConfidential())

	legacy := expected.MarshalLegacy()
	require.Len(t, legacy, LegacyMasterVaultSize)
	assert.Equal(t, 90, LegacyMasterVaultSize)
	assert.Equal(t, data[:LegacyMasterVaultSize], legacy)

	assert.Equal(t, ErrInvalidAccountData, actual.Unmarshal(legacy))

	var fromLegacy MasterVault
	require.NoError(t, fromLegacy.UnmarshalLegacy(legacy))
	assert.EqualValues(t, expected.Authority, fromLegacy.Authority)
	assert.Equal(t, expected.NextBusinessIndex, fromLegacy.NextBusinessIndex)
	assert.Empty(t, fromLegacy.ConfidentialMint)
}

func TestEntryLayouts(t *testing.T) {
	business := &BusinessEntry{
		MasterVault:        generateKey(t),
		EntryIndex:         3,
		NextEmployeeIndex:  2,
		IsActive:           true,
		Bump:               250,
		EmployerCommitment: EmployerCommitment(generateKey(t), generateKey(t)),
	}
	business.EncryptedBalance[4] = 9

	data := business.Marshal()
	require.Len(t, data, 138)

	var decodedBusiness BusinessEntry
	require.NoError(t, decodedBusiness.Unmarshal(data))
	assert.Equal(t, business, &decodedBusiness)

	employee := &EmployeeEntry{
		BusinessEntry:      generateKey(t),
		EmployeeIndex:      1,
		LastAction:         1_700_000_000,
		IsActive:           true,
		Bump:               253,
		EmployeeCommitment: EmployeeCommitment(generateKey(t), generateKey(t)),
	}
	employee.EncryptedSalary[0] = 1

	data = employee.Marshal()
	require.Len(t, data, 138)

	var decodedEmployee EmployeeEntry
	require.NoError(t, decodedEmployee.Unmarshal(data))
	assert.Equal(t, employee, &decodedEmployee)
	assert.True(t, employee.HasSameIdentity(&decodedEmployee))

	decodedEmployee.EncryptedAccrued[0] = 5
	decodedEmployee.LastAction += 60
	assert.True(t, employee.HasSameIdentity(&decodedEmployee))

	decodedEmployee.EmployeeIndex = 2
	assert.False(t, employee.HasSameIdentity(&decodedEmployee))

	// Account types aren't interchangeable
	assert.Equal(t, ErrInvalidAccountData, decodedBusiness.Unmarshal(data))

	position := &YieldPosition{
		MasterVault:        generateKey(t),
		Principal:          900,
		ApyBps:             700,
		LastHarvest:        1_700_000_000,
		TotalHarvested:     10,
		EmployeeYieldTotal: 8,
		EmployerYieldTotal: 2,
		Bump:               255,
	}
	var decodedPosition YieldPosition
	require.NoError(t, decodedPosition.Unmarshal(position.Marshal()))
	assert.Equal(t, position, &decodedPosition)
}

func TestStringRedactsHandles(t *testing.T) {
	employee := &EmployeeEntry{BusinessEntry: generateKey(t)}
	employee.EncryptedSalary[0] = 0xab

	str := employee.String()
	assert.Contains(t, str, "encrypted_salary=Handle(redacted)")
	assert.Contains(t, str, "encrypted_accrued=Handle(unset)")
	assert.NotContains(t, str, employee.EncryptedSalary.Hex())
}

func TestErrors(t *testing.T) {
	assert.EqualValues(t, 6000, ErrorCodeInvalidCiphertext)
	assert.EqualValues(t, 6005, ErrorCodeWithdrawTooSoon)
	assert.EqualValues(t, 6008, ErrorCodeUnauthorized)
	assert.EqualValues(t, 6012, ErrorCodeAccountDelegated)

	code, ok := GetError(6009)
	require.True(t, ok)
	assert.Equal(t, ErrorCodePayrollInactive, code)
	assert.Equal(t, "PayrollInactive", code.Name())

	_, ok = GetError(7000)
	assert.False(t, ok)

	txErr, err := solana.TransactionErrorFromInstructionError(solana.NewCustomInstructionError(1, int(ErrorCodeWithdrawTooSoon)))
	require.NoError(t, err)

	code, ok = ErrorCodeFromError(txErr)
	require.True(t, ok)
	assert.Equal(t, ErrorCodeWithdrawTooSoon, code)
}

func TestEvents(t *testing.T) {
	events := []Event{
		&VaultInitialized{Timestamp: 1},
		&BusinessRegistered{EntryIndex: 2, Timestamp: 3},
		&FundsDeposited{EntryIndex: 2, Timestamp: 4},
		&EmployeeAdded{BusinessIndex: 2, EmployeeIndex: 0, Timestamp: 5},
		&SalaryAccrued{BusinessIndex: 2, EmployeeIndex: 0, ElapsedSeconds: 60, Timestamp: 65},
		&WithdrawalProcessed{BusinessIndex: 2, EmployeeIndex: 0, Timestamp: 125, ShadowwireEnabled: true},
		&DelegatedToTee{BusinessIndex: 2, EmployeeIndex: 0, Timestamp: 6},
		&CommittedFromTee{BusinessIndex: 2, EmployeeIndex: 0, Undelegated: true, Timestamp: 7},
		&ConfidentialMintConfigured{Enabled: true, Timestamp: 8},
		&VaultMigrated{PreviousSize: LegacyMasterVaultSize, Timestamp: 9},
		&VaultActiveChanged{IsActive: false, Timestamp: 10},
		&BusinessActiveChanged{BusinessIndex: 2, IsActive: true, Timestamp: 12},
		&EmployeeDeactivated{BusinessIndex: 2, EmployeeIndex: 0, Timestamp: 11},
	}

	logs := []string{"Program " + base58.Encode(PROGRAM_ID) + " invoke [1]"}
	for _, e := range events {
		logs = append(logs, EventLog(e), "Program log: noise")
	}
	logs = append(logs, EventLogPrefix+"not base64!", EventLogPrefix+"AAAAAAAAAAA=")

	parsed := ParseEventsFromLogs(logs)
	require.Len(t, parsed, len(events))
	for i, e := range events {
		assert.Equal(t, e, parsed[i], e.Name())
	}

	_, err := UnmarshalEvent(MarshalEvent(&FundsDeposited{})[:10])
	assert.Error(t, err)
}

func TestInstructions(t *testing.T) {
	ciphertext := inco.Ciphertext("sealed")

	t.Run("register business", func(t *testing.T) {
		ix := NewRegisterBusinessInstruction(&RegisterBusinessInstructionAccounts{
			Employer:      generateKey(t),
			Authority:     generateKey(t),
			MasterVault:   generateKey(t),
			BusinessEntry: generateKey(t),
		}, &RegisterBusinessInstructionArgs{EncryptedEmployerId: ciphertext})
		assert.True(t, ix.Accounts[1].IsSigner)

		kind, err := GetInstruction(ix.Data)
		require.NoError(t, err)
		assert.Equal(t, InstructionRegisterBusiness, kind)

		args, err := ParseRegisterBusinessInstructionArgs(ix.Data)
		require.NoError(t, err)
		assert.EqualValues(t, ciphertext, args.EncryptedEmployerId)
	})

	t.Run("deposit", func(t *testing.T) {
		ix := NewDepositInstruction(&DepositInstructionAccounts{
			Depositor:     generateKey(t),
			MasterVault:   generateKey(t),
			BusinessEntry: generateKey(t),
		}, &DepositInstructionArgs{Amount: 500, EncryptedAmount: ciphertext})
		require.Len(t, ix.Accounts, 8)
		for _, optional := range ix.Accounts[4:7] {
			assert.EqualValues(t, PROGRAM_ID, optional.PublicKey)
			assert.False(t, IsAccountPresent(optional.PublicKey))
		}

		args, err := ParseDepositInstructionArgs(ix.Data)
		require.NoError(t, err)
		assert.EqualValues(t, 500, args.Amount)
		assert.EqualValues(t, ciphertext, args.EncryptedAmount)

		_, err = ParseRegisterBusinessInstructionArgs(ix.Data)
		assert.Equal(t, ErrInvalidInstructionData, err)
	})

	t.Run("add employee", func(t *testing.T) {
		commitment := EmployeeCommitment(generateKey(t), generateKey(t))
		ix := NewAddEmployeeInstruction(&AddEmployeeInstructionAccounts{
			Employer:      generateKey(t),
			MasterVault:   generateKey(t),
			BusinessEntry: generateKey(t),
			EmployeeEntry: generateKey(t),
		}, &AddEmployeeInstructionArgs{
			EncryptedEmployeeId: ciphertext,
			EncryptedSalary:     inco.Ciphertext("salary"),
			EmployeeCommitment:  commitment,
		})

		args, err := ParseAddEmployeeInstructionArgs(ix.Data)
		require.NoError(t, err)
		assert.EqualValues(t, ciphertext, args.EncryptedEmployeeId)
		assert.EqualValues(t, "salary", args.EncryptedSalary)
		assert.Equal(t, commitment, args.EmployeeCommitment)
	})

	t.Run("request withdrawal", func(t *testing.T) {
		accounts := &RequestWithdrawalInstructionAccounts{
			Withdrawer:    generateKey(t),
			MasterVault:   generateKey(t),
			BusinessEntry: generateKey(t),
			EmployeeEntry: generateKey(t),
		}

		ix := NewRequestWithdrawalInstruction(accounts, &RequestWithdrawalInstructionArgs{
			Amount:          50,
			EncryptedAmount: ciphertext,
		})
		args, err := ParseRequestWithdrawalInstructionArgs(ix.Data)
		require.NoError(t, err)
		assert.EqualValues(t, 50, args.Amount)
		assert.False(t, args.UseShadowwire)
		assert.Nil(t, args.Proof)

		proof := shadowwire.NewMockProof(ciphertext)
		ix = NewRequestWithdrawalInstruction(accounts, &RequestWithdrawalInstructionArgs{
			Amount:          50,
			EncryptedAmount: ciphertext,
			UseShadowwire:   true,
			Proof:           proof,
		})
		args, err = ParseRequestWithdrawalInstructionArgs(ix.Data)
		require.NoError(t, err)
		assert.True(t, args.UseShadowwire)
		require.NotNil(t, args.Proof)
		assert.Equal(t, proof.Commitment, args.Proof.Commitment)
	})

	t.Run("vault", func(t *testing.T) {
		mint := generateKey(t)
		ix := NewConfigureConfidentialMintInstruction(&ConfigureConfidentialMintInstructionAccounts{
			Authority:   generateKey(t),
			MasterVault: generateKey(t),
		}, &ConfigureConfidentialMintInstructionArgs{Mint: mint, Enable: true})

		args, err := ParseConfigureConfidentialMintInstructionArgs(ix.Data)
		require.NoError(t, err)
		assert.EqualValues(t, mint, args.Mint)
		assert.True(t, args.Enable)

		ix = NewSetVaultActiveInstruction(&SetVaultActiveInstructionAccounts{
			Authority:   generateKey(t),
			MasterVault: generateKey(t),
		}, &SetVaultActiveInstructionArgs{IsActive: true})
		active, err := ParseSetVaultActiveInstructionArgs(ix.Data)
		require.NoError(t, err)
		assert.True(t, active.IsActive)

		ix = NewSetBusinessActiveInstruction(&SetBusinessActiveInstructionAccounts{
			Employer:      generateKey(t),
			MasterVault:   generateKey(t),
			BusinessEntry: generateKey(t),
		}, &SetBusinessActiveInstructionArgs{IsActive: false})
		require.Len(t, ix.Accounts, 3)
		assert.True(t, ix.Accounts[0].IsSigner)
		assert.True(t, ix.Accounts[2].IsWritable)
		business, err := ParseSetBusinessActiveInstructionArgs(ix.Data)
		require.NoError(t, err)
		assert.False(t, business.IsActive)

		_, err = ParseSetVaultActiveInstructionArgs(ix.Data)
		assert.ErrorIs(t, err, ErrInvalidInstructionData)
	})

	t.Run("tee", func(t *testing.T) {
		ix := NewDelegateToTeeInstruction(&DelegateToTeeInstructionAccounts{
			Payer:            generateKey(t),
			MasterVault:      generateKey(t),
			BusinessEntry:    generateKey(t),
			EmployeeEntry:    generateKey(t),
			DelegationRecord: generateKey(t),
		})
		assert.False(t, IsAccountPresent(ix.Accounts[4].PublicKey))

		ix = NewCommitFromTeeInstruction(&CommitFromTeeInstructionAccounts{
			Validator:        magicblock.DefaultValidator,
			MasterVault:      generateKey(t),
			BusinessEntry:    generateKey(t),
			EmployeeEntry:    generateKey(t),
			DelegationRecord: generateKey(t),
		}, &CommitFromTeeInstructionArgs{NewState: []byte{1, 2}, Undelegate: true})
		args, err := ParseCommitFromTeeInstructionArgs(ix.Data)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2}, args.NewState)
		assert.True(t, args.Undelegate)
	})

	t.Run("yield", func(t *testing.T) {
		accounts := &YieldInstructionAccounts{
			Authority:     generateKey(t),
			MasterVault:   generateKey(t),
			YieldPosition: generateKey(t),
		}

		ix := NewAllocateToYieldInstruction(accounts, &YieldAmountInstructionArgs{Amount: 100})
		kind, args, err := ParseYieldAmountInstructionArgs(ix.Data)
		require.NoError(t, err)
		assert.Equal(t, InstructionAllocateToYield, kind)
		assert.EqualValues(t, 100, args.Amount)

		ix = NewReleaseFromYieldInstruction(accounts, &YieldAmountInstructionArgs{Amount: 40})
		kind, args, err = ParseYieldAmountInstructionArgs(ix.Data)
		require.NoError(t, err)
		assert.Equal(t, InstructionReleaseFromYield, kind)
		assert.EqualValues(t, 40, args.Amount)

		_, _, err = ParseYieldAmountInstructionArgs(NewHarvestYieldInstruction(accounts).Data)
		assert.Equal(t, ErrInvalidInstructionData, err)
	})

	_, err := GetInstruction([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	assert.Equal(t, ErrInvalidInstructionData, err)
}

func TestDelegationState(t *testing.T) {
	assert.Equal(t, Normal{}, GetDelegationState(PROGRAM_ID, nil))

	record := &magicblock.DelegationRecord{Validator: magicblock.DefaultValidator}
	state := GetDelegationState(magicblock.PROGRAM_ID, record)

	delegated, ok := state.(Delegated)
	require.True(t, ok)
	assert.EqualValues(t, magicblock.DefaultValidator, delegated.Validator)
}

func generateKey(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub
}

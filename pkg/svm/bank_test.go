package svm

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagel-payroll/bagel-server/pkg/data"
	"github.com/bagel-payroll/bagel-server/pkg/solana"
	"github.com/bagel-payroll/bagel-server/pkg/solana/system"
)

type testEnv struct {
	ctx  context.Context
	bank *Bank
	data data.DatabaseData
}

func setup(t *testing.T, programs ...Program) *testEnv {
	ctx := context.Background()
	db := data.NewTestDatabaseProvider()

	bank, err := NewBank(ctx, db, time.Now, withManualTestOverrides(&testOverrides{
		maxBlockhashAge: 4,
	}), programs...)
	require.NoError(t, err)

	return &testEnv{
		ctx:  ctx,
		bank: bank,
		data: db,
	}
}

func (e *testEnv) fund(t *testing.T, lamports uint64) ed25519.PrivateKey {
	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	result, err := e.bank.Airdrop(e.ctx, key.Public().(ed25519.PublicKey), lamports)
	require.NoError(t, err)
	require.Nil(t, result.Err)
	return key
}

func (e *testEnv) submit(t *testing.T, signers []ed25519.PrivateKey, instructions ...solana.Instruction) *TxResult {
	txn := e.newTransaction(t, signers, instructions...)
	result, err := e.bank.ProcessTransaction(e.ctx, &txn)
	require.NoError(t, err)
	return result
}

func (e *testEnv) newTransaction(t *testing.T, signers []ed25519.PrivateKey, instructions ...solana.Instruction) solana.Transaction {
	txn := solana.NewTransaction(signers[0].Public().(ed25519.PublicKey), instructions...)
	hash, _ := e.bank.LatestBlockhash()
	txn.SetBlockhash(hash)
	require.NoError(t, txn.Sign(signers...))
	return txn
}

func (e *testEnv) balance(t *testing.T, key ed25519.PublicKey) uint64 {
	account, err := e.bank.GetAccount(e.ctx, key)
	if err == ErrAccountNotFound {
		return 0
	}
	require.NoError(t, err)
	return account.Lamports
}

func public(key ed25519.PrivateKey) ed25519.PublicKey {
	return key.Public().(ed25519.PublicKey)
}

func TestBank_Transfer(t *testing.T) {
	env := setup(t)

	sender := env.fund(t, 10*LamportsPerSol)
	receiver := env.fund(t, LamportsPerSol)

	result := env.submit(t, []ed25519.PrivateKey{sender}, system.Transfer(public(sender), public(receiver), LamportsPerSol))
	require.Nil(t, result.Err)
	assert.True(t, result.Landed)
	assert.EqualValues(t, 5000, result.Fee)
	assert.Contains(t, result.Logs, fmt.Sprintf("Program %s success", "11111111111111111111111111111111"))

	assert.EqualValues(t, 9*LamportsPerSol-5000, env.balance(t, public(sender)))
	assert.EqualValues(t, 2*LamportsPerSol, env.balance(t, public(receiver)))

	status, err := env.bank.GetSignatureStatus(env.ctx, result.Signature)
	require.NoError(t, err)
	assert.Equal(t, result.Slot, status.Slot)
	assert.Nil(t, status.ErrorResult)

	record, err := env.data.GetTransaction(env.ctx, result.Signature.ToBase58())
	require.NoError(t, err)
	assert.False(t, record.HasErrors)
	assert.EqualValues(t, 5000, record.Fee)
}

func TestBank_FailedTransactionChargesFee(t *testing.T) {
	env := setup(t)

	sender := env.fund(t, LamportsPerSol)
	receiver := env.fund(t, LamportsPerSol)

	result := env.submit(t, []ed25519.PrivateKey{sender},
		system.Transfer(public(sender), public(receiver), 1000),
		system.Transfer(public(sender), public(receiver), 2*LamportsPerSol),
	)
	require.NotNil(t, result.Err)
	assert.True(t, result.Landed)

	ixErr := result.Err.InstructionError()
	require.NotNil(t, ixErr)
	assert.Equal(t, 1, ixErr.Index)
	code, ok := solana.CustomErrorCode(result.Err)
	require.True(t, ok)
	assert.Equal(t, system.ErrorResultWithNegativeLamports, code)

	// The first transfer is rolled back along with the failed one
	assert.EqualValues(t, LamportsPerSol-5000, env.balance(t, public(sender)))
	assert.EqualValues(t, LamportsPerSol, env.balance(t, public(receiver)))

	status, err := env.bank.GetSignatureStatus(env.ctx, result.Signature)
	require.NoError(t, err)
	require.NotNil(t, status.ErrorResult)
	assert.Equal(t, solana.TransactionErrorInstructionError, status.ErrorResult.ErrorKey())
}

func TestBank_Rejections(t *testing.T) {
	env := setup(t)

	sender := env.fund(t, LamportsPerSol)
	receiver := env.fund(t, LamportsPerSol)

	t.Run("duplicate signature", func(t *testing.T) {
		txn := env.newTransaction(t, []ed25519.PrivateKey{sender}, system.Transfer(public(sender), public(receiver), 1))
		result, err := env.bank.ProcessTransaction(env.ctx, &txn)
		require.NoError(t, err)
		require.Nil(t, result.Err)

		result, err = env.bank.ProcessTransaction(env.ctx, &txn)
		require.NoError(t, err)
		require.NotNil(t, result.Err)
		assert.Equal(t, solana.TransactionErrorDuplicateSignature, result.Err.ErrorKey())
		assert.False(t, result.Landed)
	})

	t.Run("unknown blockhash", func(t *testing.T) {
		txn := solana.NewTransaction(public(sender), system.Transfer(public(sender), public(receiver), 1))
		txn.SetBlockhash(solana.Blockhash{1, 2, 3})
		require.NoError(t, txn.Sign(sender))

		result, err := env.bank.ProcessTransaction(env.ctx, &txn)
		require.NoError(t, err)
		assert.Equal(t, solana.TransactionErrorBlockhashNotFound, result.Err.ErrorKey())
	})

	t.Run("expired blockhash", func(t *testing.T) {
		stale := env.newTransaction(t, []ed25519.PrivateKey{sender}, system.Transfer(public(sender), public(receiver), 2))
		for i := 0; i < 5; i++ {
			env.fund(t, LamportsPerSol)
		}

		result, err := env.bank.ProcessTransaction(env.ctx, &stale)
		require.NoError(t, err)
		assert.Equal(t, solana.TransactionErrorBlockhashNotFound, result.Err.ErrorKey())
	})

	t.Run("bad signature", func(t *testing.T) {
		txn := env.newTransaction(t, []ed25519.PrivateKey{sender}, system.Transfer(public(sender), public(receiver), 3))
		txn.Signatures[0][0] ^= 0xff

		result, err := env.bank.ProcessTransaction(env.ctx, &txn)
		require.NoError(t, err)
		assert.Equal(t, solana.TransactionErrorSignatureFailure, result.Err.ErrorKey())
	})

	t.Run("unfunded fee payer", func(t *testing.T) {
		_, unfunded, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)

		result := env.submit(t, []ed25519.PrivateKey{unfunded}, system.Transfer(public(unfunded), public(receiver), 0))
		assert.Equal(t, solana.TransactionErrorInsufficientFundsForFee, result.Err.ErrorKey())
		assert.False(t, result.Landed)
	})

	t.Run("below rent exemption", func(t *testing.T) {
		_, fresh, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)

		result := env.submit(t, []ed25519.PrivateKey{sender}, system.Transfer(public(sender), public(fresh), 10))
		assert.Equal(t, solana.TransactionErrorInsufficientFundsForRent, result.Err.ErrorKey())
		assert.True(t, result.Landed)
		assert.EqualValues(t, 0, env.balance(t, public(fresh)))
	})
}

func TestBank_Simulation(t *testing.T) {
	env := setup(t)

	sender := env.fund(t, LamportsPerSol)
	receiver := env.fund(t, LamportsPerSol)

	txn := env.newTransaction(t, []ed25519.PrivateKey{sender}, system.Transfer(public(sender), public(receiver), 1000))
	result, err := env.bank.SimulateTransaction(env.ctx, &txn, true)
	require.NoError(t, err)
	require.Nil(t, result.Err)
	assert.False(t, result.Landed)
	assert.NotEmpty(t, result.Logs)

	assert.EqualValues(t, LamportsPerSol, env.balance(t, public(sender)))

	_, err = env.bank.GetSignatureStatus(env.ctx, result.Signature)
	assert.Equal(t, ErrSignatureNotFound, err)

	// The simulated transaction can still be submitted
	result, err = env.bank.ProcessTransaction(env.ctx, &txn)
	require.NoError(t, err)
	assert.Nil(t, result.Err)
}

func TestBank_CreateAccount(t *testing.T) {
	env := setup(t)

	payer := env.fund(t, LamportsPerSol)
	_, newAccount, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	owner := make(ed25519.PublicKey, ed25519.PublicKeySize)
	owner[0] = 7

	create := system.CreateAccount(public(payer), public(newAccount), owner, env.bank.Rent().MinimumBalance(64), 64)

	result := env.submit(t, []ed25519.PrivateKey{payer, newAccount}, create)
	require.Nil(t, result.Err)

	account, err := env.bank.GetAccount(env.ctx, public(newAccount))
	require.NoError(t, err)
	assert.Equal(t, owner, account.Owner)
	assert.Len(t, account.Data, 64)

	result = env.submit(t, []ed25519.PrivateKey{payer, newAccount}, create)
	code, ok := solana.CustomErrorCode(result.Err)
	require.True(t, ok)
	assert.Equal(t, system.ErrorAccountAlreadyInUse, code)
}

func TestBank_ConcurrentWriters(t *testing.T) {
	env := setup(t)

	sender := env.fund(t, 100*LamportsPerSol)
	receiver := env.fund(t, LamportsPerSol)

	workers := 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(amount uint64) {
			defer wg.Done()

			txn := env.newTransaction(t, []ed25519.PrivateKey{sender}, system.Transfer(public(sender), public(receiver), amount))
			result, err := env.bank.ProcessTransaction(env.ctx, &txn)
			assert.NoError(t, err)
			assert.Nil(t, result.Err)
		}(uint64(i + 1))
	}
	wg.Wait()

	var total uint64
	for i := 1; i <= workers; i++ {
		total += uint64(i)
	}
	assert.EqualValues(t, LamportsPerSol+total, env.balance(t, public(receiver)))
	assert.EqualValues(t, 100*LamportsPerSol-total-uint64(workers)*5000, env.balance(t, public(sender)))
}

// testProgram exercises the runtime's account rules and inner invocations.
// The first byte of instruction data selects the behaviour.
type testProgram struct {
	id ed25519.PublicKey
}

const (
	testOpWrite byte = iota
	testOpPdaTransfer
	testOpRecurse
	testOpMint
	testOpUnsignedTransfer
	testOpSwallowFailure
	testOpReturnData
)

var testProgramID = func() ed25519.PublicKey {
	key := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(key, "test-program")
	return key
}()

func newTestProgram() *testProgram {
	return &testProgram{id: testProgramID}
}

func (p *testProgram) ProgramID() ed25519.PublicKey {
	return p.id
}

func (p *testProgram) Process(ctx *InvokeContext) error {
	data := ctx.Data()
	if len(data) == 0 {
		return ErrInvalidInstructionData
	}

	switch data[0] {
	case testOpWrite:
		target, err := ctx.Account(0)
		if err != nil {
			return err
		}
		target.Data[0] = data[1]
		ctx.LogData([]byte{data[1]})
		return nil
	case testOpPdaTransfer:
		vault, err := ctx.Account(0)
		if err != nil {
			return err
		}
		to, err := ctx.Account(1)
		if err != nil {
			return err
		}
		_, bump, err := solana.FindProgramAddressAndBump(p.id, []byte("vault"))
		if err != nil {
			return err
		}
		return ctx.InvokeSigned(
			system.Transfer(vault.Key, to.Key, binary.LittleEndian.Uint64(data[1:])),
			[][]byte{[]byte("vault"), {bump}},
		)
	case testOpRecurse:
		if data[1] == 0 {
			return nil
		}
		return ctx.Invoke(solana.NewInstruction(p.id, []byte{testOpRecurse, data[1] - 1}, solana.NewReadonlyAccountMeta(p.id, false)))
	case testOpMint:
		target, err := ctx.Account(0)
		if err != nil {
			return err
		}
		target.Lamports += 1
		return nil
	case testOpUnsignedTransfer:
		from, err := ctx.Account(0)
		if err != nil {
			return err
		}
		to, err := ctx.Account(1)
		if err != nil {
			return err
		}
		return ctx.Invoke(system.Transfer(from.Key, to.Key, 1))
	case testOpSwallowFailure:
		from, err := ctx.Account(0)
		if err != nil {
			return err
		}
		to, err := ctx.Account(1)
		if err != nil {
			return err
		}
		_ = ctx.Invoke(system.Transfer(from.Key, to.Key, from.Lamports+1))
		return nil
	case testOpReturnData:
		return ctx.SetReturnData(data[1:])
	}
	return ErrInvalidInstructionData
}

func TestInvokeContext_AccountRules(t *testing.T) {
	env := setup(t, newTestProgram())

	payer := env.fund(t, 10*LamportsPerSol)

	_, owned, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, foreign, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	rent := env.bank.Rent()
	result := env.submit(t, []ed25519.PrivateKey{payer, owned, foreign},
		system.CreateAccount(public(payer), public(owned), testProgramID, rent.MinimumBalance(8), 8),
		system.CreateAccount(public(payer), public(foreign), system.SystemAccount, rent.MinimumBalance(8), 8),
	)
	require.Nil(t, result.Err)

	for _, tc := range []struct {
		name     string
		accounts []solana.AccountMeta
		data     []byte
		expected solana.InstructionErrorKey
	}{
		{
			name:     "owner writes data",
			accounts: []solana.AccountMeta{solana.NewAccountMeta(public(owned), false)},
			data:     []byte{testOpWrite, 9},
		},
		{
			name:     "readonly data",
			accounts: []solana.AccountMeta{solana.NewReadonlyAccountMeta(public(owned), false)},
			data:     []byte{testOpWrite, 9},
			expected: solana.InstructionErrorReadonlyDataModified,
		},
		{
			name:     "external data",
			accounts: []solana.AccountMeta{solana.NewAccountMeta(public(foreign), false)},
			data:     []byte{testOpWrite, 9},
			expected: solana.InstructionErrorExternalAccountDataModified,
		},
		{
			name:     "unbalanced",
			accounts: []solana.AccountMeta{solana.NewAccountMeta(public(owned), false)},
			data:     []byte{testOpMint},
			expected: solana.InstructionErrorUnbalancedInstruction,
		},
		{
			name: "privilege escalation",
			accounts: []solana.AccountMeta{
				solana.NewAccountMeta(public(foreign), false),
				solana.NewAccountMeta(public(owned), false),
				solana.NewReadonlyAccountMeta(system.SystemAccount, false),
			},
			data:     []byte{testOpUnsignedTransfer},
			expected: solana.InstructionErrorPrivilegeEscalation,
		},
		{
			name:     "call depth",
			accounts: []solana.AccountMeta{solana.NewReadonlyAccountMeta(testProgramID, false)},
			data:     []byte{testOpRecurse, 4},
			expected: solana.InstructionErrorCallDepth,
		},
		{
			name:     "max call depth",
			accounts: []solana.AccountMeta{solana.NewReadonlyAccountMeta(testProgramID, false)},
			data:     []byte{testOpRecurse, 3},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			result := env.submit(t, []ed25519.PrivateKey{payer}, solana.NewInstruction(testProgramID, tc.data, tc.accounts...))
			if tc.expected == "" {
				require.Nil(t, result.Err)
				return
			}

			require.NotNil(t, result.Err)
			require.NotNil(t, result.Err.InstructionError())
			assert.Equal(t, tc.expected, result.Err.InstructionError().ErrorKey())
		})
	}

	account, err := env.bank.GetAccount(env.ctx, public(owned))
	require.NoError(t, err)
	assert.EqualValues(t, 9, account.Data[0])
}

func TestInvokeContext_FailedInvokeAbortsTransaction(t *testing.T) {
	env := setup(t, newTestProgram())

	payer := env.fund(t, LamportsPerSol)
	receiver := env.fund(t, LamportsPerSol)

	result := env.submit(t, []ed25519.PrivateKey{payer}, solana.NewInstruction(
		testProgramID,
		[]byte{testOpSwallowFailure},
		solana.NewAccountMeta(public(payer), true),
		solana.NewAccountMeta(public(receiver), false),
		solana.NewReadonlyAccountMeta(system.SystemAccount, false),
	))
	require.NotNil(t, result.Err)

	code, ok := solana.CustomErrorCode(result.Err)
	require.True(t, ok)
	assert.Equal(t, system.ErrorResultWithNegativeLamports, code)
}

func TestInvokeContext_ProgramDerivedSigner(t *testing.T) {
	env := setup(t, newTestProgram())

	payer := env.fund(t, 10*LamportsPerSol)
	receiver := env.fund(t, LamportsPerSol)

	vault, _, err := solana.FindProgramAddressAndBump(testProgramID, []byte("vault"))
	require.NoError(t, err)

	result := env.submit(t, []ed25519.PrivateKey{payer}, system.Transfer(public(payer), vault, 2*LamportsPerSol))
	require.Nil(t, result.Err)

	amount := make([]byte, 8)
	binary.LittleEndian.PutUint64(amount, LamportsPerSol)
	result = env.submit(t, []ed25519.PrivateKey{payer}, solana.NewInstruction(
		testProgramID,
		append([]byte{testOpPdaTransfer}, amount...),
		solana.NewAccountMeta(vault, false),
		solana.NewAccountMeta(public(receiver), false),
		solana.NewReadonlyAccountMeta(system.SystemAccount, false),
	))
	require.Nil(t, result.Err)

	assert.EqualValues(t, LamportsPerSol, env.balance(t, vault))
	assert.EqualValues(t, 2*LamportsPerSol, env.balance(t, public(receiver)))
}

func TestInvokeContext_ReturnDataAndEvents(t *testing.T) {
	env := setup(t, newTestProgram())

	payer := env.fund(t, LamportsPerSol)

	txn := env.newTransaction(t, []ed25519.PrivateKey{payer}, solana.NewInstruction(testProgramID, []byte{testOpReturnData, 1, 2, 3}))
	result, err := env.bank.SimulateTransaction(env.ctx, &txn, true)
	require.NoError(t, err)
	require.Nil(t, result.Err)
	require.NotNil(t, result.ReturnData)
	assert.Equal(t, []byte{1, 2, 3}, result.ReturnData.Data)
	assert.Equal(t, testProgramID, result.ReturnData.ProgramID)
}

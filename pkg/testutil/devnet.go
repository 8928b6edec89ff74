package testutil

import (
	"context"
	"crypto/ed25519"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"github.com/bagel-payroll/bagel-server/pkg/data"
	"github.com/bagel-payroll/bagel-server/pkg/data/account"
	"github.com/bagel-payroll/bagel-server/pkg/solana"
	"github.com/bagel-payroll/bagel-server/pkg/solana/bagel"
	inco_client "github.com/bagel-payroll/bagel-server/pkg/solana/inco"
	"github.com/bagel-payroll/bagel-server/pkg/solana/system"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
	bagel_program "github.com/bagel-payroll/bagel-server/pkg/svm/programs/bagel"
	"github.com/bagel-payroll/bagel-server/pkg/svm/programs/inco"
	"github.com/bagel-payroll/bagel-server/pkg/svm/programs/magicblock"
	"github.com/bagel-payroll/bagel-server/pkg/svm/programs/shadowwire"
)

// Clock is a manually advanced time source for the bank's clock sysvar.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Devnet is an in-process bank running the payroll program alongside the
// devnet collaborator programs.
type Devnet struct {
	Ctx   context.Context
	Bank  *svm.Bank
	Data  data.DatabaseData
	Clock *Clock

	Lightning  *inco.Lightning
	Token      *inco.Token
	Magicblock *magicblock.Program
	Shadowwire *shadowwire.Program
	Payroll    *bagel_program.Program

	KeyPair *inco_client.NetworkKeyPair
}

func NewDevnet(t *testing.T) *Devnet {
	d := &Devnet{
		Ctx:     context.Background(),
		Data:    data.NewTestDatabaseProvider(),
		Clock:   NewClock(time.Unix(1_700_000_000, 0)),
		KeyPair: inco_client.DevnetNetworkKeyPair(),
	}
	d.start(t)
	return d
}

// Restart replaces the bank and every program with fresh instances on the
// same persisted state, the way a validator process restart would.
func (d *Devnet) Restart(t *testing.T) {
	d.start(t)
}

func (d *Devnet) start(t *testing.T) {
	lightning := inco.NewLightning(d.KeyPair, d.Data)
	token := inco.NewToken(lightning)
	delegation := magicblock.New()
	transferLayer := shadowwire.New()
	payroll, err := bagel_program.New()
	require.NoError(t, err)

	bank, err := svm.NewBank(
		d.Ctx,
		d.Data,
		d.Clock.Now,
		svm.WithDefaultConfigs(),
		lightning,
		token,
		delegation,
		transferLayer,
		payroll,
	)
	require.NoError(t, err)

	d.Bank = bank
	d.Lightning = lightning
	d.Token = token
	d.Magicblock = delegation
	d.Shadowwire = transferLayer
	d.Payroll = payroll
}

// Fund returns a new wallet airdropped with lamports.
func (d *Devnet) Fund(t *testing.T, lamports uint64) ed25519.PrivateKey {
	key := GenerateSolanaKeypair(t)

	result, err := d.Bank.Airdrop(d.Ctx, PublicKey(key), lamports)
	require.NoError(t, err)
	require.Nil(t, result.Err)
	return key
}

// Submit signs and processes a transaction paid by the first signer.
func (d *Devnet) Submit(t *testing.T, signers []ed25519.PrivateKey, instructions ...solana.Instruction) *svm.TxResult {
	txn := solana.NewTransaction(PublicKey(signers[0]), instructions...)
	hash, _ := d.Bank.LatestBlockhash()
	txn.SetBlockhash(hash)
	require.NoError(t, txn.Sign(signers...))

	result, err := d.Bank.ProcessTransaction(d.Ctx, &txn)
	require.NoError(t, err)
	return result
}

// MustSubmit is Submit for transactions expected to succeed.
func (d *Devnet) MustSubmit(t *testing.T, signers []ed25519.PrivateKey, instructions ...solana.Instruction) *svm.TxResult {
	result := d.Submit(t, signers, instructions...)
	require.Nil(t, result.Err, "logs: %v", result.Logs)
	return result
}

// GetAccount returns nil for accounts that don't exist.
func (d *Devnet) GetAccount(t *testing.T, key ed25519.PublicKey) *svm.Account {
	account, err := d.Bank.GetAccount(d.Ctx, key)
	if err == svm.ErrAccountNotFound {
		return nil
	}
	require.NoError(t, err)
	return account
}

// SetAccount writes account state directly to the store, bypassing the
// runtime. It's used to seed state that can no longer be produced, such as
// legacy layouts.
func (d *Devnet) SetAccount(t *testing.T, key, owner ed25519.PublicKey, lamports uint64, data []byte) {
	require.NoError(t, d.Data.SaveAccounts(d.Ctx, &account.Record{
		Address:  base58.Encode(key),
		Owner:    base58.Encode(owner),
		Lamports: lamports,
		Data:     data,
		Slot:     d.Bank.Slot(),
	}))
}

func (d *Devnet) Balance(t *testing.T, key ed25519.PublicKey) uint64 {
	account := d.GetAccount(t, key)
	if account == nil {
		return 0
	}
	return account.Lamports
}

func (d *Devnet) Encrypt(t *testing.T, value uint64) inco_client.Ciphertext {
	ciphertext, err := inco_client.Encrypt(d.KeyPair.Public, value)
	require.NoError(t, err)
	return ciphertext
}

// Plaintext reveals the value behind a handle.
func (d *Devnet) Plaintext(t *testing.T, handle inco_client.Handle) uint64 {
	value, err := d.Lightning.Plaintext(d.Ctx, handle)
	require.NoError(t, err)
	require.True(t, value.IsUint64())
	return value.Uint64()
}

// Handle registers value with the co-processor without a transaction.
func (d *Devnet) Handle(t *testing.T, value uint64) inco_client.Handle {
	handle, err := d.Lightning.Encrypt(d.Ctx, new(big.Int).SetUint64(value))
	require.NoError(t, err)
	return handle
}

func (d *Devnet) MasterVault(t *testing.T) (ed25519.PublicKey, *bagel.MasterVault) {
	address, _, err := bagel.GetMasterVaultAddress()
	require.NoError(t, err)

	account := d.GetAccount(t, address)
	require.NotNil(t, account)

	var vault bagel.MasterVault
	require.NoError(t, vault.UnmarshalLegacy(account.Data))
	if len(account.Data) >= bagel.MasterVaultSize {
		require.NoError(t, vault.Unmarshal(account.Data))
	}
	return address, &vault
}

func (d *Devnet) BusinessEntry(t *testing.T, address ed25519.PublicKey) *bagel.BusinessEntry {
	account := d.GetAccount(t, address)
	require.NotNil(t, account)

	var business bagel.BusinessEntry
	require.NoError(t, business.Unmarshal(account.Data))
	return &business
}

func (d *Devnet) EmployeeEntry(t *testing.T, address ed25519.PublicKey) *bagel.EmployeeEntry {
	account := d.GetAccount(t, address)
	require.NotNil(t, account)

	var employee bagel.EmployeeEntry
	require.NoError(t, employee.Unmarshal(account.Data))
	return &employee
}

// CreateMint allocates and initializes a confidential mint controlled by
// authority.
func (d *Devnet) CreateMint(t *testing.T, payer, authority ed25519.PrivateKey) ed25519.PublicKey {
	mint := GenerateSolanaKeypair(t)

	d.MustSubmit(
		t,
		[]ed25519.PrivateKey{payer, mint},
		system.CreateAccount(
			PublicKey(payer),
			PublicKey(mint),
			inco_client.TOKEN_PROGRAM_ID,
			d.Bank.Rent().MinimumBalance(inco_client.MintAccountSize),
			inco_client.MintAccountSize,
		),
		inco_client.NewInitializeMintInstruction(
			&inco_client.InitializeMintInstructionAccounts{
				Mint:  PublicKey(mint),
				Payer: PublicKey(payer),
			},
			&inco_client.InitializeMintInstructionArgs{
				Decimals:      9,
				MintAuthority: PublicKey(authority),
			},
		),
	)
	return PublicKey(mint)
}

// CreateTokenAccount allocates and initializes a token account of mint held
// by owner.
func (d *Devnet) CreateTokenAccount(t *testing.T, payer ed25519.PrivateKey, mint, owner ed25519.PublicKey) ed25519.PublicKey {
	account := GenerateSolanaKeypair(t)

	d.MustSubmit(
		t,
		[]ed25519.PrivateKey{payer, account},
		system.CreateAccount(
			PublicKey(payer),
			PublicKey(account),
			inco_client.TOKEN_PROGRAM_ID,
			d.Bank.Rent().MinimumBalance(inco_client.TokenAccountSize),
			inco_client.TokenAccountSize,
		),
		inco_client.NewInitializeAccountInstruction(&inco_client.InitializeAccountInstructionAccounts{
			Account: PublicKey(account),
			Mint:    mint,
			Owner:   owner,
			Payer:   PublicKey(payer),
		}),
	)
	return PublicKey(account)
}

// MintTo credits a token account with a plaintext amount.
func (d *Devnet) MintTo(t *testing.T, authority ed25519.PrivateKey, mint, account ed25519.PublicKey, amount uint64) {
	d.MustSubmit(
		t,
		[]ed25519.PrivateKey{authority},
		inco_client.NewMintToInstruction(
			&inco_client.MintToInstructionAccounts{
				Mint:      mint,
				Account:   account,
				Authority: PublicKey(authority),
			},
			&inco_client.ConfidentialAmountInstructionArgs{
				Ciphertext: d.Encrypt(t, amount),
				InputType:  inco_client.InputTypeRawBytes,
			},
		),
	)
}

// TokenBalance reveals the plaintext balance of a token account.
func (d *Devnet) TokenBalance(t *testing.T, address ed25519.PublicKey) uint64 {
	account := d.GetAccount(t, address)
	require.NotNil(t, account)

	var tokenAccount inco_client.TokenAccount
	require.NoError(t, tokenAccount.Unmarshal(account.Data))

	balance, err := d.Token.Balance(d.Ctx, &tokenAccount)
	require.NoError(t, err)
	return balance.Uint64()
}

package inco

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	inco_client "github.com/bagel-payroll/bagel-server/pkg/solana/inco"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
)

// Transfer is a committed confidential token transfer. Amount is the
// decrypted value and only exists for test assertions.
type Transfer struct {
	Slot        uint64
	Mint        ed25519.PublicKey
	Source      ed25519.PublicKey
	Destination ed25519.PublicKey
	Authority   ed25519.PublicKey
	Amount      *big.Int
}

// Token is a devnet confidential token program. Balances are handles stored
// in token accounts owned by the program, so they follow transaction
// rollback like any other account state.
type Token struct {
	log *logrus.Entry

	lightning *Lightning

	failTransfers atomic.Bool

	transfersMu sync.Mutex
	transfers   []*Transfer
}

// NewToken returns a token program sharing the handle space of lightning.
func NewToken(lightning *Lightning) *Token {
	return &Token{
		log:       logrus.StandardLogger().WithField("type", "svm/programs/inco/token"),
		lightning: lightning,
	}
}

func (p *Token) ProgramID() ed25519.PublicKey {
	return inco_client.TOKEN_PROGRAM_ID
}

// InduceTransferFailures makes every subsequent transfer fail with
// TokenErrorTransferFailed.
func (p *Token) InduceTransferFailures() {
	p.failTransfers.Store(true)
}

func (p *Token) StopInducingTransferFailures() {
	p.failTransfers.Store(false)
}

// Transfers returns every committed transfer in commit order.
func (p *Token) Transfers() []*Transfer {
	p.transfersMu.Lock()
	defer p.transfersMu.Unlock()

	res := make([]*Transfer, len(p.transfers))
	copy(res, p.transfers)
	return res
}

// Balance reveals the plaintext balance of a token account.
func (p *Token) Balance(ctx context.Context, account *inco_client.TokenAccount) (*big.Int, error) {
	return p.lightning.Plaintext(ctx, account.Amount)
}

func (p *Token) Process(ctx *svm.InvokeContext) error {
	ix, err := inco_client.GetTokenInstruction(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	switch ix {
	case inco_client.TokenInstructionInitializeMint:
		return p.initializeMint(ctx)
	case inco_client.TokenInstructionInitializeAccount:
		return p.initializeAccount(ctx)
	case inco_client.TokenInstructionMintTo:
		return p.mintTo(ctx)
	case inco_client.TokenInstructionTransfer:
		return p.transfer(ctx)
	default:
		return svm.ErrInvalidInstructionData
	}
}

func (p *Token) initializeMint(ctx *svm.InvokeContext) error {
	args, err := inco_client.ParseInitializeMintInstructionArgs(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	mintInfo, err := ctx.Account(0)
	if err != nil {
		return err
	}
	if err := p.checkAllocated(mintInfo, inco_client.MintAccountSize); err != nil {
		return err
	}

	var existing inco_client.MintAccount
	if err := existing.Unmarshal(mintInfo.Data); err == nil && existing.IsInitialized {
		return svm.ErrAccountAlreadyInitialized
	}

	supply, err := p.lightning.Encrypt(ctx.Context(), big.NewInt(0))
	if err != nil {
		return err
	}

	mint := &inco_client.MintAccount{
		MintAuthority: args.MintAuthority,
		Supply:        supply,
		Decimals:      args.Decimals,
		IsInitialized: true,
	}
	copy(mintInfo.Data, mint.Marshal())

	ctx.Logf("Instruction: InitializeMint")
	return nil
}

func (p *Token) initializeAccount(ctx *svm.InvokeContext) error {
	accountInfo, err := ctx.Account(0)
	if err != nil {
		return err
	}
	mintInfo, err := ctx.Account(1)
	if err != nil {
		return err
	}
	ownerInfo, err := ctx.Account(2)
	if err != nil {
		return err
	}

	if err := p.checkAllocated(accountInfo, inco_client.TokenAccountSize); err != nil {
		return err
	}

	var existing inco_client.TokenAccount
	if err := existing.Unmarshal(accountInfo.Data); err == nil && existing.State != inco_client.AccountStateUninitialized {
		return svm.ErrAccountAlreadyInitialized
	}

	if _, err := p.loadMint(mintInfo); err != nil {
		return err
	}

	amount, err := p.lightning.Encrypt(ctx.Context(), big.NewInt(0))
	if err != nil {
		return err
	}

	account := &inco_client.TokenAccount{
		Mint:   mintInfo.Key,
		Owner:  ownerInfo.Key,
		Amount: amount,
		State:  inco_client.AccountStateInitialized,
	}
	copy(accountInfo.Data, account.Marshal())

	ctx.Logf("Instruction: InitializeAccount")
	return nil
}

func (p *Token) mintTo(ctx *svm.InvokeContext) error {
	_, args, err := inco_client.ParseConfidentialAmountInstructionArgs(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	mintInfo, err := ctx.Account(0)
	if err != nil {
		return err
	}
	accountInfo, err := ctx.Account(1)
	if err != nil {
		return err
	}
	authorityInfo, err := ctx.Account(2)
	if err != nil {
		return err
	}

	mint, err := p.loadMint(mintInfo)
	if err != nil {
		return err
	}
	account, err := p.loadAccount(accountInfo)
	if err != nil {
		return err
	}

	if !authorityInfo.IsSigner || !bytes.Equal(authorityInfo.Key, mint.MintAuthority) {
		ctx.Logf("Error: mint authority mismatch")
		return tokenError(inco_client.TokenErrorOwnerMismatch)
	}
	if !bytes.Equal(account.Mint, mintInfo.Key) {
		return tokenError(inco_client.TokenErrorMintMismatch)
	}

	amount, err := p.decrypt(args.Ciphertext)
	if err != nil {
		return err
	}

	supply, balance, err := p.plaintexts(ctx.Context(), mint.Supply, account.Amount)
	if err != nil {
		return err
	}
	supply.Add(supply, amount)
	balance.Add(balance, amount)
	if supply.Cmp(inco_client.MaxUint128()) > 0 || balance.Cmp(inco_client.MaxUint128()) > 0 {
		return lightningError(inco_client.LightningErrorOverflow)
	}

	if mint.Supply, err = p.lightning.Encrypt(ctx.Context(), supply); err != nil {
		return err
	}
	if account.Amount, err = p.lightning.Encrypt(ctx.Context(), balance); err != nil {
		return err
	}
	copy(mintInfo.Data, mint.Marshal())
	copy(accountInfo.Data, account.Marshal())

	ctx.Logf("Instruction: MintTo")
	return nil
}

func (p *Token) transfer(ctx *svm.InvokeContext) error {
	_, args, err := inco_client.ParseConfidentialAmountInstructionArgs(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	sourceInfo, err := ctx.Account(0)
	if err != nil {
		return err
	}
	destinationInfo, err := ctx.Account(1)
	if err != nil {
		return err
	}
	authorityInfo, err := ctx.Account(2)
	if err != nil {
		return err
	}

	if p.failTransfers.Load() {
		ctx.Logf("Error: induced transfer failure")
		return tokenError(inco_client.TokenErrorTransferFailed)
	}

	source, err := p.loadAccount(sourceInfo)
	if err != nil {
		return err
	}
	destination, err := p.loadAccount(destinationInfo)
	if err != nil {
		return err
	}

	if !authorityInfo.IsSigner {
		return svm.ErrMissingRequiredSignature
	}
	if !bytes.Equal(authorityInfo.Key, source.Owner) {
		ctx.Logf("Error: %s does not own the source account", base58.Encode(authorityInfo.Key))
		return tokenError(inco_client.TokenErrorOwnerMismatch)
	}
	if !bytes.Equal(source.Mint, destination.Mint) {
		return tokenError(inco_client.TokenErrorMintMismatch)
	}

	amount, err := p.decrypt(args.Ciphertext)
	if err != nil {
		return err
	}

	if bytes.Equal(sourceInfo.Key, destinationInfo.Key) {
		ctx.Logf("Instruction: Transfer")
		return nil
	}

	sourceBalance, destinationBalance, err := p.plaintexts(ctx.Context(), source.Amount, destination.Amount)
	if err != nil {
		return err
	}
	if sourceBalance.Cmp(amount) < 0 {
		ctx.Logf("Error: insufficient funds")
		return tokenError(inco_client.TokenErrorInsufficientFunds)
	}
	sourceBalance.Sub(sourceBalance, amount)
	destinationBalance.Add(destinationBalance, amount)
	if destinationBalance.Cmp(inco_client.MaxUint128()) > 0 {
		return lightningError(inco_client.LightningErrorOverflow)
	}

	if source.Amount, err = p.lightning.Encrypt(ctx.Context(), sourceBalance); err != nil {
		return err
	}
	if destination.Amount, err = p.lightning.Encrypt(ctx.Context(), destinationBalance); err != nil {
		return err
	}
	copy(sourceInfo.Data, source.Marshal())
	copy(destinationInfo.Data, destination.Marshal())

	record := &Transfer{
		Slot:        ctx.Clock().Slot,
		Mint:        source.Mint,
		Source:      sourceInfo.Key,
		Destination: destinationInfo.Key,
		Authority:   authorityInfo.Key,
		Amount:      amount,
	}
	ctx.OnCommit(func() {
		p.transfersMu.Lock()
		p.transfers = append(p.transfers, record)
		p.transfersMu.Unlock()
	})

	ctx.Logf("Instruction: Transfer")
	return nil
}

func (p *Token) checkAllocated(info *svm.AccountInfo, size int) error {
	if !info.IsWritable {
		return svm.ErrInvalidArgument
	}
	if !info.IsOwnedBy(inco_client.TOKEN_PROGRAM_ID) {
		return svm.ErrIncorrectProgramID
	}
	if len(info.Data) < size {
		return svm.ErrAccountDataTooSmall
	}
	return nil
}

func (p *Token) loadMint(info *svm.AccountInfo) (*inco_client.MintAccount, error) {
	if !info.IsOwnedBy(inco_client.TOKEN_PROGRAM_ID) {
		return nil, svm.ErrIncorrectProgramID
	}

	var mint inco_client.MintAccount
	if err := mint.Unmarshal(info.Data); err != nil || !mint.IsInitialized {
		return nil, tokenError(inco_client.TokenErrorUninitializedAccount)
	}
	return &mint, nil
}

func (p *Token) loadAccount(info *svm.AccountInfo) (*inco_client.TokenAccount, error) {
	if !info.IsOwnedBy(inco_client.TOKEN_PROGRAM_ID) {
		return nil, svm.ErrIncorrectProgramID
	}

	var account inco_client.TokenAccount
	if err := account.Unmarshal(info.Data); err != nil || account.State != inco_client.AccountStateInitialized {
		return nil, tokenError(inco_client.TokenErrorUninitializedAccount)
	}
	return &account, nil
}

func (p *Token) decrypt(ciphertext inco_client.Ciphertext) (*big.Int, error) {
	if err := ciphertext.Validate(); err != nil {
		return nil, tokenError(inco_client.TokenErrorInvalidCiphertext)
	}

	amount, err := p.lightning.keyPair.Decrypt(ciphertext)
	if err != nil {
		return nil, tokenError(inco_client.TokenErrorInvalidCiphertext)
	}
	return amount, nil
}

func (p *Token) plaintexts(ctx context.Context, a, b inco_client.Handle) (*big.Int, *big.Int, error) {
	first, err := p.lightning.value(ctx, a)
	if err != nil {
		p.log.WithError(err).Warn("token balance handle could not be resolved")
		return nil, nil, err
	}
	second, err := p.lightning.value(ctx, b)
	if err != nil {
		p.log.WithError(err).Warn("token balance handle could not be resolved")
		return nil, nil, err
	}
	return first, second, nil
}

func tokenError(code inco_client.TokenErrorCode) error {
	return solana.CustomError(code)
}

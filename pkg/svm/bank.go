package svm

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bagel-payroll/bagel-server/pkg/cache"
	"github.com/bagel-payroll/bagel-server/pkg/data"
	"github.com/bagel-payroll/bagel-server/pkg/data/account"
	"github.com/bagel-payroll/bagel-server/pkg/data/transaction"
	"github.com/bagel-payroll/bagel-server/pkg/metrics"
	"github.com/bagel-payroll/bagel-server/pkg/solana"
	"github.com/bagel-payroll/bagel-server/pkg/solana/system"
	sync_util "github.com/bagel-payroll/bagel-server/pkg/sync"
)

const (
	metricsStructName = "svm.bank"

	transactionProcessedEventName = "TransactionProcessed"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrSignatureNotFound = errors.New("signature not found")
)

// TxResult is the outcome of processing or simulating a transaction.
type TxResult struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime time.Time

	// Landed is true when the transaction was committed, successfully or
	// not. Transactions rejected before execution don't land and are not
	// charged a fee.
	Landed bool

	Fee        uint64
	Err        *solana.TransactionError
	Logs       []string
	Events     [][]byte
	ReturnData *ReturnData
}

// Bank is a single node runtime that executes transactions against the
// account store.
type Bank struct {
	log  *logrus.Entry
	conf *conf

	data     data.DatabaseData
	now      func() time.Time
	rent     Rent
	programs map[string]Program

	accountLocks *sync_util.StripedLock

	// signatures holds the status of recently landed transactions
	signatures *cache.Cache[solana.Signature, solana.SignatureStatus]

	stateMu        sync.Mutex
	slot           uint64
	blockhashes    map[solana.Blockhash]uint64
	blockhashOrder []solana.Blockhash
	inflight       map[solana.Signature]struct{}

	faucet ed25519.PrivateKey
}

// NewBank returns a bank with the system program and the provided programs
// registered. now is the source of the clock sysvar.
func NewBank(ctx context.Context, data data.DatabaseData, now func() time.Time, configProvider ConfigProvider, programs ...Program) (*Bank, error) {
	conf := configProvider()

	b := &Bank{
		log:          logrus.StandardLogger().WithField("type", "svm/bank"),
		conf:         conf,
		data:         data,
		now:          now,
		rent:         DefaultRent(),
		programs:     make(map[string]Program),
		accountLocks: sync_util.NewStripedLock(uint(conf.accountLockStripes.Get(ctx))),
		signatures:   cache.New[solana.Signature, solana.SignatureStatus](int(conf.signatureCacheSize.Get(ctx))),
		blockhashes:  make(map[solana.Blockhash]uint64),
		inflight:     make(map[solana.Signature]struct{}),
	}

	for _, program := range append([]Program{newSystemProgram()}, programs...) {
		key := accountKey(program.ProgramID())
		if _, ok := b.programs[key]; ok {
			return nil, errors.Errorf("program %s registered twice", base58.Encode(program.ProgramID()))
		}
		b.programs[key] = program
	}

	b.registerBlockhash(sha256.Sum256([]byte("genesis")))

	if err := b.initFaucet(ctx); err != nil {
		return nil, errors.Wrap(err, "error initializing faucet")
	}

	return b, nil
}

func (b *Bank) initFaucet(ctx context.Context) error {
	_, faucet, err := ed25519.GenerateKey(nil)
	if err != nil {
		return err
	}
	b.faucet = faucet

	record := (&Account{
		Owner:    system.SystemAccount,
		Lamports: b.conf.faucetLamports.Get(ctx),
	}).toRecord(faucet.Public().(ed25519.PublicKey), 0)
	return b.data.SaveAccounts(ctx, record)
}

// ProcessTransaction executes and commits a transaction. The returned error is
// reserved for infrastructure failures; transaction failures are reported in
// TxResult.Err.
func (b *Bank) ProcessTransaction(ctx context.Context, txn *solana.Transaction) (*TxResult, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "ProcessTransaction")
	defer tracer.End()

	result, err := b.process(ctx, txn, true, true)
	if err != nil {
		tracer.OnError(err)
	}
	return result, err
}

// SimulateTransaction executes a transaction without committing it.
func (b *Bank) SimulateTransaction(ctx context.Context, txn *solana.Transaction, verifySignatures bool) (*TxResult, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "SimulateTransaction")
	defer tracer.End()

	result, err := b.process(ctx, txn, verifySignatures, false)
	if err != nil {
		tracer.OnError(err)
	}
	return result, err
}

func (b *Bank) process(ctx context.Context, txn *solana.Transaction, verifySignatures, commit bool) (*TxResult, error) {
	result := &TxResult{}
	if len(txn.Signatures) > 0 {
		result.Signature = txn.Signatures[0]
	}

	log := b.log.WithFields(logrus.Fields{
		"method":    "process",
		"signature": result.Signature.ToBase58(),
		"simulated": !commit,
	})

	reject := func(key solana.TransactionErrorKey) (*TxResult, error) {
		log.WithField("reason", key).Debug("transaction rejected")
		result.Err = solana.NewTransactionError(key)
		return result, nil
	}

	if err := sanitize(txn); err != nil {
		log.WithError(err).Debug("transaction failed sanitization")
		return reject(solana.TransactionErrorSanitizeFailure)
	}

	if verifySignatures {
		if err := txn.VerifySignatures(); err != nil {
			return reject(solana.TransactionErrorSignatureFailure)
		}
	}

	if !b.IsBlockhashValid(txn.Message.RecentBlockhash) {
		return reject(solana.TransactionErrorBlockhashNotFound)
	}

	if commit {
		isDuplicate, err := b.reserveSignature(ctx, result.Signature)
		if err != nil {
			return nil, err
		}
		if isDuplicate {
			return reject(solana.TransactionErrorDuplicateSignature)
		}
		defer b.releaseSignature(result.Signature)
	}

	msg := &txn.Message

	// Programs are never writable, regardless of the message header
	writable := make([]bool, len(msg.Accounts))
	var writeKeys, readKeys [][]byte
	for i, key := range msg.Accounts {
		_, isProgram := b.programs[accountKey(key)]
		writable[i] = msg.IsWritable(i) && !isProgram
		if writable[i] {
			writeKeys = append(writeKeys, key)
		} else {
			readKeys = append(readKeys, key)
		}
	}

	unlock := b.accountLocks.LockAll(writeKeys, readKeys)
	defer unlock()

	loaded, err := b.loadAccounts(ctx, msg.Accounts)
	if err != nil {
		return nil, err
	}

	fee := b.conf.lamportsPerSignature.Get(ctx) * uint64(msg.Header.NumSignatures)
	payerKey := msg.FeePayer()
	payer := loaded[accountKey(payerKey)]
	if !payer.IsOwnedBy(system.SystemAccount) || len(payer.Data) > 0 {
		return reject(solana.TransactionErrorInvalidAccountForFee)
	}
	if payer.Lamports < fee {
		return reject(solana.TransactionErrorInsufficientFundsForFee)
	}

	working := make(map[string]*Account, len(loaded))
	for key, state := range loaded {
		working[key] = state.Clone()
	}
	working[accountKey(payerKey)].Lamports -= fee
	payerAfterFee := working[accountKey(payerKey)].Clone()

	clock := b.Clock()
	tx := newTransactionContext(ctx, log, b.programs, working, clock, b.rent, int(b.conf.maxInvokeDepth.Get(ctx)))

	var ixErr *solana.InstructionError
	for i, compiled := range msg.Instructions {
		ix, err := decompile(msg, compiled, writable)
		if err != nil {
			return reject(solana.TransactionErrorSanitizeFailure)
		}

		if err := tx.execute(ix, 1); err != nil {
			ixErr = toInstructionError(log, i, err)
			break
		}
	}

	result.Fee = fee
	result.Logs = tx.logs
	result.Events = tx.events
	result.ReturnData = tx.returnData

	if ixErr != nil {
		result.Err, err = solana.TransactionErrorFromInstructionError(ixErr)
		if err != nil {
			return nil, errors.Wrap(err, "error encoding instruction error")
		}
	} else if index, ok := b.findRentViolation(msg.Accounts, loaded, working); ok {
		log.WithField("account", base58.Encode(msg.Accounts[index])).Debug("account left below rent exemption")
		result.Err = solana.NewTransactionError(solana.TransactionErrorInsufficientFundsForRent)
	}

	if !commit {
		result.Slot = clock.Slot
		return result, nil
	}

	// A failed transaction only commits the fee
	var modified []*account.Record
	slot, blockTime := b.advanceSlot()
	if result.Err != nil {
		modified = append(modified, payerAfterFee.toRecord(payerKey, slot))
	} else {
		for i, key := range msg.Accounts {
			if !writable[i] {
				continue
			}

			after := working[accountKey(key)]
			if after.equals(loaded[accountKey(key)]) {
				continue
			}
			modified = append(modified, after.toRecord(key, slot))
		}
	}

	result.Slot = slot
	result.BlockTime = blockTime
	result.Landed = true

	record, err := toTransactionRecord(txn, result)
	if err != nil {
		return nil, err
	}

	if err := b.data.CommitTransaction(ctx, record, modified...); err != nil {
		log.WithError(err).Warn("failure committing transaction")
		return nil, errors.Wrap(err, "error committing transaction")
	}

	b.signatures.Put(result.Signature, *toSignatureStatus(result))

	if result.Err == nil {
		for _, fn := range tx.onCommit {
			fn()
		}
	}

	for _, line := range result.Logs {
		log.Debug(line)
	}
	if result.Err != nil {
		log.WithError(result.Err).Info("transaction failed")
	}

	metrics.RecordEvent(ctx, transactionProcessedEventName, map[string]interface{}{
		"signature": result.Signature.ToBase58(),
		"slot":      result.Slot,
		"success":   result.Err == nil,
	})

	return result, nil
}

// loadAccounts fetches the committed state of every message account. Unknown
// addresses load as empty system accounts.
func (b *Bank) loadAccounts(ctx context.Context, keys []ed25519.PublicKey) (map[string]*Account, error) {
	loaded := make(map[string]*Account, len(keys))

	var addresses []string
	for _, key := range keys {
		if _, ok := b.programs[accountKey(key)]; ok {
			loaded[accountKey(key)] = newProgramAccount()
			continue
		}

		loaded[accountKey(key)] = newEmptyAccount()
		addresses = append(addresses, base58.Encode(key))
	}

	records, err := b.data.GetAccounts(ctx, addresses...)
	if err != nil {
		return nil, errors.Wrap(err, "error loading accounts")
	}

	for _, record := range records {
		key, err := base58.Decode(record.Address)
		if err != nil {
			return nil, errors.Wrap(err, "invalid account address")
		}

		state, err := accountFromRecord(record)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid account %s", record.Address)
		}
		loaded[accountKey(key)] = state
	}

	return loaded, nil
}

// findRentViolation returns the index of a modified account that ends the
// transaction below rent exemption. Accounts may only remain rent paying if
// they already were, kept their size, and weren't credited.
func (b *Bank) findRentViolation(keys []ed25519.PublicKey, loaded, working map[string]*Account) (int, bool) {
	for i, key := range keys {
		before, after := loaded[accountKey(key)], working[accountKey(key)]
		if after.equals(before) || after.Lamports == 0 || after.Executable {
			continue
		}

		if b.rent.IsExempt(after.Lamports, len(after.Data)) {
			continue
		}

		wasRentPaying := before.Lamports > 0 && !b.rent.IsExempt(before.Lamports, len(before.Data))
		if wasRentPaying && len(after.Data) == len(before.Data) && after.Lamports <= before.Lamports {
			continue
		}

		return i, true
	}
	return 0, false
}

func (b *Bank) reserveSignature(ctx context.Context, sig solana.Signature) (bool, error) {
	b.stateMu.Lock()
	if _, ok := b.inflight[sig]; ok {
		b.stateMu.Unlock()
		return true, nil
	}
	b.inflight[sig] = struct{}{}
	b.stateMu.Unlock()

	status, err := b.GetSignatureStatus(ctx, sig)
	if err == nil && status != nil {
		b.releaseSignature(sig)
		return true, nil
	} else if err != nil && err != ErrSignatureNotFound {
		b.releaseSignature(sig)
		return false, err
	}
	return false, nil
}

func (b *Bank) releaseSignature(sig solana.Signature) {
	b.stateMu.Lock()
	delete(b.inflight, sig)
	b.stateMu.Unlock()
}

// Clock returns the clock sysvar for the next transaction.
func (b *Bank) Clock() Clock {
	b.stateMu.Lock()
	slot := b.slot + 1
	b.stateMu.Unlock()

	return newClock(slot, b.now())
}

func (b *Bank) Rent() Rent {
	return b.rent
}

// Slot is the slot of the most recently committed transaction.
func (b *Bank) Slot() uint64 {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.slot
}

func (b *Bank) advanceSlot() (uint64, time.Time) {
	b.stateMu.Lock()
	b.slot++
	slot := b.slot
	previous := b.blockhashOrder[len(b.blockhashOrder)-1]
	b.stateMu.Unlock()

	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], slot)
	b.registerBlockhash(sha256.Sum256(append(previous[:], seed[:]...)))

	return slot, b.now()
}

func (b *Bank) registerBlockhash(hash solana.Blockhash) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	b.blockhashes[hash] = b.slot
	b.blockhashOrder = append(b.blockhashOrder, hash)

	maxAge := int(b.conf.maxBlockhashAge.Get(context.Background()))
	for len(b.blockhashOrder) > maxAge {
		delete(b.blockhashes, b.blockhashOrder[0])
		b.blockhashOrder = b.blockhashOrder[1:]
	}
}

// LatestBlockhash returns the most recent blockhash along with the last slot
// in which it remains valid.
func (b *Bank) LatestBlockhash() (solana.Blockhash, uint64) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	latest := b.blockhashOrder[len(b.blockhashOrder)-1]
	return latest, b.blockhashes[latest] + b.conf.maxBlockhashAge.Get(context.Background())
}

func (b *Bank) IsBlockhashValid(hash solana.Blockhash) bool {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	_, ok := b.blockhashes[hash]
	return ok
}

// GetAccount returns the committed state of an account.
func (b *Bank) GetAccount(ctx context.Context, key ed25519.PublicKey) (*Account, error) {
	if _, ok := b.programs[accountKey(key)]; ok {
		return newProgramAccount(), nil
	}

	record, err := b.data.GetAccount(ctx, base58.Encode(key))
	if err == account.ErrNotFound {
		return nil, ErrAccountNotFound
	} else if err != nil {
		return nil, err
	}
	return accountFromRecord(record)
}

// GetProgramAccounts returns every committed account owned by program whose
// data starts with dataPrefix, keyed by base58 address.
func (b *Bank) GetProgramAccounts(ctx context.Context, program ed25519.PublicKey, dataPrefix []byte) (map[string]*Account, error) {
	records, err := b.data.GetAllAccountsByOwner(ctx, base58.Encode(program), dataPrefix)
	if err == account.ErrNotFound {
		return map[string]*Account{}, nil
	} else if err != nil {
		return nil, err
	}

	res := make(map[string]*Account, len(records))
	for _, record := range records {
		state, err := accountFromRecord(record)
		if err != nil {
			return nil, err
		}
		res[record.Address] = state
	}
	return res, nil
}

// GetSignatureStatus returns the status of a landed transaction.
func (b *Bank) GetSignatureStatus(ctx context.Context, sig solana.Signature) (*solana.SignatureStatus, error) {
	if status, ok := b.signatures.Get(sig); ok {
		return &status, nil
	}

	record, err := b.data.GetTransaction(ctx, sig.ToBase58())
	if err == transaction.ErrNotFound {
		return nil, ErrSignatureNotFound
	} else if err != nil {
		return nil, err
	}

	status := &solana.SignatureStatus{
		Slot:               record.Slot,
		ConfirmationStatus: "finalized",
	}
	if record.HasErrors {
		var raw interface{}
		if err := json.Unmarshal([]byte(record.Err), &raw); err != nil {
			return nil, errors.Wrap(err, "invalid transaction error")
		}

		status.ErrorResult, err = solana.ParseTransactionError(raw)
		if err != nil {
			return nil, err
		}
	}
	return status, nil
}

// Airdrop funds an account from the faucet.
func (b *Bank) Airdrop(ctx context.Context, to ed25519.PublicKey, lamports uint64) (*TxResult, error) {
	faucet := b.faucet.Public().(ed25519.PublicKey)

	txn := solana.NewTransaction(faucet, system.Transfer(faucet, to, lamports))
	hash, _ := b.LatestBlockhash()
	txn.SetBlockhash(hash)
	if err := txn.Sign(b.faucet); err != nil {
		return nil, err
	}

	return b.ProcessTransaction(ctx, &txn)
}

// sanitize rejects structurally invalid messages.
func sanitize(txn *solana.Transaction) error {
	msg := &txn.Message

	if len(txn.Signatures) == 0 || len(txn.Signatures) != int(msg.Header.NumSignatures) {
		return errors.New("signature count mismatch")
	}
	if int(msg.Header.NumSignatures)+int(msg.Header.NumReadOnly) > len(msg.Accounts) {
		return errors.New("header exceeds account count")
	}
	if msg.Header.NumReadonlySigned >= msg.Header.NumSignatures {
		return errors.New("fee payer must be writable")
	}

	seen := make(map[string]struct{}, len(msg.Accounts))
	for _, key := range msg.Accounts {
		if len(key) != ed25519.PublicKeySize {
			return errors.New("invalid account key")
		}
		if _, ok := seen[accountKey(key)]; ok {
			return errors.New("account loaded twice")
		}
		seen[accountKey(key)] = struct{}{}
	}

	for _, ix := range msg.Instructions {
		if int(ix.ProgramIndex) >= len(msg.Accounts) || ix.ProgramIndex == 0 {
			return errors.New("invalid program index")
		}
		for _, index := range ix.Accounts {
			if int(index) >= len(msg.Accounts) {
				return errors.New("invalid account index")
			}
		}
	}

	return nil
}

// decompile expands a compiled instruction using the runtime's view of which
// accounts are writable.
func decompile(msg *solana.Message, compiled solana.CompiledInstruction, writable []bool) (solana.Instruction, error) {
	ix, err := msg.Decompile(compiled)
	if err != nil {
		return ix, err
	}

	for i, index := range compiled.Accounts {
		ix.Accounts[i].IsWritable = writable[index]
	}
	return ix, nil
}

func toTransactionRecord(txn *solana.Transaction, result *TxResult) (*transaction.Record, error) {
	record := &transaction.Record{
		Signature:         result.Signature.ToBase58(),
		Slot:              result.Slot,
		BlockTime:         result.BlockTime,
		Data:              txn.Marshal(),
		Fee:               result.Fee,
		Logs:              result.Logs,
		ConfirmationState: transaction.ConfirmationFinalized,
	}

	if result.ReturnData != nil {
		record.ReturnData = result.ReturnData.Data
	}

	if result.Err != nil {
		encoded, err := result.Err.JSONString()
		if err != nil {
			return nil, errors.Wrap(err, "error encoding transaction error")
		}
		record.HasErrors = true
		record.Err = encoded
		record.ConfirmationState = transaction.ConfirmationFailed
	}

	for _, key := range txn.Message.Accounts {
		record.Accounts = append(record.Accounts, base58.Encode(key))
	}

	return record, nil
}

func toSignatureStatus(result *TxResult) *solana.SignatureStatus {
	return &solana.SignatureStatus{
		Slot:               result.Slot,
		ErrorResult:        result.Err,
		ConfirmationStatus: "finalized",
	}
}

// IsProgram reports whether key is a registered program.
func (b *Bank) IsProgram(key ed25519.PublicKey) bool {
	_, ok := b.programs[accountKey(key)]
	return ok
}

package payroll

import (
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
)

var (
	ErrAccountNotFound = errors.New("account not found")
)

// Result is the outcome of a landed transaction.
type Result struct {
	Signature solana.Signature
	Slot      uint64

	// Logs are only available when the submitter executes transactions
	// in-process.
	Logs []string
}

// Submitter lands transactions and reads committed account state.
//
// Submit returns a *solana.TransactionError when the transaction was rejected
// or executed and failed.
type Submitter interface {
	LatestBlockhash(ctx context.Context) (solana.Blockhash, error)
	Submit(ctx context.Context, txn *solana.Transaction) (*Result, error)
	GetAccount(ctx context.Context, key ed25519.PublicKey) (*solana.AccountInfo, error)

	// GetProgramAccounts returns the accounts owned by program whose data
	// matches value at offset, keyed by base58 address.
	GetProgramAccounts(ctx context.Context, program ed25519.PublicKey, offset uint, value []byte) (map[string]*solana.AccountInfo, error)
}

type bankSubmitter struct {
	bank *svm.Bank
}

// NewBankSubmitter returns a Submitter executing against an in-process bank.
func NewBankSubmitter(bank *svm.Bank) Submitter {
	return &bankSubmitter{bank: bank}
}

func (s *bankSubmitter) LatestBlockhash(_ context.Context) (solana.Blockhash, error) {
	hash, _ := s.bank.LatestBlockhash()
	return hash, nil
}

func (s *bankSubmitter) Submit(ctx context.Context, txn *solana.Transaction) (*Result, error) {
	result, err := s.bank.ProcessTransaction(ctx, txn)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Signature: result.Signature,
		Slot:      result.Slot,
		Logs:      result.Logs,
	}
	if result.Err != nil {
		return res, result.Err
	}
	return res, nil
}

func (s *bankSubmitter) GetAccount(ctx context.Context, key ed25519.PublicKey) (*solana.AccountInfo, error) {
	state, err := s.bank.GetAccount(ctx, key)
	if err == svm.ErrAccountNotFound {
		return nil, ErrAccountNotFound
	} else if err != nil {
		return nil, err
	}
	return toAccountInfo(state), nil
}

func (s *bankSubmitter) GetProgramAccounts(ctx context.Context, program ed25519.PublicKey, offset uint, value []byte) (map[string]*solana.AccountInfo, error) {
	var prefix []byte
	if offset == 0 {
		prefix = value
	}

	accounts, err := s.bank.GetProgramAccounts(ctx, program, prefix)
	if err != nil {
		return nil, err
	}

	res := make(map[string]*solana.AccountInfo)
	for key, state := range accounts {
		if !matches(state.Data, offset, value) {
			continue
		}
		res[key] = toAccountInfo(state)
	}
	return res, nil
}

type rpcSubmitter struct {
	client solana.Client
}

// NewRPCSubmitter returns a Submitter talking to a validator over JSON-RPC.
func NewRPCSubmitter(client solana.Client) Submitter {
	return &rpcSubmitter{client: client}
}

func (s *rpcSubmitter) LatestBlockhash(_ context.Context) (solana.Blockhash, error) {
	return s.client.GetLatestBlockhash()
}

func (s *rpcSubmitter) Submit(_ context.Context, txn *solana.Transaction) (*Result, error) {
	sig, err := s.client.SubmitTransaction(*txn, solana.CommitmentFinalized)
	if err != nil {
		return nil, err
	}

	status, err := s.client.GetSignatureStatus(sig, solana.CommitmentFinalized)
	if err != nil {
		return nil, errors.Wrap(err, "error getting signature status")
	}

	res := &Result{
		Signature: sig,
		Slot:      status.Slot,
	}
	if status.ErrorResult != nil {
		return res, status.ErrorResult
	}
	return res, nil
}

func (s *rpcSubmitter) GetAccount(_ context.Context, key ed25519.PublicKey) (*solana.AccountInfo, error) {
	info, err := s.client.GetAccountInfo(key, solana.CommitmentFinalized)
	if err == solana.ErrNoAccountInfo {
		return nil, ErrAccountNotFound
	} else if err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *rpcSubmitter) GetProgramAccounts(_ context.Context, program ed25519.PublicKey, offset uint, value []byte) (map[string]*solana.AccountInfo, error) {
	keys, _, err := s.client.GetFilteredProgramAccounts(program, offset, value)
	if err != nil {
		return nil, err
	}

	res := make(map[string]*solana.AccountInfo)
	for _, key := range keys {
		decoded, err := base58.Decode(key)
		if err != nil {
			return nil, errors.Wrap(err, "invalid account key in response")
		}

		info, err := s.client.GetAccountInfo(decoded, solana.CommitmentFinalized)
		if err == solana.ErrNoAccountInfo {
			// Closed between the two calls
			continue
		} else if err != nil {
			return nil, err
		}
		res[key] = &info
	}
	return res, nil
}

func toAccountInfo(state *svm.Account) *solana.AccountInfo {
	return &solana.AccountInfo{
		Data:       state.Data,
		Owner:      state.Owner,
		Lamports:   state.Lamports,
		Executable: state.Executable,
	}
}

func matches(data []byte, offset uint, value []byte) bool {
	end := int(offset) + len(value)
	if end > len(data) {
		return false
	}

	for i, b := range value {
		if data[int(offset)+i] != b {
			return false
		}
	}
	return true
}

package solana

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"

	"github.com/bagel-payroll/bagel-server/pkg/retry"
	"github.com/bagel-payroll/bagel-server/pkg/retry/backoff"
)

const (
	slotDuration = 400 * time.Millisecond

	// Statuses are polled twice per slot for roughly 32 slots
	statusPollInterval = slotDuration / 2
	statusPollAttempts = 64

	blockhashRefreshInterval = 2 * time.Second

	rpcMaxAttempts = 3

	httpTooManyRequests  = 429
	rpcNodeUnhealthyCode = -32005
)

const (
	confirmationStatusProcessed = "processed"
	confirmationStatusConfirmed = "confirmed"
	confirmationStatusFinalized = "finalized"
)

// Commitment is the level of finality a request is evaluated at.
type Commitment struct {
	Commitment string `json:"commitment"`
}

var (
	CommitmentProcessed = Commitment{Commitment: confirmationStatusProcessed}
	CommitmentConfirmed = Commitment{Commitment: confirmationStatusConfirmed}
	CommitmentFinalized = Commitment{Commitment: confirmationStatusFinalized}
)

var (
	ErrNoAccountInfo     = errors.New("no account info")
	ErrSignatureNotFound = errors.New("signature not found")

	errRetriable         = errors.New("retriable rpc failure")
	errCommitmentPending = errors.New("commitment not reached")
)

// AccountInfo is the raw state of an account.
type AccountInfo struct {
	Data       []byte
	Owner      ed25519.PublicKey
	Lamports   uint64
	Executable bool
}

type SignatureStatus struct {
	Slot        uint64
	ErrorResult *TransactionError

	// Confirmations is nil once the transaction is rooted.
	Confirmations      *int
	ConfirmationStatus string
}

func (s SignatureStatus) Confirmed() bool {
	switch {
	case s.Finalized(), s.ConfirmationStatus == confirmationStatusConfirmed:
		return true
	default:
		return *s.Confirmations > 0
	}
}

func (s SignatureStatus) Finalized() bool {
	return s.Confirmations == nil || s.ConfirmationStatus == confirmationStatusFinalized
}

func (s SignatureStatus) reached(commitment Commitment) bool {
	switch commitment {
	case CommitmentConfirmed:
		return s.Confirmed()
	case CommitmentFinalized:
		return s.Finalized()
	default:
		return true
	}
}

// SimulationResult is the outcome of executing a transaction without
// committing it.
type SimulationResult struct {
	Err        *TransactionError
	Logs       []string
	ReturnData []byte
}

// Client is a JSON-RPC client for a Solana compatible validator.
type Client interface {
	GetAccountInfo(ed25519.PublicKey, Commitment) (AccountInfo, error)
	GetBalance(ed25519.PublicKey) (uint64, error)
	GetMinimumBalanceForRentExemption(size uint64) (lamports uint64, err error)
	GetLatestBlockhash() (Blockhash, error)
	GetSignatureStatus(Signature, Commitment) (*SignatureStatus, error)
	GetSignatureStatuses([]Signature) ([]*SignatureStatus, error)
	GetSlot(Commitment) (uint64, error)
	GetFilteredProgramAccounts(program ed25519.PublicKey, offset uint, filterValue []byte) ([]string, uint64, error)
	RequestAirdrop(ed25519.PublicKey, uint64, Commitment) (Signature, error)
	SimulateTransaction(Transaction) (*SimulationResult, error)
	SubmitTransaction(Transaction, Commitment) (Signature, error)
}

// withContext is the envelope of responses evaluated at a slot.
type withContext[T any] struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value T `json:"value"`
}

type encodedAccount struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"`
	Executable bool     `json:"executable"`
}

type encodedStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *int            `json:"confirmations"`
	ConfirmationStatus string          `json:"confirmationStatus"`
	Err                json.RawMessage `json:"err"`
}

type client struct {
	log     *logrus.Entry
	rpc     jsonrpc.RPCClient
	retrier *retry.Retrier

	blockhashMu      sync.RWMutex
	blockhash        Blockhash
	blockhashExpires time.Time
}

// New returns a client for the JSON-RPC endpoint.
func New(endpoint string) Client {
	return &client{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"type":     "solana/client",
			"endpoint": endpoint,
		}),
		rpc: jsonrpc.NewClient(endpoint),
		retrier: retry.NewRetrier(
			retry.RetriableErrors(errRetriable),
			retry.Limit(rpcMaxAttempts),
			retry.BackoffWithJitter(backoff.BinaryExponential(time.Second), 10*time.Second, 0.1),
		),
	}
}

// call invokes method, retrying rate limits and unhealthy nodes. Other RPC
// errors are returned as *jsonrpc.RPCError.
func (c *client) call(out interface{}, method string, params ...interface{}) error {
	var lastErr error
	_, err := c.retrier.Retry(func() error {
		lastErr = c.rpc.CallFor(out, method, params...)

		rpcErr, ok := lastErr.(*jsonrpc.RPCError)
		if !ok || (rpcErr.Code != httpTooManyRequests && rpcErr.Code != rpcNodeUnhealthyCode && rpcErr.Code < 500) {
			return lastErr
		}

		c.log.WithFields(logrus.Fields{
			"method": method,
			"code":   rpcErr.Code,
		}).Warn("rpc node unavailable")
		return errRetriable
	})
	if err == errRetriable {
		return errors.Wrapf(lastErr, "%s() failed after retries", method)
	}
	if err != nil {
		if _, ok := err.(*jsonrpc.RPCError); ok {
			return err
		}
		return errors.Wrapf(err, "%s() failed to send request", method)
	}
	return nil
}

func (c *client) GetSlot(commitment Commitment) (slot uint64, err error) {
	// A lone struct would otherwise be sent as the params object
	err = c.call(&slot, "getSlot", []interface{}{commitment})
	return slot, err
}

func (c *client) GetBalance(account ed25519.PublicKey) (uint64, error) {
	var resp withContext[uint64]
	if err := c.call(&resp, "getBalance", base58.Encode(account), CommitmentProcessed); err != nil {
		return 0, err
	}
	return resp.Value, nil
}

func (c *client) GetMinimumBalanceForRentExemption(size uint64) (lamports uint64, err error) {
	err = c.call(&lamports, "getMinimumBalanceForRentExemption", size)
	return lamports, err
}

// GetLatestBlockhash returns a blockhash cached for a jittered couple of
// seconds so concurrent submitters do not refresh in lockstep.
func (c *client) GetLatestBlockhash() (Blockhash, error) {
	c.blockhashMu.RLock()
	hash, expires := c.blockhash, c.blockhashExpires
	c.blockhashMu.RUnlock()

	if time.Now().Before(expires) {
		return hash, nil
	}

	var resp withContext[struct {
		Blockhash string `json:"blockhash"`
	}]
	if err := c.call(&resp, "getLatestBlockhash"); err != nil {
		return Blockhash{}, err
	}

	decoded, err := base58.Decode(resp.Value.Blockhash)
	if err != nil || len(decoded) != len(hash) {
		return Blockhash{}, errors.Errorf("invalid blockhash in response: %q", resp.Value.Blockhash)
	}
	copy(hash[:], decoded)

	jitter := time.Duration(float64(blockhashRefreshInterval) * (rand.Float64() - 0.2))

	c.blockhashMu.Lock()
	c.blockhash = hash
	c.blockhashExpires = time.Now().Add(blockhashRefreshInterval + jitter)
	c.blockhashMu.Unlock()

	return hash, nil
}

func (c *client) GetAccountInfo(account ed25519.PublicKey, commitment Commitment) (AccountInfo, error) {
	config := struct {
		Commitment string `json:"commitment"`
		Encoding   string `json:"encoding"`
	}{
		Commitment: commitment.Commitment,
		Encoding:   "base64",
	}

	var resp withContext[*encodedAccount]
	if err := c.call(&resp, "getAccountInfo", base58.Encode(account), config); err != nil {
		return AccountInfo{}, err
	}
	if resp.Value == nil {
		return AccountInfo{}, ErrNoAccountInfo
	}
	return resp.Value.decode()
}

func (a *encodedAccount) decode() (AccountInfo, error) {
	owner, err := base58.Decode(a.Owner)
	if err != nil || len(owner) != ed25519.PublicKeySize {
		return AccountInfo{}, errors.Errorf("invalid account owner: %q", a.Owner)
	}
	if len(a.Data) == 0 {
		return AccountInfo{}, errors.New("account data missing from response")
	}

	data, err := base64.StdEncoding.DecodeString(a.Data[0])
	if err != nil {
		return AccountInfo{}, errors.Wrap(err, "invalid base64 account data")
	}

	return AccountInfo{
		Data:       data,
		Owner:      owner,
		Lamports:   a.Lamports,
		Executable: a.Executable,
	}, nil
}

func (c *client) GetFilteredProgramAccounts(program ed25519.PublicKey, offset uint, filterValue []byte) ([]string, uint64, error) {
	type memcmp struct {
		Offset uint   `json:"offset"`
		Bytes  string `json:"bytes"`
	}

	config := struct {
		Commitment  string              `json:"commitment"`
		Encoding    string              `json:"encoding"`
		Filters     []map[string]memcmp `json:"filters"`
		WithContext bool                `json:"withContext"`
	}{
		Commitment: confirmationStatusFinalized,
		Encoding:   "base64",
		Filters: []map[string]memcmp{
			{"memcmp": {Offset: offset, Bytes: base58.Encode(filterValue)}},
		},
		WithContext: true,
	}

	var resp withContext[[]struct {
		Pubkey string `json:"pubkey"`
	}]
	if err := c.call(&resp, "getProgramAccounts", base58.Encode(program), config); err != nil {
		return nil, 0, err
	}

	keys := make([]string, len(resp.Value))
	for i, v := range resp.Value {
		keys[i] = v.Pubkey
	}
	return keys, resp.Context.Slot, nil
}

func (c *client) RequestAirdrop(account ed25519.PublicKey, lamports uint64, commitment Commitment) (Signature, error) {
	var encoded string
	if err := c.call(&encoded, "requestAirdrop", base58.Encode(account), lamports, commitment); err != nil {
		return Signature{}, err
	}

	sig, err := decodeSignature(encoded)
	if err != nil {
		return Signature{}, err
	}
	if sig == (Signature{}) {
		return Signature{}, errors.New("empty airdrop signature")
	}
	return sig, nil
}

func decodeSignature(encoded string) (sig Signature, err error) {
	decoded, err := base58.Decode(encoded)
	if err != nil || len(decoded) != len(sig) {
		return sig, errors.Errorf("invalid signature in response: %q", encoded)
	}
	copy(sig[:], decoded)
	return sig, nil
}

// SubmitTransaction sends txn with preflight checks at commitment. Preflight
// and execution failures are returned as *TransactionError.
func (c *client) SubmitTransaction(txn Transaction, commitment Commitment) (Signature, error) {
	sig := txn.Signatures[0]

	config := struct {
		SkipPreflight       bool   `json:"skipPreflight"`
		PreflightCommitment string `json:"preflightCommitment"`
	}{
		PreflightCommitment: commitment.Commitment,
	}

	var ignored string
	err := c.call(&ignored, "sendTransaction", base58.Encode(txn.Marshal()), config)
	if err == nil {
		return sig, nil
	}

	rpcErr, ok := err.(*jsonrpc.RPCError)
	if !ok {
		return sig, err
	}

	txErr, parseErr := ParseRPCError(rpcErr)
	if parseErr != nil || txErr == nil {
		return sig, err
	}

	c.log.WithField("signature", sig.ToBase58()).WithError(txErr).Debug("transaction rejected")
	return sig, txErr
}

func (c *client) SimulateTransaction(txn Transaction) (*SimulationResult, error) {
	config := struct {
		SigVerify bool   `json:"sigVerify"`
		Encoding  string `json:"encoding"`
	}{
		SigVerify: true,
		Encoding:  "base58",
	}

	var resp withContext[struct {
		Err        interface{} `json:"err"`
		Logs       []string    `json:"logs"`
		ReturnData *struct {
			Data []string `json:"data"`
		} `json:"returnData"`
	}]
	if err := c.call(&resp, "simulateTransaction", base58.Encode(txn.Marshal()), config); err != nil {
		return nil, err
	}

	txErr, err := ParseTransactionError(resp.Value.Err)
	if err != nil {
		return nil, errors.Wrap(err, "invalid simulation error")
	}
	result := &SimulationResult{
		Err:  txErr,
		Logs: resp.Value.Logs,
	}

	if rd := resp.Value.ReturnData; rd != nil && len(rd.Data) > 0 {
		result.ReturnData, err = base64.StdEncoding.DecodeString(rd.Data[0])
		if err != nil {
			return nil, errors.Wrap(err, "invalid base64 return data")
		}
	}
	return result, nil
}

// GetSignatureStatus polls until sig reaches commitment or fails. It gives up
// after roughly 32 slots.
func (c *client) GetSignatureStatus(sig Signature, commitment Commitment) (*SignatureStatus, error) {
	var status *SignatureStatus
	_, err := retry.Retry(
		func() error {
			statuses, err := c.GetSignatureStatuses([]Signature{sig})
			if err != nil {
				return err
			}

			status = statuses[0]
			switch {
			case status == nil:
				return ErrSignatureNotFound
			case status.ErrorResult != nil, status.reached(commitment):
				return nil
			default:
				return errCommitmentPending
			}
		},
		retry.RetriableErrors(ErrSignatureNotFound, errCommitmentPending),
		retry.Limit(statusPollAttempts),
		retry.Backoff(backoff.Constant(statusPollInterval), statusPollInterval),
	)
	return status, err
}

func (c *client) GetSignatureStatuses(sigs []Signature) ([]*SignatureStatus, error) {
	encoded := make([]string, len(sigs))
	for i, sig := range sigs {
		encoded[i] = sig.ToBase58()
	}

	config := struct {
		SearchTransactionHistory bool `json:"searchTransactionHistory"`
	}{
		SearchTransactionHistory: true,
	}

	var resp withContext[[]*encodedStatus]
	if err := c.call(&resp, "getSignatureStatuses", encoded, config); err != nil {
		return nil, err
	}

	statuses := make([]*SignatureStatus, len(sigs))
	for i, v := range resp.Value {
		if i >= len(statuses) {
			break
		}
		if v == nil {
			continue
		}

		status, err := v.decode()
		if err != nil {
			return nil, errors.Wrapf(err, "invalid status for %s", encoded[i])
		}
		statuses[i] = status
	}
	return statuses, nil
}

func (s *encodedStatus) decode() (*SignatureStatus, error) {
	status := &SignatureStatus{
		Slot:               s.Slot,
		Confirmations:      s.Confirmations,
		ConfirmationStatus: s.ConfirmationStatus,
	}

	if len(s.Err) == 0 {
		return status, nil
	}

	var raw interface{}
	if err := json.Unmarshal(s.Err, &raw); err != nil {
		return nil, err
	}

	var err error
	status.ErrorResult, err = ParseTransactionError(raw)
	return status, err
}

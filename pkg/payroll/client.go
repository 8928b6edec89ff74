package payroll

import (
	"bytes"
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bagel-payroll/bagel-server/pkg/metrics"
	"github.com/bagel-payroll/bagel-server/pkg/rate"
	"github.com/bagel-payroll/bagel-server/pkg/retry"
	"github.com/bagel-payroll/bagel-server/pkg/retry/backoff"
	"github.com/bagel-payroll/bagel-server/pkg/solana"
	"github.com/bagel-payroll/bagel-server/pkg/solana/bagel"
	"github.com/bagel-payroll/bagel-server/pkg/solana/inco"
)

const (
	metricsStructName = "payroll.client"
)

var (
	ErrRateLimited       = errors.New("submit rate exceeded for signer")
	ErrBlockhashNotFound = errors.New("blockhash not found")
	ErrNoSigners         = errors.New("at least one signer is required")
	ErrUnavailable       = errors.New("cluster unavailable")
)

// TransactionFailedError is returned when a transaction was rejected by the
// cluster or landed and failed.
type TransactionFailedError struct {
	Signature solana.Signature
	Logs      []string
	Err       *solana.TransactionError
}

func (e *TransactionFailedError) Error() string {
	if code, ok := e.ProgramError(); ok {
		return "transaction failed: " + code.Name() + ": " + code.Error()
	}
	return "transaction failed: " + e.Err.Error()
}

func (e *TransactionFailedError) Unwrap() error {
	return e.Err
}

// ProgramError decodes the payroll program's error code, if the failure came
// from the payroll program.
func (e *TransactionFailedError) ProgramError() (bagel.ErrorCode, bool) {
	return bagel.ErrorCodeFromError(e.Err)
}

// ProgramError extracts the payroll program's error code from an error
// returned by the Client.
func ProgramError(err error) (bagel.ErrorCode, bool) {
	var failed *TransactionFailedError
	if !errors.As(err, &failed) {
		return 0, false
	}
	return failed.ProgramError()
}

// Client builds, signs and submits payroll program instructions. Plaintext
// amounts are encrypted to the co-processor network key before they leave
// the client.
type Client struct {
	log  *logrus.Entry
	conf *conf

	submitter  Submitter
	networkKey inco.NetworkKey
	limiter    rate.Limiter

	masterVault ed25519.PublicKey
}

func NewClient(submitter Submitter, networkKey inco.NetworkKey, configProvider ConfigProvider) (*Client, error) {
	conf := configProvider()

	masterVault, _, err := bagel.GetMasterVaultAddress()
	if err != nil {
		return nil, errors.Wrap(err, "error deriving master vault address")
	}

	return &Client{
		log:         logrus.StandardLogger().WithField("type", "payroll/client"),
		conf:        conf,
		submitter:   submitter,
		networkKey:  networkKey,
		limiter:     rate.New(float64(conf.submitsPerSignerPerSecond.Get(context.Background()))),
		masterVault: masterVault,
	}, nil
}

// MasterVault is the address of the singleton vault.
func (c *Client) MasterVault() ed25519.PublicKey {
	return c.masterVault
}

func (c *Client) encrypt(value uint64) (inco.Ciphertext, error) {
	ciphertext, err := inco.Encrypt(c.networkKey, value)
	if err != nil {
		return nil, errors.Wrap(err, "error encrypting value")
	}
	return ciphertext, nil
}

// submit signs the instructions with a fresh blockhash and lands them. The
// first signer pays the fee. Only failures that happen before execution are
// retried.
func (c *Client) submit(ctx context.Context, method string, signers []ed25519.PrivateKey, instructions ...solana.Instruction) (*Result, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, method)
	defer tracer.End()

	if len(signers) == 0 {
		return nil, ErrNoSigners
	}
	payer := signers[0].Public().(ed25519.PublicKey)

	log := c.log.WithFields(logrus.Fields{
		"method": method,
		"payer":  base58.Encode(payer),
	})

	var result *Result
	attempts, err := retry.Retry(
		func() error {
			allowed, err := c.limiter.Allow(base58.Encode(payer))
			if err != nil {
				return err
			}
			if !allowed {
				return ErrRateLimited
			}

			// Nothing was sent yet, so a failure here is always safe to retry
			hash, err := c.submitter.LatestBlockhash(ctx)
			if err != nil {
				return errors.Wrapf(ErrUnavailable, "error getting latest blockhash: %v", err)
			}

			txn := solana.NewTransaction(payer, instructions...)
			txn.SetBlockhash(hash)
			if err := txn.Sign(signers...); err != nil {
				return errors.Wrap(err, "error signing transaction")
			}

			result, err = c.submitter.Submit(ctx, &txn)
			if err == nil {
				return nil
			}

			var txErr *solana.TransactionError
			if !errors.As(err, &txErr) {
				return err
			}
			if txErr.ErrorKey() == solana.TransactionErrorBlockhashNotFound {
				return ErrBlockhashNotFound
			}

			failed := &TransactionFailedError{
				Signature: txn.Signatures[0],
				Err:       txErr,
			}
			if result != nil {
				failed.Logs = result.Logs
			}
			return failed
		},
		retry.RetriableErrors(ErrRateLimited, ErrBlockhashNotFound, ErrUnavailable),
		retry.Limit(uint(c.conf.maxSubmitAttempts.Get(ctx))),
		retry.Context(ctx),
		retry.BackoffWithJitter(backoff.BinaryExponential(c.conf.baseBackoff.Get(ctx)), c.conf.maxBackoff.Get(ctx), 0.1),
	)
	if err != nil {
		log.WithError(err).WithField("attempts", attempts).Debug("transaction not submitted")
		tracer.OnError(err)
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"signature": result.Signature.ToBase58(),
		"slot":      result.Slot,
	}).Debug("transaction landed")
	return result, nil
}

func (c *Client) getAccountData(ctx context.Context, key ed25519.PublicKey) ([]byte, error) {
	info, err := c.submitter.GetAccount(ctx, key)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(bagel.PROGRAM_ID, info.Owner) {
		return nil, errors.Errorf("account %s is not owned by the payroll program", base58.Encode(key))
	}
	return info.Data, nil
}

// GetMasterVault fetches the vault, decoding either layout.
func (c *Client) GetMasterVault(ctx context.Context) (*bagel.MasterVault, error) {
	data, err := c.getAccountData(ctx, c.masterVault)
	if err != nil {
		return nil, err
	}

	var vault bagel.MasterVault
	if len(data) >= bagel.MasterVaultSize {
		err = vault.Unmarshal(data)
	} else {
		err = vault.UnmarshalLegacy(data)
	}
	if err != nil {
		return nil, errors.Wrap(err, "error decoding master vault")
	}
	return &vault, nil
}

func (c *Client) GetBusinessEntry(ctx context.Context, address ed25519.PublicKey) (*bagel.BusinessEntry, error) {
	data, err := c.getAccountData(ctx, address)
	if err != nil {
		return nil, err
	}

	var business bagel.BusinessEntry
	if err := business.Unmarshal(data); err != nil {
		return nil, errors.Wrap(err, "error decoding business entry")
	}
	return &business, nil
}

// GetEmployeeEntry fetches an employee entry. Entries delegated to a TEE
// validator are owned by the delegation program and are still decoded.
func (c *Client) GetEmployeeEntry(ctx context.Context, address ed25519.PublicKey) (*bagel.EmployeeEntry, error) {
	info, err := c.submitter.GetAccount(ctx, address)
	if err != nil {
		return nil, err
	}

	var employee bagel.EmployeeEntry
	if err := employee.Unmarshal(info.Data); err != nil {
		return nil, errors.Wrap(err, "error decoding employee entry")
	}
	return &employee, nil
}

func (c *Client) GetYieldPosition(ctx context.Context) (*bagel.YieldPosition, error) {
	address, _, err := bagel.GetYieldPositionAddress(c.masterVault)
	if err != nil {
		return nil, err
	}

	data, err := c.getAccountData(ctx, address)
	if err != nil {
		return nil, err
	}

	var position bagel.YieldPosition
	if err := position.Unmarshal(data); err != nil {
		return nil, errors.Wrap(err, "error decoding yield position")
	}
	return &position, nil
}

// EmployeeRecord is an employee entry along with its address.
type EmployeeRecord struct {
	Address ed25519.PublicKey
	Entry   *bagel.EmployeeEntry
}

// GetEmployeeEntries lists every employee entry currently owned by the
// payroll program. Entries delegated to a TEE validator are not included.
func (c *Client) GetEmployeeEntries(ctx context.Context) ([]*EmployeeRecord, error) {
	accounts, err := c.submitter.GetProgramAccounts(ctx, bagel.PROGRAM_ID, 0, bagel.EmployeeEntryDiscriminator)
	if err != nil {
		return nil, errors.Wrap(err, "error listing employee entries")
	}

	res := make([]*EmployeeRecord, 0, len(accounts))
	for key, info := range accounts {
		address, err := base58.Decode(key)
		if err != nil {
			return nil, err
		}

		var employee bagel.EmployeeEntry
		if err := employee.Unmarshal(info.Data); err != nil {
			c.log.WithError(err).WithField("address", key).Warn("skipping undecodable employee entry")
			continue
		}
		res = append(res, &EmployeeRecord{Address: address, Entry: &employee})
	}
	return res, nil
}

package transaction

import (
	"errors"
	"time"

	"github.com/mr-tron/base58/base58"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
)

type Confirmation uint

const (
	ConfirmationUnknown Confirmation = iota
	ConfirmationPending
	ConfirmationConfirmed
	ConfirmationFinalized
	ConfirmationFailed
)

// Record is a processed transaction along with its execution metadata. Failed
// transactions are recorded too, since they were charged a fee.
type Record struct {
	Id        uint64
	Signature string

	Slot      uint64
	BlockTime time.Time
	Data      []byte

	Fee       uint64
	HasErrors bool

	// Err is the JSON encoded transaction error, if any.
	Err string

	Logs       []string
	ReturnData []byte

	// Accounts are the static account keys referenced by the message.
	Accounts []string

	ConfirmationState Confirmation
	CreatedAt         time.Time
}

// Unmarshal decodes the raw transaction bytes.
func (r *Record) Unmarshal() (*solana.Transaction, error) {
	var txn solana.Transaction
	if err := txn.Unmarshal(r.Data); err != nil {
		return nil, err
	}

	if base58.Encode(txn.Signature()) != r.Signature {
		return nil, errors.New("signature mismatch")
	}
	return &txn, nil
}

func (r *Record) Validate() error {
	if len(r.Signature) == 0 {
		return errors.New("signature is required")
	}

	if len(r.Data) == 0 {
		return errors.New("data is required")
	}

	if r.HasErrors && len(r.Err) == 0 {
		return errors.New("error is required when the transaction failed")
	}

	return nil
}

func (r *Record) Clone() Record {
	data := make([]byte, len(r.Data))
	copy(data, r.Data)

	var returnData []byte
	if r.ReturnData != nil {
		returnData = make([]byte, len(r.ReturnData))
		copy(returnData, r.ReturnData)
	}

	return Record{
		Id:                r.Id,
		Signature:         r.Signature,
		Slot:              r.Slot,
		BlockTime:         r.BlockTime,
		Data:              data,
		Fee:               r.Fee,
		HasErrors:         r.HasErrors,
		Err:               r.Err,
		Logs:              append([]string(nil), r.Logs...),
		ReturnData:        returnData,
		Accounts:          append([]string(nil), r.Accounts...),
		ConfirmationState: r.ConfirmationState,
		CreatedAt:         r.CreatedAt,
	}
}

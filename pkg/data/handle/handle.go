package handle

import (
	"encoding/hex"
	"errors"
	"math/big"
	"time"
)

const (
	handleSize = 16
	maxBits    = 128
)

// Record is the plaintext behind a co-processor handle. Handles are created
// once and never change.
type Record struct {
	Id uint64

	// Handle is the hex encoded 16 byte handle
	Handle string
	Value  *big.Int

	CreatedAt time.Time
}

func (r *Record) Validate() error {
	decoded, err := hex.DecodeString(r.Handle)
	if err != nil || len(decoded) != handleSize {
		return errors.New("handle must be 16 hex encoded bytes")
	}

	if r.Value == nil {
		return errors.New("value is required")
	}
	if r.Value.Sign() < 0 || r.Value.BitLen() > maxBits {
		return errors.New("value must fit in an unsigned 128 bit integer")
	}

	return nil
}

func (r *Record) Clone() Record {
	var value *big.Int
	if r.Value != nil {
		value = new(big.Int).Set(r.Value)
	}

	return Record{
		Id:        r.Id,
		Handle:    r.Handle,
		Value:     value,
		CreatedAt: r.CreatedAt,
	}
}

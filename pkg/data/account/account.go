package account

import (
	"bytes"
	"errors"
	"time"
)

// Record is the persisted state of a single runtime account.
type Record struct {
	Id uint64

	Address    string
	Owner      string
	Lamports   uint64
	Data       []byte
	Executable bool

	// Slot is the slot in which the account was last written.
	Slot uint64

	CreatedAt     time.Time
	LastUpdatedAt time.Time
}

// IsDeleted reports whether the record represents a closed account. The
// runtime garbage collects accounts that end a transaction with no lamports.
func (r *Record) IsDeleted() bool {
	return r.Lamports == 0
}

// HasDataPrefix reports whether the account data starts with prefix.
func (r *Record) HasDataPrefix(prefix []byte) bool {
	return bytes.HasPrefix(r.Data, prefix)
}

func (r *Record) Validate() error {
	if len(r.Address) == 0 {
		return errors.New("address is required")
	}

	if len(r.Owner) == 0 {
		return errors.New("owner is required")
	}

	return nil
}

func (r *Record) Clone() Record {
	data := make([]byte, len(r.Data))
	copy(data, r.Data)

	return Record{
		Id:            r.Id,
		Address:       r.Address,
		Owner:         r.Owner,
		Lamports:      r.Lamports,
		Data:          data,
		Executable:    r.Executable,
		Slot:          r.Slot,
		CreatedAt:     r.CreatedAt,
		LastUpdatedAt: r.LastUpdatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id
	dst.Address = r.Address
	dst.Owner = r.Owner
	dst.Lamports = r.Lamports
	dst.Data = make([]byte, len(r.Data))
	copy(dst.Data, r.Data)
	dst.Executable = r.Executable
	dst.Slot = r.Slot
	dst.CreatedAt = r.CreatedAt
	dst.LastUpdatedAt = r.LastUpdatedAt
}

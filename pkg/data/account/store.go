package account

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("no records could be found")
)

type Store interface {
	// Get returns the account at the given address.
	//
	// ErrNotFound is returned if the account doesn't exist.
	Get(ctx context.Context, address string) (*Record, error)

	// GetMany returns every existing account among the provided addresses.
	// Addresses without an account are skipped.
	GetMany(ctx context.Context, addresses ...string) ([]*Record, error)

	// PutAll atomically upserts the provided accounts. Records with zero
	// lamports are deleted.
	PutAll(ctx context.Context, records ...*Record) error

	// GetAllByOwner returns every account owned by the program, optionally
	// restricted to accounts whose data begins with dataPrefix. Results are
	// ordered by address.
	//
	// ErrNotFound is returned if no accounts match.
	GetAllByOwner(ctx context.Context, owner string, dataPrefix []byte) ([]*Record, error)
}

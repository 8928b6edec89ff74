package transaction

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bagel-payroll/bagel-server/pkg/database/query"
)

var (
	ErrNotFound = errors.New("no records could be found")
)

type Store interface {
	// Get returns a transaction record for the given signature.
	//
	// ErrNotFound is returned if no record is found.
	Get(ctx context.Context, sig string) (*Record, error)

	// Put saves transaction data to the store. Saving a record for an existing
	// signature updates its execution metadata.
	Put(ctx context.Context, record *Record) error

	// GetAllByAccount returns a page of records that reference the given
	// account, using the record id as the cursor.
	//
	// ErrNotFound is returned if no records are found.
	GetAllByAccount(ctx context.Context, account string, opts ...query.Option) ([]*Record, error)
}

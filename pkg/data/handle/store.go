package handle

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("no records could be found")
	ErrExists   = errors.New("handle already exists")
)

type Store interface {
	// Put registers a new handle.
	//
	// ErrExists is returned if the handle is already registered.
	Put(ctx context.Context, record *Record) error

	// Get returns the record for the hex encoded handle.
	//
	// ErrNotFound is returned if the handle was never registered.
	Get(ctx context.Context, handle string) (*Record, error)
}

package inco

import (
	"context"
	"math/big"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/bagel-payroll/bagel-server/pkg/cache"
	"github.com/bagel-payroll/bagel-server/pkg/data/handle"
	inco_client "github.com/bagel-payroll/bagel-server/pkg/solana/inco"
)

const (
	maxCachedHandles = 100000
)

var (
	errUnknownHandle = errors.New("unknown handle")
)

// HandleStore persists the plaintext behind every handle, so encrypted state
// survives as long as the accounts referencing it.
type HandleStore interface {
	GetHandle(ctx context.Context, id string) (*handle.Record, error)
	SaveHandle(ctx context.Context, record *handle.Record) error
}

// registry maps handles to the plaintexts they encrypt. Handles are written
// through to the store before they're handed out. It lives outside of account
// state, so handles created by a failed transaction simply become
// unreachable.
type registry struct {
	store  HandleStore
	values *cache.Cache[inco_client.Handle, *big.Int]
}

func newRegistry(store HandleStore) *registry {
	return &registry{
		store:  store,
		values: cache.New[inco_client.Handle, *big.Int](maxCachedHandles),
	}
}

func (r *registry) put(ctx context.Context, value *big.Int) (inco_client.Handle, error) {
	for {
		var h inco_client.Handle
		id := uuid.New()
		copy(h[:], id[:])
		if h.IsZero() {
			continue
		}

		err := r.store.SaveHandle(ctx, &handle.Record{
			Handle: h.Hex(),
			Value:  value,
		})
		switch err {
		case nil:
		case handle.ErrExists:
			continue
		default:
			return inco_client.Handle{}, errors.Wrap(err, "error saving handle")
		}

		r.values.Put(h, new(big.Int).Set(value))
		return h, nil
	}
}

// get returns errUnknownHandle for handles that were never registered.
func (r *registry) get(ctx context.Context, h inco_client.Handle) (*big.Int, error) {
	if value, ok := r.values.Get(h); ok {
		return new(big.Int).Set(value), nil
	}

	record, err := r.store.GetHandle(ctx, h.Hex())
	if err == handle.ErrNotFound {
		return nil, errUnknownHandle
	} else if err != nil {
		return nil, errors.Wrap(err, "error loading handle")
	}

	r.values.Put(h, new(big.Int).Set(record.Value))
	return record.Value, nil
}

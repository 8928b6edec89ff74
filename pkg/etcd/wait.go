package etcd

import (
	"context"

	v3 "go.etcd.io/etcd/client/v3"
)

// WaitFor blocks until key exists, or no longer exists when exists is
// false. It returns immediately if key is already in the desired state.
func WaitFor(ctx context.Context, client *v3.Client, key string, exists bool) error {
	get, err := client.Get(ctx, key)
	if err != nil {
		return err
	}

	if (len(get.Kvs) > 0) == exists {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	desired := v3.EventTypeDelete
	if exists {
		desired = v3.EventTypePut
	}

	// Starting after the read revision ensures no transition is missed
	for w := range client.Watch(ctx, key, v3.WithRev(get.Header.Revision+1)) {
		if err := w.Err(); err != nil {
			return err
		}

		for _, e := range w.Events {
			if e.Type == desired {
				return nil
			}
		}
	}

	return ctx.Err()
}

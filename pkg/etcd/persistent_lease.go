package etcd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"

	"github.com/bagel-payroll/bagel-server/pkg/retry"
	"github.com/bagel-payroll/bagel-server/pkg/retry/backoff"
)

var (
	errLeaseLost  = errors.New("lease lost")
	errKeyRemoved = errors.New("key removed")
)

// PersistentLease keeps a <key, value> pair attached to a lease for as long
// as it is open. If the lease expires or the key is removed, the pair is
// written again under a new lease.
//
// It advertises the presence of a process: the key disappears shortly after
// the process crashes or is partitioned from etcd, and reappears once it
// recovers.
type PersistentLease struct {
	log    *logrus.Entry
	client *v3.Client
	ttl    int64

	key   string
	valCh chan string

	closeFn sync.Once
	closeCh chan struct{}
	doneCh  chan struct{}
}

// NewPersistentLease creates a new PersistentLease which starts immediately
// in the background.
func NewPersistentLease(client *v3.Client, key, val string, ttl time.Duration) (*PersistentLease, error) {
	ttlSeconds := int64(ttl.Truncate(time.Second).Seconds())
	if ttlSeconds < 1 || ttlSeconds > 60 {
		return nil, fmt.Errorf("invalid ttl %v: must be [1s, 60s]", ttl)
	}

	pl := &PersistentLease{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"type": "etcd/persistent_lease",
			"key":  key,
		}),
		client: client,
		ttl:    ttlSeconds,

		key:   key,
		valCh: make(chan string),

		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	go pl.run(val)

	return pl, nil
}

// SetValue replaces the value. It propagates asynchronously, so a Get() or
// Watch() is needed to observe it.
func (pl *PersistentLease) SetValue(val string) {
	select {
	case pl.valCh <- val:
	case <-pl.closeCh:
	}
}

// Close removes the pair and stops the background job. Close is idempotent,
// and a closed PersistentLease cannot be restarted.
func (pl *PersistentLease) Close() {
	pl.closeFn.Do(func() {
		close(pl.closeCh)
	})
	<-pl.doneCh
}

func (pl *PersistentLease) run(val string) {
	defer close(pl.doneCh)

	_, _ = retry.Retry(
		func() error {
			select {
			case <-pl.closeCh:
				return nil
			default:
			}

			var err error
			val, err = pl.hold(val)
			return err
		},
		func(attempts uint, err error) bool {
			pl.log.WithError(err).Warn("failure keeping lease, recreating")
			return true
		},
		retry.BackoffWithJitter(backoff.Constant(time.Second), time.Second, 0.1),
	)
}

// hold writes the pair under a new lease and keeps both alive until the
// lease is lost, the key is removed, or the PersistentLease is closed. It
// returns the latest value.
func (pl *PersistentLease) hold(val string) (string, error) {
	ctx, cancel := context.WithCancel(v3.WithRequireLeader(context.Background()))
	defer cancel()

	grant, err := pl.client.Grant(ctx, pl.ttl)
	if err != nil {
		return val, err
	}
	defer pl.revoke(grant.ID)

	keepAliveCh, err := pl.client.KeepAlive(ctx, grant.ID)
	if err != nil {
		return val, err
	}

	put, err := pl.put(ctx, val, grant.ID)
	if err != nil {
		return val, err
	}

	// Watches for external removal of the key
	watchCh := pl.client.Watch(ctx, pl.key, v3.WithRev(put.Header.Revision+1))

	for {
		select {
		case <-pl.closeCh:
			return val, nil

		case _, ok := <-keepAliveCh:
			if !ok {
				return val, errLeaseLost
			}

		case w, ok := <-watchCh:
			if !ok {
				return val, errLeaseLost
			}
			if err := w.Err(); err != nil {
				return val, err
			}
			for _, e := range w.Events {
				if e.Type == v3.EventTypeDelete {
					return val, errKeyRemoved
				}
			}

		case val = <-pl.valCh:
			if _, err := pl.put(ctx, val, grant.ID); err != nil {
				return val, err
			}
		}
	}
}

func (pl *PersistentLease) put(ctx context.Context, val string, lease v3.LeaseID) (*v3.PutResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(pl.ttl)*time.Second)
	defer cancel()

	resp, err := pl.client.Put(ctx, pl.key, val, v3.WithLease(lease))
	if err != nil {
		return nil, fmt.Errorf("failed to write key %q: %w", pl.key, err)
	}
	return resp, nil
}

func (pl *PersistentLease) revoke(lease v3.LeaseID) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(pl.ttl)*time.Second)
	defer cancel()

	if _, err := pl.client.Revoke(ctx, lease); err != nil {
		pl.log.WithError(err).Debug("failed to revoke lease")
	}
}

package etcd

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.etcd.io/etcd/api/v3/mvccpb"
	v3 "go.etcd.io/etcd/client/v3"

	"github.com/bagel-payroll/bagel-server/pkg/etcd"
	"github.com/bagel-payroll/bagel-server/pkg/lock"
)

const (
	revokeTimeout = 5 * time.Second
)

// LockManager hands out locks backed by etcd keys. A held lock is a key
// attached to a lease owned by the holder, so the lock is released when the
// holder stops renewing the lease.
type LockManager struct {
	log     *logrus.Entry
	client  *v3.Client
	rootKey string
	ttl     int64
	value   string

	mu     sync.Mutex
	closed bool
	locks  map[*Lock]struct{}
}

// NewLockManager returns a LockManager whose locks live under rootKey. The
// lock value identifies the holder, and ttl bounds how long a crashed holder
// keeps the lock.
func NewLockManager(client *v3.Client, rootKey string, ttl time.Duration, value string) (*LockManager, error) {
	// Bounded by etcd's lease keep alive
	if ttl < time.Second || ttl > time.Minute {
		return nil, fmt.Errorf("invalid lock ttl: %v (must be [1s, 60s])", ttl)
	}

	return &LockManager{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"type": "etcd/LockManager",
			"root": rootKey,
		}),
		client:  client,
		rootKey: rootKey,
		ttl:     int64(ttl.Round(time.Second).Seconds()),
		value:   value,
		locks:   make(map[*Lock]struct{}),
	}, nil
}

// Create implements lock.Manager.
func (lm *LockManager) Create(_ context.Context, name string) (lock.DistributedLock, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.closed {
		return nil, fmt.Errorf("LockManager is closed")
	}

	key := path.Join(lm.rootKey, name)
	l := &Lock{
		log: lm.log.WithField("key", key),
		lm:  lm,
		key: key,
	}
	lm.locks[l] = struct{}{}
	return l, nil
}

// Close unlocks every lock created by the manager. No new locks can be
// created or acquired afterwards.
func (lm *LockManager) Close() {
	lm.mu.Lock()
	lm.closed = true
	locks := lm.locks
	lm.locks = make(map[*Lock]struct{})
	lm.mu.Unlock()

	for l := range locks {
		ctx, cancel := context.WithTimeout(context.Background(), revokeTimeout)
		if err := l.Unlock(ctx); err != nil {
			l.log.WithError(err).Warn("failed to unlock on close")
		}
		cancel()
	}
}

func (lm *LockManager) isClosed() bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	return lm.closed
}

// hold is a single tenure of a lock.
type hold struct {
	lease    v3.LeaseID
	revision int64

	stop     context.CancelFunc
	lostCh   chan struct{}
	lostOnce sync.Once
}

func (h *hold) lose() {
	h.lostOnce.Do(func() {
		close(h.lostCh)
		h.stop()
	})
}

type Lock struct {
	log *logrus.Entry
	lm  *LockManager
	key string

	mu        sync.Mutex
	acquiring bool
	held      *hold
}

// Acquire implements lock.DistributedLock. The lock is lost when ctx is
// cancelled, when the lease can't be renewed, or when the key is removed
// or replaced by anyone else.
func (l *Lock) Acquire(ctx context.Context) (<-chan struct{}, error) {
	l.mu.Lock()
	if l.acquiring || l.held != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("cannot call Acquire concurrently")
	}
	l.acquiring = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.acquiring = false
		l.mu.Unlock()
	}()

	if l.lm.isClosed() {
		return nil, fmt.Errorf("LockManager is closed")
	}

	lease, revision, err := l.claim(ctx)
	if err != nil {
		return nil, err
	}

	holdCtx, stop := context.WithCancel(v3.WithRequireLeader(context.Background()))
	keepAliveCh, err := l.lm.client.KeepAlive(holdCtx, lease)
	if err != nil {
		stop()
		l.revoke(lease)
		return nil, fmt.Errorf("failed to keep lock lease alive: %w", err)
	}

	h := &hold{
		lease:    lease,
		revision: revision,
		stop:     stop,
		lostCh:   make(chan struct{}),
	}

	l.mu.Lock()
	l.held = h
	l.mu.Unlock()

	l.log.Debug("Lock acquired")

	go l.monitor(ctx, holdCtx, h, keepAliveCh)

	return h.lostCh, nil
}

// claim creates the lock key under a fresh lease, waiting for the current
// holder's key to disappear whenever it exists.
//
// A lease is only granted for an attempt, since nothing renews it while
// waiting.
func (l *Lock) claim(ctx context.Context) (v3.LeaseID, int64, error) {
	client := l.lm.client

	for {
		if err := ctx.Err(); err != nil {
			return 0, 0, fmt.Errorf("failed to acquire lock: %w", err)
		}

		grant, err := client.Grant(ctx, l.lm.ttl)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to grant lock lease: %w", err)
		}

		resp, err := client.Txn(ctx).
			If(v3.Compare(v3.CreateRevision(l.key), "=", 0)).
			Then(v3.OpPut(l.key, l.lm.value, v3.WithLease(grant.ID))).
			Commit()
		if err != nil {
			l.revoke(grant.ID)
			return 0, 0, fmt.Errorf("failed to claim lock: %w", err)
		}
		if resp.Succeeded {
			return grant.ID, resp.Header.Revision, nil
		}

		l.revoke(grant.ID)

		l.log.Trace("Lock held elsewhere, waiting")
		if err := etcd.WaitFor(ctx, client, l.key, false); err != nil {
			return 0, 0, fmt.Errorf("failed to wait for lock: %w", err)
		}
	}
}

func (l *Lock) monitor(ctx, holdCtx context.Context, h *hold, keepAliveCh <-chan *v3.LeaseKeepAliveResponse) {
	defer func() {
		// Notify the holder before cleaning up, since revoking stalls while
		// the cluster has no leader.
		h.lose()

		l.mu.Lock()
		release := l.held == h
		if release {
			l.held = nil
		}
		l.mu.Unlock()

		if release {
			l.revoke(h.lease)
		}
	}()

	watchCh := l.lm.client.Watch(holdCtx, l.key, v3.WithRev(h.revision+1))

	for {
		select {
		case <-ctx.Done():
			l.log.Debug("Acquire context cancelled, releasing lock")
			return

		case <-holdCtx.Done():
			return

		case _, ok := <-keepAliveCh:
			if !ok {
				l.log.Warn("Lock lease expired or could not be renewed")
				return
			}

		case watchEvent, ok := <-watchCh:
			if !ok {
				return
			}

			if err := watchEvent.Err(); err != nil {
				l.log.WithError(err).Warn("Failure watching our lock key")
				return
			}

			for _, event := range watchEvent.Events {
				switch event.Type {
				case mvccpb.PUT:
					if event.Kv.CreateRevision != h.revision {
						l.log.Warn("Lock key create revision changed, cowardly unlocking")
						return
					}
				case mvccpb.DELETE:
					l.log.Trace("Lock key has been removed")
					return
				}
			}
		}
	}
}

func (l *Lock) revoke(lease v3.LeaseID) {
	ctx, cancel := context.WithTimeout(context.Background(), revokeTimeout)
	defer cancel()

	if _, err := l.lm.client.Revoke(ctx, lease); err != nil {
		l.log.WithError(err).Warn("Failed to revoke lock lease")
	}
}

// Unlock implements lock.DistributedLock.
func (l *Lock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	h := l.held
	l.held = nil
	l.mu.Unlock()

	if h == nil {
		return nil
	}

	h.lose()

	// Revoking the lease deletes the key
	_, err := l.lm.client.Revoke(ctx, h.lease)
	return err
}

// IsLocked implements lock.DistributedLock.
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.held != nil
}

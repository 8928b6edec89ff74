package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bagel-payroll/bagel-server/pkg/lock"
)

// LockManager hands out locks that only exclude holders within the same
// process. It backs single node deployments and tests where running etcd is
// not an option.
type LockManager struct {
	log *logrus.Entry

	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewLockManager() *LockManager {
	return &LockManager{
		log:  logrus.StandardLogger().WithField("type", "local/LockManager"),
		held: make(map[string]chan struct{}),
	}
}

// Create implements lock.Manager.
func (lm *LockManager) Create(_ context.Context, name string) (lock.DistributedLock, error) {
	return &Lock{
		log:  lm.log.WithField("key", name),
		lm:   lm,
		name: name,
	}, nil
}

// claim takes name if it is free. Otherwise it returns the channel that
// closes when the current holder lets go.
func (lm *LockManager) claim(name string) (released chan struct{}, claimed bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if current, ok := lm.held[name]; ok {
		return current, false
	}

	released = make(chan struct{})
	lm.held[name] = released
	return released, true
}

func (lm *LockManager) release(name string, released chan struct{}) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.held[name] == released {
		delete(lm.held, name)
	}
}

type Lock struct {
	log  *logrus.Entry
	lm   *LockManager
	name string

	mu        sync.Mutex
	acquiring bool
	released  chan struct{}
}

// Acquire implements lock.DistributedLock. The lock is lost when ctx is
// cancelled.
func (l *Lock) Acquire(ctx context.Context) (<-chan struct{}, error) {
	l.mu.Lock()
	if l.acquiring || l.released != nil {
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

	for {
		released, claimed := l.lm.claim(l.name)
		if claimed {
			l.mu.Lock()
			l.released = released
			l.mu.Unlock()

			l.log.Debug("Lock acquired")

			go func() {
				select {
				case <-ctx.Done():
					if err := l.Unlock(context.Background()); err != nil {
						l.log.WithError(err).Warn("Failed to unlock on cancellation")
					}
				case <-released:
				}
			}()
			return released, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to acquire lock: %w", ctx.Err())
		case <-released:
		}
	}
}

// Unlock implements lock.DistributedLock.
func (l *Lock) Unlock(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released == nil {
		return nil
	}

	l.lm.release(l.name, l.released)
	close(l.released)
	l.released = nil
	return nil
}

// IsLocked implements lock.DistributedLock.
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.released != nil
}

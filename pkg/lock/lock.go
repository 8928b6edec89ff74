package lock

import (
	"context"
)

// Manager creates locks. Two locks created for the same name exclude each
// other, whether they come from the same Manager or not.
type Manager interface {
	// Create creates an unlocked DistributedLock for a specific name.
	Create(ctx context.Context, name string) (DistributedLock, error)
}

// DistributedLock is a handle to a lock that may span multiple processes.
type DistributedLock interface {
	// Acquire attempts to acquire the lock, blocking until the lock has been
	// successfully acquired or ctx is done.
	//
	// The returned channel is closed when the lock is lost. The lock can be
	// lost when ctx is cancelled, Unlock() is called, or the implementation
	// detects that the lock _might_ have been lost.
	Acquire(ctx context.Context) (<-chan struct{}, error)

	// Unlock unlocks the lock, if the lock is held.
	//
	// Unlock is idempotent.
	Unlock(ctx context.Context) error

	// IsLocked returns whether the lock is held by this handle.
	IsLocked() bool
}

//go:build integration

package etcd

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/require"
	v3 "go.etcd.io/etcd/client/v3"

	"github.com/bagel-payroll/bagel-server/pkg/etcdtest"
)

func TestLock(t *testing.T) {
	require := require.New(t)

	pool, err := dockertest.NewPool("")
	require.NoError(err)

	client, teardown, err := etcdtest.StartEtcd(pool)
	require.NoError(err)
	defer teardown()

	for _, tc := range []struct {
		name string
		f    func(t *testing.T, client *v3.Client)
	}{
		{name: "Happy", f: testHappy},
		{name: "MultipleManagers", f: testMultipleManagers},
		{name: "SameManager", f: testSameManager},
		{name: "Cancellation", f: testCancellation},
		{name: "KeyRemoved", f: testKeyRemoved},
		{name: "Close", f: testClose},
		{name: "DoubleAcquire", f: testDoubleAcquire},
		{name: "DoubleUnlock", f: testDoubleUnlock},
	} {
		t.Run(tc.name, func(t *testing.T) { tc.f(t, client) })
	}
}

const (
	testLockPrefix = "/bagel/locks"
	testLockName   = "accrual-crank"
	testLockKey    = testLockPrefix + "/" + testLockName
)

func newTestManager(t *testing.T, client *v3.Client, holder string) *LockManager {
	lm, err := NewLockManager(client, testLockPrefix, 10*time.Second, holder)
	require.NoError(t, err)
	t.Cleanup(lm.Close)
	return lm
}

func testHappy(t *testing.T, client *v3.Client) {
	require := require.New(t)

	lm := newTestManager(t, client, "validator-1")

	lock, err := lm.Create(context.Background(), testLockName)
	require.NoError(err)
	require.False(lock.IsLocked())

	lostCh, err := lock.Acquire(context.Background())
	require.NoError(err)
	require.True(lock.IsLocked())

	kvs, err := client.Get(context.Background(), testLockKey)
	require.NoError(err)
	require.Len(kvs.Kvs, 1)
	require.Equal("validator-1", string(kvs.Kvs[0].Value))
	require.NotZero(kvs.Kvs[0].Lease)

	require.NoError(lock.Unlock(context.Background()))
	<-lostCh
	require.False(lock.IsLocked())

	kvs, err = client.Get(context.Background(), testLockKey)
	require.NoError(err)
	require.Empty(kvs.Kvs)
}

func testMultipleManagers(t *testing.T, client *v3.Client) {
	require := require.New(t)

	managers := []*LockManager{
		newTestManager(t, client, "validator-0"),
		newTestManager(t, client, "validator-1"),
	}

	type event struct {
		managerID int
		lock      interface{ Unlock(context.Context) error }
		lostCh    <-chan struct{}
	}

	lockedCh := make(chan event, 2)
	for i := range managers {
		go func(id int) {
			lock, err := managers[id].Create(context.Background(), testLockName)
			require.NoError(err)

			lostCh, err := lock.Acquire(context.Background())
			require.NoError(err)
			lockedCh <- event{managerID: id, lock: lock, lostCh: lostCh}
		}(i)
	}

	first := <-lockedCh

	// A bit race-y, but that's fine
	select {
	case <-lockedCh:
		require.FailNow("both managers hold the lock")
	case <-time.After(2 * time.Second):
	}

	kvs, err := client.Get(context.Background(), testLockKey)
	require.NoError(err)
	require.Len(kvs.Kvs, 1)
	require.Equal(fmt.Sprintf("validator-%d", first.managerID), string(kvs.Kvs[0].Value))

	require.NoError(first.lock.Unlock(context.Background()))
	<-first.lostCh

	select {
	case second := <-lockedCh:
		require.NotEqual(first.managerID, second.managerID)
		require.NoError(second.lock.Unlock(context.Background()))
	case <-time.After(10 * time.Second):
		require.FailNow("lock never handed over")
	}
}

func testSameManager(t *testing.T, client *v3.Client) {
	require := require.New(t)

	lm := newTestManager(t, client, "validator-1")

	first, err := lm.Create(context.Background(), testLockName)
	require.NoError(err)
	second, err := lm.Create(context.Background(), testLockName)
	require.NoError(err)

	_, err = first.Acquire(context.Background())
	require.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = second.Acquire(ctx)
	require.ErrorIs(err, context.DeadlineExceeded)
	require.False(second.IsLocked())

	require.NoError(first.Unlock(context.Background()))

	_, err = second.Acquire(context.Background())
	require.NoError(err)
	require.NoError(second.Unlock(context.Background()))
}

func testCancellation(t *testing.T, client *v3.Client) {
	require := require.New(t)

	lm := newTestManager(t, client, "validator-1")

	lock, err := lm.Create(context.Background(), testLockName)
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lostCh, err := lock.Acquire(ctx)
	require.NoError(err)
	cancel()

	<-lostCh
	require.Eventually(func() bool { return !lock.IsLocked() }, 5*time.Second, 10*time.Millisecond)

	_, err = lock.Acquire(ctx)
	require.ErrorIs(err, context.Canceled)
}

func testKeyRemoved(t *testing.T, client *v3.Client) {
	require := require.New(t)

	lm := newTestManager(t, client, "validator-1")

	lock, err := lm.Create(context.Background(), testLockName)
	require.NoError(err)

	lostCh, err := lock.Acquire(context.Background())
	require.NoError(err)

	// An operator removing the key takes the lock away
	_, err = client.Delete(context.Background(), testLockKey)
	require.NoError(err)

	select {
	case <-lostCh:
	case <-time.After(5 * time.Second):
		require.FailNow("lock not lost")
	}
	require.Eventually(func() bool { return !lock.IsLocked() }, 5*time.Second, 10*time.Millisecond)
}

func testClose(t *testing.T, client *v3.Client) {
	require := require.New(t)

	lm := newTestManager(t, client, "validator-1")

	lock, err := lm.Create(context.Background(), testLockName)
	require.NoError(err)

	lostCh, err := lock.Acquire(context.Background())
	require.NoError(err)

	lm.Close()
	<-lostCh

	_, err = lock.Acquire(context.Background())
	require.ErrorContains(err, "closed")

	lock, err = lm.Create(context.Background(), testLockName)
	require.Nil(lock)
	require.ErrorContains(err, "closed")
}

func testDoubleAcquire(t *testing.T, client *v3.Client) {
	require := require.New(t)

	lm := newTestManager(t, client, "validator-1")

	lock, err := lm.Create(context.Background(), testLockName)
	require.NoError(err)

	_, err = lock.Acquire(context.Background())
	require.NoError(err)

	_, err = lock.Acquire(context.Background())
	require.ErrorContains(err, "concurrently")

	require.NoError(lock.Unlock(context.Background()))
}

func testDoubleUnlock(t *testing.T, client *v3.Client) {
	require := require.New(t)

	lm := newTestManager(t, client, "validator-1")

	lock, err := lm.Create(context.Background(), testLockName)
	require.NoError(err)

	_, err = lock.Acquire(context.Background())
	require.NoError(err)

	require.NoError(lock.Unlock(context.Background()))
	require.NoError(lock.Unlock(context.Background()))
	require.False(lock.IsLocked())

	_, err = lock.Acquire(context.Background())
	require.NoError(err)
	require.NoError(lock.Unlock(context.Background()))
}

func TestInvalidTTL(t *testing.T) {
	for _, ttl := range []time.Duration{0, 500 * time.Millisecond, 2 * time.Minute} {
		_, err := NewLockManager(nil, "/locks", ttl, "validator-1")
		require.Error(t, err)
	}
}

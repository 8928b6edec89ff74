package sync

import (
	"fmt"
	base "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStripedLock_Get(t *testing.T) {
	const (
		workers    = 64
		increments = 1000
	)

	l := NewStripedLock(4)
	counts := make(map[string]int)
	var countsMu base.Mutex

	var wg base.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			key := fmt.Sprintf("account%d", worker%8)
			for j := 0; j < increments; j++ {
				mu := l.Get([]byte(key))
				mu.Lock()
				countsMu.Lock()
				counts[key]++
				countsMu.Unlock()
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	for _, count := range counts {
		assert.Equal(t, workers/8*increments, count)
	}
}

func TestStripedLock_LockAllSharedReads(t *testing.T) {
	l := NewStripedLock(16)
	key := []byte("vault")

	unlockFirst := l.LockAll(nil, [][]byte{key})

	acquired := make(chan struct{})
	go func() {
		unlock := l.LockAll(nil, [][]byte{key})
		unlock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("readers should share a stripe")
	}

	unlockFirst()
}

func TestStripedLock_LockAllExclusiveWrites(t *testing.T) {
	l := NewStripedLock(16)
	key := []byte("vault")

	// Requested both ways, the stripe is held exclusively
	unlock := l.LockAll([][]byte{key}, [][]byte{key})

	acquired := make(chan struct{})
	go func() {
		release := l.LockAll(nil, [][]byte{key})
		release()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("reader acquired a stripe held for writing")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("reader never acquired the stripe")
	}
}

func TestStripedLock_LockAllNoDeadlock(t *testing.T) {
	l := NewStripedLock(8)

	keys := make([][]byte, 32)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("account%d", i))
	}
	reversed := make([][]byte, len(keys))
	for i := range keys {
		reversed[len(keys)-1-i] = keys[i]
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		var wg base.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				l.LockAll(keys, nil)()
			}()
			go func() {
				defer wg.Done()
				l.LockAll(reversed[:16], reversed[16:])()
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("overlapping LockAll calls deadlocked")
	}
}

package sync

import (
	"sort"
	base "sync"
)

const (
	pointsPerStripe = 200
)

// StripedLock maps an unbounded key space onto a fixed set of locks, bounding
// memory while letting unrelated keys proceed concurrently.
type StripedLock struct {
	locks []base.RWMutex
	ring  *ring
}

// NewStripedLock returns a StripedLock with stripes locks.
func NewStripedLock(stripes uint) *StripedLock {
	if stripes == 0 {
		stripes = 1
	}

	return &StripedLock{
		locks: make([]base.RWMutex, stripes),
		ring:  newRing(stripes, pointsPerStripe),
	}
}

// Get returns the lock guarding key.
func (l *StripedLock) Get(key []byte) *base.RWMutex {
	return &l.locks[l.ring.index(key)]
}

// LockAll acquires the stripes for every key, exclusively for writeKeys and
// shared for readKeys, and returns a function that releases them. Stripes are
// acquired in index order so that concurrent callers with overlapping key
// sets cannot deadlock. A stripe requested both ways is held exclusively.
func (l *StripedLock) LockAll(writeKeys, readKeys [][]byte) (unlock func()) {
	exclusive := make(map[int]bool)
	for _, key := range writeKeys {
		exclusive[l.ring.index(key)] = true
	}
	for _, key := range readKeys {
		stripe := l.ring.index(key)
		if _, ok := exclusive[stripe]; !ok {
			exclusive[stripe] = false
		}
	}

	stripes := make([]int, 0, len(exclusive))
	for stripe := range exclusive {
		stripes = append(stripes, stripe)
	}
	sort.Ints(stripes)

	for _, stripe := range stripes {
		if exclusive[stripe] {
			l.locks[stripe].Lock()
		} else {
			l.locks[stripe].RLock()
		}
	}

	return func() {
		for i := len(stripes) - 1; i >= 0; i-- {
			stripe := stripes[i]
			if exclusive[stripe] {
				l.locks[stripe].Unlock()
			} else {
				l.locks[stripe].RUnlock()
			}
		}
	}
}

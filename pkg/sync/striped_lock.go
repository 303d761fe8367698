package sync

import (
	"sort"
	base "sync"
)

const (
	hashEntriesPerLock = 200
)

// StripedLock consistently maps a key space onto a fixed set of locks, so
// unrelated keys rarely contend while memory stays bounded.
type StripedLock struct {
	locks []base.RWMutex
	ring  *stripeRing
}

// NewStripedLock returns a new StripedLock with a static number of stripes.
func NewStripedLock(stripes uint) *StripedLock {
	if stripes == 0 {
		stripes = 1
	}

	return &StripedLock{
		locks: make([]base.RWMutex, stripes),
		ring:  newStripeRing(int(stripes), hashEntriesPerLock),
	}
}

// Get gets the lock for a key
func (l *StripedLock) Get(key []byte) *base.RWMutex {
	return &l.locks[l.stripe(key)]
}

// LockMany locks the stripes of every key, taking a write lock on a stripe if
// any written key maps to it and a read lock otherwise. Stripes are always
// acquired in ascending order, so concurrent callers cannot deadlock. The
// returned function releases all of them.
func (l *StripedLock) LockMany(readKeys, writeKeys [][]byte) (unlock func()) {
	exclusive := make(map[int]bool)
	for _, key := range readKeys {
		stripe := l.stripe(key)
		if _, ok := exclusive[stripe]; !ok {
			exclusive[stripe] = false
		}
	}
	for _, key := range writeKeys {
		exclusive[l.stripe(key)] = true
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

func (l *StripedLock) stripe(key []byte) int {
	return l.ring.stripe(key)
}

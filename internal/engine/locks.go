package engine

import (
	"sort"
	"sync"
)

// keyedLocks hands out one mutex per collection ID. Entries are reference
// counted and dropped once nobody holds or waits for them.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*refMutex)}
}

// Lock acquires the mutexes of every non-empty key in sorted order and
// returns a function releasing them. Duplicate keys are locked once.
func (k *keyedLocks) Lock(keys ...string) (unlock func()) {
	unique := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}
	sort.Strings(unique)

	held := make([]*refMutex, 0, len(unique))
	for _, key := range unique {
		m := k.acquire(key)
		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			k.release(unique[i])
		}
	}
}

func (k *keyedLocks) acquire(key string) *refMutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	return m
}

func (k *keyedLocks) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	m := k.locks[key]
	m.refs--
	if m.refs == 0 {
		delete(k.locks, key)
	}
}

// size reports how many keys currently have a mutex allocated.
func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

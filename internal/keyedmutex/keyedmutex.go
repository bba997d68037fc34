// Package keyedmutex provides mutual exclusion scoped to an arbitrary string key.
package keyedmutex

import (
	"context"
	"sync"
)

// entry is the per-key lock. The buffered channel holds one token while the
// key is locked; waiters block on the send and are woken in FIFO order.
type entry struct {
	sem  chan struct{}
	refs int
}

// KeyedMutex serializes callers that share a key while letting distinct keys
// proceed in parallel. Entries are reference counted and dropped once the
// last holder or waiter leaves, so the map only holds keys in use.
//
// The zero value is not usable; call New.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty KeyedMutex.
func New() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*entry)}
}

// Lock blocks until key is acquired or ctx is done. On success the returned
// func releases the key; it is safe to call more than once.
func (km *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	e := km.acquireRef(key)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		km.releaseRef(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			km.releaseRef(key, e)
		})
	}, nil
}

// Do runs fn while holding key.
func (km *KeyedMutex) Do(ctx context.Context, key string, fn func() error) error {
	unlock, err := km.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// Len returns the number of keys currently held or waited on.
func (km *KeyedMutex) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.entries)
}

func (km *KeyedMutex) acquireRef(key string) *entry {
	km.mu.Lock()
	defer km.mu.Unlock()

	e, ok := km.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		km.entries[key] = e
	}
	e.refs++
	return e
}

func (km *KeyedMutex) releaseRef(key string, e *entry) {
	km.mu.Lock()
	defer km.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(km.entries, key)
	}
}

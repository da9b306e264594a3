package cache

import (
	"context"
	"sync"
)

type keyLockEntry struct {
	ch   chan struct{}
	refs int
}

// KeyLock serialises work per key. The registry mutex is held only while an
// entry is looked up or released; the per-key slot is held across the caller's
// critical section. Idle entries are removed.
type KeyLock struct {
	mu      sync.Mutex
	entries map[string]*keyLockEntry
}

// NewKeyLock creates an empty registry.
func NewKeyLock() *KeyLock {
	return &KeyLock{entries: make(map[string]*keyLockEntry)}
}

// Lock blocks until the caller holds key or ctx is done. The returned unlock
// func is safe to call more than once.
func (l *KeyLock) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &keyLockEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *KeyLock) release(key string, e *keyLockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Len returns the number of keys currently held or awaited.
func (l *KeyLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

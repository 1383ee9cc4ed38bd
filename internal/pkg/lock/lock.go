// Package lock provides keyed in-process locks. Services use it to serialize
// operations on the same room before they reach the database.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a key stays held past the wait deadline.
var ErrLockTimeout = errors.New("timed out waiting for key lock")

// keyMutex is a mutex with reference counting for cleanup.
type keyMutex struct {
	ch   chan struct{}
	refs int
}

// KeyLock provides one mutex per key. Entries are dropped once no goroutine
// holds or waits on them.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*keyMutex
}

// NewKeyLock creates a new KeyLock instance.
func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]*keyMutex)}
}

func (kl *KeyLock) acquire(key string) *keyMutex {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	m, ok := kl.locks[key]
	if !ok {
		m = &keyMutex{ch: make(chan struct{}, 1)}
		kl.locks[key] = m
	}
	m.refs++
	return m
}

func (kl *KeyLock) release(key string, m *keyMutex) {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	m.refs--
	if m.refs == 0 {
		delete(kl.locks, key)
	}
}

// Unlock releases the lock for key.
func (kl *KeyLock) Unlock(key string) {
	kl.mu.Lock()
	m, ok := kl.locks[key]
	kl.mu.Unlock()
	if !ok {
		return
	}
	<-m.ch
	kl.release(key, m)
}

// LockContext acquires the lock for key, giving up when ctx is done or
// timeout elapses. A zero timeout waits on ctx only.
func (kl *KeyLock) LockContext(ctx context.Context, key string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	m := kl.acquire(key)
	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		kl.release(key, m)
		if ctx.Err() == context.DeadlineExceeded {
			return ErrLockTimeout
		}
		return ctx.Err()
	}
}

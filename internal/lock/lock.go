// Package lock serializes work per key, in process or across processes via Redis.
package lock

import (
	"context"
	"errors"
	"sync"
)

var ErrEmptyKey = errors.New("lock key is empty")

// Locker blocks until key is held or ctx ends. The returned func releases the key.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type entry struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker keeps one channel-based mutex per key and drops it once nobody references it.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*entry)}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, e, true) })
	}, nil
}

func (l *MemoryLocker) release(key string, e *entry, held bool) {
	if held {
		<-e.ch
	}
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// Len reports how many keys are currently tracked.
func (l *MemoryLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

package lock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	sem  chan struct{}
	refs int
}

// MemoryLocker serializes keys inside one process with a channel semaphore per key.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	opts    Options
}

func NewMemoryLocker(opts Options) *MemoryLocker {
	return &MemoryLocker{
		entries: make(map[string]*memoryEntry),
		opts:    opts,
	}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (Unlock, error) {
	e := l.ref(key)

	wait := l.opts.maxWait()
	if wait <= 0 {
		wait = time.Second
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(key)
		return nil, ctx.Err()
	case <-timer.C:
		l.unref(key)
		return nil, ErrLockContention
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.unref(key)
		})
	}, nil
}

func (l *MemoryLocker) ref(key string) *memoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &memoryEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *MemoryLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Package latch bounds the number of simultaneously admitted connections.
package latch

import (
	"context"
	"sync"
)

// Latch is a counter with a ceiling. CountUpOrAwait blocks while the count is at the limit,
// CountDown releases a single permit. Waiters are served in the arrival order.
type Latch struct {
	mu       sync.Mutex
	count    int64
	limit    int64
	released bool
	waiters  []chan struct{}
}

func New(limit int64) *Latch {
	return &Latch{limit: limit}
}

// CountUpOrAwait acquires a permit, blocking until one becomes available. It returns the
// context's error if the wait was cancelled. A released latch admits everyone.
func (l *Latch) CountUpOrAwait(ctx context.Context) error {
	l.mu.Lock()
	if l.released || l.count < l.limit {
		l.count++
		l.mu.Unlock()
		return nil
	}

	wake := make(chan struct{})
	l.waiters = append(l.waiters, wake)
	l.mu.Unlock()

	select {
	case <-wake:
	case <-ctx.Done():
		l.mu.Lock()
		if l.remove(wake) {
			l.mu.Unlock()
			return ctx.Err()
		}

		l.mu.Unlock()
		// the permit was handed over before the cancellation got noticed
	}

	return nil
}

// CountDown releases a permit and returns the new count. If anyone waits, the permit is
// handed over directly, so the count stays the same.
func (l *Latch) CountDown() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.waiters) > 0 && l.count <= l.limit {
		l.wakeOne()
		return l.count
	}

	if l.count > 0 {
		l.count--
	}

	return l.count
}

// SetLimit changes the limit. Already admitted holders are never evicted, however waiters
// are admitted immediately if the new limit allows it.
func (l *Latch) SetLimit(limit int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.limit = limit
	for len(l.waiters) > 0 && l.count < l.limit {
		l.count++
		l.wakeOne()
	}
}

// ReleaseAll admits every waiter and stops enforcing the limit until Reset is called. The
// count may therefore exceed the limit.
func (l *Latch) ReleaseAll() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.released = true
	for len(l.waiters) > 0 {
		l.count++
		l.wakeOne()
	}
}

func (l *Latch) IsReleased() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}

// Reset zeroes the count and re-enables the latch.
func (l *Latch) Reset() {
	l.mu.Lock()
	l.count = 0
	l.released = false
	l.mu.Unlock()
}

func (l *Latch) Count() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *Latch) Limit() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// QueueLength returns the number of goroutines waiting for a permit.
func (l *Latch) QueueLength() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}

func (l *Latch) wakeOne() {
	close(l.waiters[0])
	l.waiters[0] = nil
	l.waiters = l.waiters[1:]
}

func (l *Latch) remove(wake chan struct{}) bool {
	for i, w := range l.waiters {
		if w == wake {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return true
		}
	}

	return false
}

package syncx

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// RWLock is the runtime's read/write lock, a named type embedding
// sync.RWMutex, for call sites that want to read as using a deliberate
// primitive rather than a generic stdlib type. The timer set and the
// reactor's FD-context vector use sync.RWMutex directly, not RWLock.
type RWLock struct {
	sync.RWMutex
}

// SpinLock is a CAS-loop mutual-exclusion lock with no blocking
// syscall involved in the contended path — appropriate for the very
// short critical sections the scheduler's per-thread contexts use
// (single deque push/pop), where a futex wait would cost more than a
// few spun iterations.
type SpinLock struct {
	state atomic.Bool // false = unlocked, true = locked
}

// Lock spins until the lock is acquired, yielding the OS thread
// periodically so a spinning goroutine cannot starve the one holding
// the lock on a single-core GOMAXPROCS configuration.
func (l *SpinLock) Lock() {
	for i := 0; !l.state.CompareAndSwap(false, true); i++ {
		if i%64 == 63 {
			runtime.Gosched()
		}
	}
}

// TryLock attempts to acquire the lock without spinning.
func (l *SpinLock) TryLock() bool {
	return l.state.CompareAndSwap(false, true)
}

// Unlock releases the lock. Unlocking an unlocked SpinLock is a
// programming error and panics rather than silently no-opping.
func (l *SpinLock) Unlock() {
	if !l.state.CompareAndSwap(true, false) {
		panic("syncx: Unlock called on an unlocked SpinLock")
	}
}

// TestAndSetLock is the classic test-and-set primitive: a single
// atomic flag with no fairness guarantee at all, even weaker than
// SpinLock's periodic Gosched. It exists alongside SpinLock as the
// textbook degenerate case a SpinLock is usually built from.
type TestAndSetLock struct {
	flag atomic.Bool
}

// TestAndSet atomically sets the flag to true and returns its previous
// value — the primitive operation the lock is named for.
func (l *TestAndSetLock) TestAndSet() bool {
	return l.flag.Swap(true)
}

// Lock spins on TestAndSet until it observes the flag was false.
func (l *TestAndSetLock) Lock() {
	for l.TestAndSet() {
	}
}

// Clear releases the lock.
func (l *TestAndSetLock) Clear() {
	l.flag.Store(false)
}

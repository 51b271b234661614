// Package syncx collects the runtime's low-level synchronization
// primitives: counting/binary semaphores, read/write locks, spinlocks,
// and test-and-set locks. Read/write locking is left to sync.RWMutex,
// the same way the reactor's FD-context slice guards its readers and
// writers (reactor.go's fdMu); the rest are thin, purpose-shaped
// wrappers so call sites read as a deliberate vocabulary rather than
// raw primitives.
package syncx

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Semaphore is a counting semaphore. A binary semaphore is simply one
// constructed with max=1 (see NewBinary), suited to a start-barrier
// pattern. No other package of the runtime uses it: cthread's start
// barrier is a channel.
type Semaphore struct {
	w   *semaphore.Weighted
	max int64
}

// NewSemaphore constructs a counting semaphore with the given maximum
// concurrent holders.
func NewSemaphore(max int64) *Semaphore {
	if max <= 0 {
		max = 1
	}
	return &Semaphore{w: semaphore.NewWeighted(max), max: max}
}

// NewBinary constructs a binary (mutex-like) semaphore, initially free.
func NewBinary() *Semaphore {
	return NewSemaphore(1)
}

// Acquire blocks until a unit is available or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	return s.w.Acquire(ctx, 1)
}

// Wait is a context-free Acquire, used by start barriers where there
// is no cancellation path — waiting is the whole point.
func (s *Semaphore) Wait() {
	_ = s.w.Acquire(context.Background(), 1)
}

// TryAcquire attempts to take a unit without blocking.
func (s *Semaphore) TryAcquire() bool {
	return s.w.TryAcquire(1)
}

// Release gives back a unit. Releasing more units than were ever
// acquired panics, matching semaphore.Weighted's own contract.
func (s *Semaphore) Release() {
	s.w.Release(1)
}

// Notify is Release under the name a producer waking a single waiter
// goes by, so start-barrier code reads naturally at its call sites.
func (s *Semaphore) Notify() { s.Release() }

func (s *Semaphore) String() string {
	return fmt.Sprintf("Semaphore(max=%d)", s.max)
}

package syncx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBinarySemaphoreMutualExclusion(t *testing.T) {
	sem := NewBinary()
	require.True(t, sem.TryAcquire())
	require.False(t, sem.TryAcquire())
	sem.Release()
	require.True(t, sem.TryAcquire())
}

func TestSemaphoreStartBarrier(t *testing.T) {
	sem := NewBinary()
	sem.Wait() // drain the single unit, as the thread barrier would
	started := make(chan struct{})
	go func() {
		sem.Wait()
		close(started)
	}()
	select {
	case <-started:
		t.Fatal("waiter unblocked before Notify")
	case <-time.After(20 * time.Millisecond):
	}
	sem.Notify()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("waiter never unblocked after Notify")
	}
}

func TestSemaphoreAcquireRespectsContext(t *testing.T) {
	sem := NewSemaphore(1)
	require.True(t, sem.TryAcquire())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, sem.Acquire(ctx))
}

func TestSpinLockMutualExclusion(t *testing.T) {
	var l SpinLock
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				l.Lock()
				counter++
				l.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 8000, counter)
}

func TestSpinLockUnlockWithoutLockPanics(t *testing.T) {
	var l SpinLock
	require.Panics(t, func() { l.Unlock() })
}

func TestTestAndSetLockMutualExclusion(t *testing.T) {
	var l TestAndSetLock
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				l.Lock()
				counter++
				l.Clear()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 4000, counter)
}

package sched

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/fiber"
)

func newTestScheduler(t *testing.T, threads int, includeCaller bool) *Scheduler {
	sc, err := New(Options{ThreadCount: threads, IncludeCaller: includeCaller, Name: "test"})
	require.NoError(t, err)
	return sc
}

func TestScheduleAndRunSimpleCallback(t *testing.T) {
	sc := newTestScheduler(t, 2, false)
	require.NoError(t, sc.Start())

	done := make(chan struct{})
	require.NoError(t, sc.Schedule(Task{Cb: func() { close(done) }, Target: -1}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}
	require.NoError(t, sc.Stop())
}

func TestPinnedTaskExecutesOnTargetThread(t *testing.T) {
	sc := newTestScheduler(t, 4, false)
	require.NoError(t, sc.Start())

	const n = 2000
	var wg sync.WaitGroup
	wg.Add(n)
	seen := make([]atomic.Int64, 4)
	for i := 0; i < n; i++ {
		require.NoError(t, sc.Schedule(Task{
			Target: 0,
			Cb: func() {
				// The running callback fiber identifies the executing thread.
				for i, c := range sc.contexts {
					if c.cbFiber == fiber.Current() {
						seen[i].Add(1)
					}
				}
				wg.Done()
			},
		}))
	}
	wg.Wait()
	require.EqualValues(t, n, seen[0].Load())
	require.NoError(t, sc.Stop())
}

func TestWorkStealingDistributesUnpinnedWork(t *testing.T) {
	sc := newTestScheduler(t, 4, false)
	require.NoError(t, sc.Start())

	const n = 1000
	var wg sync.WaitGroup
	wg.Add(n)
	var total atomic.Int64
	for i := 0; i < n; i++ {
		require.NoError(t, sc.Schedule(Task{
			Target: -1,
			Cb: func() {
				total.Add(1)
				wg.Done()
			},
		}))
	}
	wg.Wait()
	require.EqualValues(t, n, total.Load())
	require.NoError(t, sc.Stop())
}

func TestIncludeCallerDrainsOnlyAtStop(t *testing.T) {
	sc := newTestScheduler(t, 2, true)
	require.NoError(t, sc.Start())

	ran := make(chan struct{})
	require.NoError(t, sc.Schedule(Task{Target: sc.ThreadCount() - 1, Cb: func() { close(ran) }}))

	select {
	case <-ran:
		t.Fatal("caller-pinned task ran before Stop was called")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, sc.Stop())
	select {
	case <-ran:
	default:
		t.Fatal("caller-pinned task never ran by the time Stop returned")
	}
}

func TestStopFromWrongThreadErrors(t *testing.T) {
	sc := newTestScheduler(t, 1, true)
	require.NoError(t, sc.Start())

	errCh := make(chan error, 1)
	go func() { errCh <- sc.Stop() }()
	require.ErrorIs(t, <-errCh, ErrNotCallerThread)

	require.NoError(t, sc.Stop())
}

func TestOutOfRangeTargetRoundRobinsByDefault(t *testing.T) {
	sc := newTestScheduler(t, 2, false)
	require.NoError(t, sc.Start())
	done := make(chan struct{})
	require.NoError(t, sc.Schedule(Task{Target: 99, Cb: func() { close(done) }}))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("out-of-range-target task never ran")
	}
	require.NoError(t, sc.Stop())
}

func TestOutOfRangeTargetAsserts(t *testing.T) {
	sc, err := New(Options{ThreadCount: 2, OutOfRangeTarget: Assert})
	require.NoError(t, err)
	require.NoError(t, sc.Start())
	require.Panics(t, func() {
		_ = sc.Schedule(Task{Target: 99, Cb: func() {}})
	})
	require.NoError(t, sc.Stop())
}

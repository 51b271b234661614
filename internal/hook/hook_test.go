package hook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/fdreg"
	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/reactor"
	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/sched"
)

func newTestHook(t *testing.T) (*Hook, *sched.Scheduler) {
	rx, err := reactor.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rx.Close() })

	reg := fdreg.New()
	h := New(reg, rx)

	sc, err := sched.New(sched.Options{ThreadCount: 2, Name: "hook-test", Hooks: rx})
	require.NoError(t, err)
	rx.SetScheduler(sc)
	require.NoError(t, sc.Start())
	t.Cleanup(func() { _ = sc.Stop() })
	return h, sc
}

func socketpair(t *testing.T) (int, int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	return fds[0], fds[1]
}

func TestSleepSuspendsFiberNotThread(t *testing.T) {
	h, sc := newTestHook(t)

	start := make(chan struct{})
	done := make(chan time.Duration, 1)
	require.NoError(t, sc.Schedule(sched.Task{Cb: func() {
		close(start)
		t0 := time.Now()
		h.Sleep(40 * time.Millisecond)
		done <- time.Since(t0)
	}}))

	<-start
	select {
	case elapsed := <-done:
		require.GreaterOrEqual(t, elapsed, 35*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("sleeping fiber never resumed")
	}
}

func TestReadSuspendsUntilDataArrives(t *testing.T) {
	h, sc := newTestHook(t)
	a, b := socketpair(t)
	defer unix.Close(a)
	defer unix.Close(b)
	h.Registry.Observe(a, true)

	result := make(chan string, 1)
	require.NoError(t, sc.Schedule(sched.Task{Cb: func() {
		buf := make([]byte, 16)
		n, err := h.Read(a, buf)
		if err != nil {
			result <- "error: " + err.Error()
			return
		}
		result <- string(buf[:n])
	}}))

	time.Sleep(30 * time.Millisecond)
	_, err := unix.Write(b, []byte("hello"))
	require.NoError(t, err)

	select {
	case got := <-result:
		require.Equal(t, "hello", got)
	case <-time.After(2 * time.Second):
		t.Fatal("read never completed")
	}
}

func TestReadTimesOutWhenConfigured(t *testing.T) {
	h, sc := newTestHook(t)
	a, b := socketpair(t)
	defer unix.Close(a)
	defer unix.Close(b)
	_ = b

	entry := h.Registry.Observe(a, true)
	entry.SetTimeout(false, 30*time.Millisecond)

	result := make(chan error, 1)
	require.NoError(t, sc.Schedule(sched.Task{Cb: func() {
		buf := make([]byte, 16)
		_, err := h.Read(a, buf)
		result <- err
	}}))

	select {
	case err := <-result:
		require.ErrorIs(t, err, unix.ETIMEDOUT)
	case <-time.After(2 * time.Second):
		t.Fatal("read never timed out")
	}
}

func TestDisabledHookBypassesCooperativeRetry(t *testing.T) {
	h, sc := newTestHook(t)
	a, b := socketpair(t)
	defer unix.Close(a)
	defer unix.Close(b)
	h.Registry.Observe(a, true)

	result := make(chan error, 1)
	require.NoError(t, sc.Schedule(sched.Task{Cb: func() {
		SetHookEnable(false)
		defer SetHookEnable(true)
		buf := make([]byte, 16)
		_, err := h.Read(a, buf)
		result <- err
	}}))

	select {
	case err := <-result:
		require.ErrorIs(t, err, unix.EAGAIN)
	case <-time.After(2 * time.Second):
		t.Fatal("disabled-hook read never returned")
	}
}

func TestCloseWakesWaiter(t *testing.T) {
	h, sc := newTestHook(t)
	a, b := socketpair(t)
	defer unix.Close(b)
	h.Registry.Observe(a, true)

	result := make(chan error, 1)
	started := make(chan struct{})
	require.NoError(t, sc.Schedule(sched.Task{Cb: func() {
		close(started)
		buf := make([]byte, 16)
		_, err := h.Read(a, buf)
		result <- err
	}}))

	<-started
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, h.Close(a))

	select {
	case err := <-result:
		require.Error(t, err, "reading a closed fd after being woken should surface an error, not hang")
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never woke after Close")
	}
}

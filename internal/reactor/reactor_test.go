package reactor

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/sched"
)

func newTestReactorScheduler(t *testing.T) (*Reactor, *sched.Scheduler) {
	r, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	sc, err := sched.New(sched.Options{ThreadCount: 2, Name: "reactor-test", Hooks: r})
	require.NoError(t, err)
	r.SetScheduler(sc)
	require.NoError(t, sc.Start())
	t.Cleanup(func() { _ = sc.Stop() })
	return r, sc
}

func TestAddEventFiresOnReadiness(t *testing.T) {
	r, _ := newTestReactorScheduler(t)

	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()

	fired := make(chan struct{})
	require.NoError(t, r.AddEvent(int(pr.Fd()), Read, func() { close(fired) }))

	_, err = pw.Write([]byte("x"))
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("event never fired")
	}
}

func TestCancelEventFiresCallback(t *testing.T) {
	r, _ := newTestReactorScheduler(t)

	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()

	fired := make(chan struct{})
	require.NoError(t, r.AddEvent(int(pr.Fd()), Read, func() { close(fired) }))

	r.CancelEvent(int(pr.Fd()), Read)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled event never fired its callback")
	}
}

func TestDeleteEventDoesNotFire(t *testing.T) {
	r, _ := newTestReactorScheduler(t)

	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()

	fired := make(chan struct{}, 1)
	require.NoError(t, r.AddEvent(int(pr.Fd()), Read, func() { fired <- struct{}{} }))
	r.DeleteEvent(int(pr.Fd()), Read)

	_, err = pw.Write([]byte("x"))
	require.NoError(t, err)

	select {
	case <-fired:
		t.Fatal("deleted event fired anyway")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDuplicateArmSameDirectionErrors(t *testing.T) {
	r, _ := newTestReactorScheduler(t)

	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()

	require.NoError(t, r.AddEvent(int(pr.Fd()), Read, func() {}))
	err = r.AddEvent(int(pr.Fd()), Read, func() {})
	require.ErrorIs(t, err, ErrAlreadyArmed)

	r.CancelAll(int(pr.Fd()))
}

func TestTimersDrainThroughIdleLoop(t *testing.T) {
	r, _ := newTestReactorScheduler(t)

	fired := make(chan struct{})
	r.Timers.Add(10, func() { close(fired) }, false)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired through the reactor idle loop")
	}
}

func TestPendingEventsAndTimersGateStricterStopping(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	require.EqualValues(t, 0, r.pendingEvents.Load())
	require.Equal(t, 0, r.Timers.Len())

	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()
	require.NoError(t, r.AddEvent(int(pr.Fd()), Read, func() {}))
	require.EqualValues(t, 1, r.pendingEvents.Load())

	r.CancelAll(int(pr.Fd()))
	require.EqualValues(t, 0, r.pendingEvents.Load())

	timer := r.Timers.Add(time.Hour.Milliseconds(), func() {}, false)
	require.Equal(t, 1, r.Timers.Len())
	timer.Cancel()
	require.Equal(t, 0, r.Timers.Len())
}

// Package reactor implements the runtime's I/O reactor: it extends
// internal/sched's work-stealing scheduler with readiness-driven event
// dispatch instead of a plain busy-yield idle, by supplying a
// sched.Hooks implementation.
//
// Descriptors are tracked in a dynamically-grown, directly fd-indexed
// slice under an RWMutex, with a per-direction (read/write) arm/fire/
// cancel model rather than one callback per fd, and wired to
// internal/timerwheel for the idle loop's "wait capped by next timer
// deadline, then drain expired timers" behavior.
package reactor

import (
	"sync"
	"sync/atomic"

	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/fiber"
	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/sched"
	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/timerwheel"
)

// Direction identifies which half of a descriptor an event concerns.
type Direction uint32

const (
	Read Direction = 1 << iota
	Write
)

const bothDirections = Read | Write

type handler struct {
	active bool
	cb     func()
	fiber  *fiber.Fiber
}

func (h *handler) task() sched.Task {
	return sched.Task{Fiber: h.fiber, Cb: h.cb, Target: -1}
}

// fdCtx is the per-descriptor event-context record, one per tracked
// file descriptor.
type fdCtx struct {
	mu         sync.Mutex
	fd         int
	armed      Direction
	read       handler
	write      handler
	registered bool
}

func (c *fdCtx) handlerFor(d Direction) *handler {
	if d == Read {
		return &c.read
	}
	return &c.write
}

// Reactor extends a scheduler with epoll-backed readiness waiting. The
// zero value is not usable; construct with New, wire it into a
// scheduler's Options.Hooks, then call SetScheduler once the
// scheduler exists (the two are circularly dependent at construction
// time: the scheduler needs a Hooks value up front, the reactor needs
// a *sched.Scheduler to push discovered work into).
type Reactor struct {
	poll poller

	fdMu sync.RWMutex
	fds  []*fdCtx

	Timers *timerwheel.Manager

	pendingEvents atomic.Int64

	wakeReadFD  int
	wakeWriteFD int
	tickled     atomic.Bool

	sc        *sched.Scheduler
	maxWaitMS int64

	wakeups atomic.Int64
}

const (
	defaultMaxWaitMS  = 5000
	initialFDCapacity = 1024
)

// New constructs a Reactor backed by the platform's readiness
// facility (epoll on Linux) plus a self-pipe/eventfd wake channel,
// using the default per-Wait readiness batch size.
func New() (*Reactor, error) {
	return NewWithBatchSize(0)
}

// NewWithBatchSize is New with an explicit cap on how many readiness
// events a single Wait call drains (0 uses the default of 256),
// bounding tail latency for pinned work under heavy I/O load.
func NewWithBatchSize(batchSize int) (*Reactor, error) {
	p, err := newPoller(batchSize)
	if err != nil {
		return nil, err
	}
	rFD, wFD, err := createWakeFD()
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	if err := p.Add(rFD, Read); err != nil {
		_ = p.Close()
		return nil, err
	}

	r := &Reactor{
		poll:        p,
		fds:         make([]*fdCtx, initialFDCapacity),
		wakeReadFD:  rFD,
		wakeWriteFD: wFD,
		maxWaitMS:   defaultMaxWaitMS,
	}
	r.Timers = timerwheel.NewManager(timerwheel.WithOnInsertAtFront(r.wake))
	return r, nil
}

// SetScheduler records the scheduler this reactor was installed into,
// needed for AddEvent's default resume-current-fiber callback to be
// able to schedule the resume.
func (r *Reactor) SetScheduler(sc *sched.Scheduler) { r.sc = sc }

// SetIdleBlockCeiling caps how long a single Idle call may block
// waiting for readiness, regardless of how far away the next timer
// deadline is. Safe to call only before Start.
func (r *Reactor) SetIdleBlockCeiling(ms int64) {
	if ms > 0 {
		r.maxWaitMS = ms
	}
}

// Close releases the poller and wake descriptors.
func (r *Reactor) Close() error {
	closeWakeFD(r.wakeReadFD, r.wakeWriteFD)
	return r.poll.Close()
}

func (r *Reactor) ctxFor(fd int) *fdCtx {
	r.fdMu.RLock()
	if fd < len(r.fds) {
		if c := r.fds[fd]; c != nil {
			r.fdMu.RUnlock()
			return c
		}
	}
	r.fdMu.RUnlock()

	r.fdMu.Lock()
	defer r.fdMu.Unlock()
	if fd >= len(r.fds) {
		newLen := fd*2 + 1
		grown := make([]*fdCtx, newLen)
		copy(grown, r.fds)
		r.fds = grown
	}
	if c := r.fds[fd]; c != nil {
		return c
	}
	c := &fdCtx{fd: fd}
	r.fds[fd] = c
	return c
}

// AddEvent arms direction dir on fd. If cb is nil, the default
// callback resumes the fiber that is current on the calling goroutine
// at the time AddEvent is called — the common "I'm about to yield
// waiting on this fd" pattern used by the syscall-interception layer.
func (r *Reactor) AddEvent(fd int, dir Direction, cb func()) error {
	var f *fiber.Fiber
	if cb == nil {
		f = fiber.Current()
	}

	c := r.ctxFor(fd)
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.handlerFor(dir)
	if h.active {
		return ErrAlreadyArmed
	}
	h.active = true
	h.cb = cb
	h.fiber = f

	union := c.armed | dir
	var err error
	if c.registered {
		err = r.poll.Modify(fd, union)
	} else {
		err = r.poll.Add(fd, union)
	}
	if err != nil {
		h.active = false
		h.cb = nil
		h.fiber = nil
		return err
	}
	c.armed = union
	c.registered = true
	r.pendingEvents.Add(1)
	return nil
}

// CancelEvent unregisters dir on fd and fires its callback as if the
// event had occurred, so a fiber suspended waiting on it is woken
// rather than left to block forever. The caller (typically a
// condition timer in the syscall-interception layer) is responsible
// for having stamped a cancellation marker the woken party can
// observe.
func (r *Reactor) CancelEvent(fd int, dir Direction) {
	r.unregister(fd, dir, true)
}

// DeleteEvent unregisters dir on fd without firing its callback.
func (r *Reactor) DeleteEvent(fd int, dir Direction) {
	r.unregister(fd, dir, false)
}

// CancelAll cancels every direction currently armed on fd.
func (r *Reactor) CancelAll(fd int) {
	r.CancelEvent(fd, Read)
	r.CancelEvent(fd, Write)
}

func (r *Reactor) unregister(fd int, dir Direction, fire bool) {
	c := r.ctxFor(fd)
	c.mu.Lock()
	h := c.handlerFor(dir)
	if !h.active {
		c.mu.Unlock()
		return
	}
	fired := *h
	h.active = false
	h.cb = nil
	h.fiber = nil
	c.armed &^= dir
	r.rewriteRegistration(c)
	c.mu.Unlock()

	r.pendingEvents.Add(-1)
	if fire {
		r.dispatch(fired.task())
	}
}

// rewriteRegistration must be called with c.mu held; it reflects
// c.armed's current value into the poller, removing the registration
// entirely once no direction remains armed.
func (r *Reactor) rewriteRegistration(c *fdCtx) {
	if c.armed == 0 {
		if c.registered {
			_ = r.poll.Remove(c.fd)
			c.registered = false
		}
		return
	}
	_ = r.poll.Modify(c.fd, c.armed)
}

// dispatch hands a fired task to the scheduler. Called outside any
// fdCtx lock.
func (r *Reactor) dispatch(t sched.Task) {
	if r.sc == nil {
		if t.Fiber != nil {
			_ = t.Fiber.Resume()
		} else if t.Cb != nil {
			t.Cb()
		}
		return
	}
	_ = r.sc.Schedule(t)
}

func (r *Reactor) wake() {
	if r.tickled.CompareAndSwap(false, true) {
		r.wakeups.Add(1)
		writeWake(r.wakeWriteFD)
	}
}

// Wakeups returns the cumulative count of self-pipe/eventfd wakes
// issued to interrupt a blocked readiness wait.
func (r *Reactor) Wakeups() int64 { return r.wakeups.Load() }

// ErrAlreadyArmed is returned by AddEvent when the requested direction
// is already armed on fd.
var ErrAlreadyArmed = errAlreadyArmed{}

type errAlreadyArmed struct{}

func (errAlreadyArmed) Error() string { return "reactor: direction already armed on this fd" }

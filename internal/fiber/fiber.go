// Package fiber implements the runtime's stackful cooperative task
// primitive.
//
// Go offers no ucontext/makecontext-style machine-context primitive, so
// this package substitutes the one mechanism Go does give us a safe,
// race-detector-clean rendezvous over: a dedicated goroutine per fiber,
// synchronized against its resumer with a pair of unbuffered channels.
// Resume() hands control to the fiber's goroutine and blocks until it
// either calls Yield() or returns; Yield() hands control back and
// blocks until resumed again. Exactly one of {resumer goroutine, fiber
// goroutine} is ever runnable at a time for a given fiber, enforced by
// the handoff itself rather than any external lock.
//
// A stackalloc.Region is still allocated per fiber, even though Go's
// scheduler — not this package — manages the goroutine's real stack;
// the region exists so stack-size configuration and guard-page
// protection remain real, observable, and so fiber accounting/profiling
// hooks have a concrete memory region to register against.
package fiber

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/stackalloc"
)

// State is one of the four states a Fiber's lifecycle passes through.
type State int32

const (
	StateReady State = iota
	StateRunning
	StateTerminated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateTerminated:
		return "Terminated"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

var ErrNotReady = errors.New("fiber: resume called on a fiber that is not Ready")

var idCounter atomic.Uint64

// Fiber is a stackful cooperative task. The zero value is not usable;
// construct with New or NewPrimordial.
type Fiber struct {
	id           uint64
	participates bool
	primordial   bool

	state atomic.Int32

	region *stackalloc.Region
	cb     func()

	resumeCh chan struct{}
	yieldCh  chan struct{}
	started  bool

	panicVal any
}

// New allocates a worker fiber with its own guard-paged stack region.
// participatesInScheduler selects the counterpart rule: true means the
// fiber yields against the calling thread's scheduler-primordial, false
// means it yields against the thread-primordial. In this goroutine-based
// implementation the distinction is purely bookkeeping for callers (see
// ParticipatesInScheduler), since Resume/Yield rendezvous directly with whichever
// goroutine last called Resume regardless of role.
func New(cb func(), stackSize int, participatesInScheduler bool) (*Fiber, error) {
	if cb == nil {
		return nil, errors.New("fiber: nil callback")
	}
	region, err := stackalloc.Alloc(stackSize)
	if err != nil {
		return nil, fmt.Errorf("fiber: %w", err)
	}
	f := &Fiber{
		id:           idCounter.Add(1),
		participates: participatesInScheduler,
		region:       region,
		cb:           cb,
		resumeCh:     make(chan struct{}),
		yieldCh:      make(chan struct{}),
	}
	f.state.Store(int32(StateReady))
	return f, nil
}

// NewPrimordial constructs a synthetic fiber representing a thread's
// original entry stack (thread-primordial) or the fiber that drives a
// scheduler's main loop (scheduler-primordial). It owns no stack region
// and is never Resumed/Reset through this package's API — callers bind
// it as a thread-local anchor via BindPrimordial.
func NewPrimordial(participatesInScheduler bool) *Fiber {
	f := &Fiber{
		id:           idCounter.Add(1),
		participates: participatesInScheduler,
		primordial:   true,
	}
	f.state.Store(int32(StateRunning))
	return f
}

// ID returns the fiber's monotonically-assigned identifier.
func (f *Fiber) ID() uint64 { return f.id }

// ParticipatesInScheduler reports the counterpart rule this fiber was
// created with.
func (f *Fiber) ParticipatesInScheduler() bool { return f.participates }

// IsPrimordial reports whether f is a synthetic thread/scheduler
// primordial rather than a resumable worker fiber.
func (f *Fiber) IsPrimordial() bool { return f.primordial }

// State returns the fiber's current lifecycle state.
func (f *Fiber) State() State { return State(f.state.Load()) }

// Err returns the recovered panic value if the fiber is Failed, else nil.
func (f *Fiber) Err() any { return f.panicVal }

// StackRegion exposes the fiber's allocated guard-paged region, or nil
// for a primordial fiber.
func (f *Fiber) StackRegion() *stackalloc.Region { return f.region }

// Resume transitions the fiber Ready -> Running, running (or continuing)
// its callback on its dedicated goroutine until the callback calls
// Yield or returns. It blocks the calling goroutine for that entire
// span, exactly like a machine-context swap would.
func (f *Fiber) Resume() error {
	if f.primordial {
		return errors.New("fiber: cannot Resume a primordial fiber")
	}
	if State(f.state.Load()) != StateReady {
		return ErrNotReady
	}
	f.state.Store(int32(StateRunning))
	if !f.started {
		f.started = true
		go f.trampoline()
	}
	f.resumeCh <- struct{}{}
	<-f.yieldCh
	return nil
}

// Yield suspends the calling fiber (Running -> Ready) and blocks its
// goroutine until the fiber is Resumed again. It is a programming error
// to call Yield from any goroutine other than the fiber's own — Yield
// only ever runs on "this" fiber.
func (f *Fiber) Yield() {
	if State(f.state.Load()) != StateRunning {
		panic("fiber: Yield called on a fiber that is not Running")
	}
	f.state.Store(int32(StateReady))
	f.yieldCh <- struct{}{}
	<-f.resumeCh
	f.state.Store(int32(StateRunning))
}

// Reset re-arms a Terminated/Failed/Ready fiber with a new callback,
// reusing its existing stack region — the moral equivalent of repaving
// a ucontext on the same stack via getcontext+makecontext. A fresh
// trampoline goroutine is spawned on the next Resume.
func (f *Fiber) Reset(cb func()) error {
	if f.primordial {
		return errors.New("fiber: cannot Reset a primordial fiber")
	}
	if cb == nil {
		return errors.New("fiber: nil callback")
	}
	switch State(f.state.Load()) {
	case StateReady, StateTerminated, StateFailed:
	default:
		return fmt.Errorf("fiber: Reset called while fiber is %s", f.State())
	}
	f.cb = cb
	f.panicVal = nil
	f.started = false
	f.state.Store(int32(StateReady))
	return nil
}

// Release gives back the fiber's stack region. Call only after the
// fiber is Terminated or Failed and will never be Reset again.
func (f *Fiber) Release() error {
	if f.region == nil {
		return nil
	}
	err := f.region.Release()
	f.region = nil
	return err
}

func (f *Fiber) trampoline() {
	bind(f)
	defer unbind()

	<-f.resumeCh
	func() {
		defer func() {
			if r := recover(); r != nil {
				f.panicVal = r
				f.state.Store(int32(StateFailed))
			} else if State(f.state.Load()) == StateRunning {
				f.state.Store(int32(StateTerminated))
			}
		}()
		f.cb()
	}()
	// Final non-returning handoff to whichever goroutine issued the
	// Resume call that allowed the callback to reach its end.
	f.yieldCh <- struct{}{}
}

package sched

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/cthread"
	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/fiber"
	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/gid"
)

var ErrNotCallerThread = errors.New("sched: Stop called from a thread other than the one that called Start")

// Start spawns one OS thread per non-caller context and begins running
// each one's main loop immediately. If Options.IncludeCaller is set,
// the calling goroutine is registered as the owner of the last context
// but does not begin draining it — that happens lazily inside Stop,
// matching the original scheduler's lazy caller-primordial resume.
func (sc *Scheduler) Start() error {
	n := len(sc.contexts)
	workerCount := n
	if sc.callerIdx >= 0 {
		workerCount = n - 1
		sc.callerGID = gid.Current()
		bindCurrentContext(sc.contexts[sc.callerIdx])
	}

	g, ctx := errgroup.WithContext(context.Background())
	sc.workerGroup = g
	sc.workerGroupC = ctx
	sc.workers = make([]*cthread.Thread, 0, workerCount)

	numCPU := numCPUHint()
	for i := 0; i < workerCount; i++ {
		idx := i
		cpuID := -1
		if sc.opts.CPUStride > 0 && numCPU > 0 {
			cpuID = (sc.opts.CPUOffset + idx*sc.opts.CPUStride) % numCPU
		}
		name := fmt.Sprintf("%s-%d", sc.opts.Name, idx)
		th := cthread.New(cthread.Options{
			Name:  name,
			CPUID: cpuID,
			OnPinFailure: func(err error) {
				sc.logf("sched: worker %q CPU pin failed, continuing unpinned: %v", name, err)
			},
		}, func() {
			sc.runLoop(sc.contexts[idx])
		})
		sc.workers = append(sc.workers, th)
		// Joining happens through the errgroup rather than a plain
		// WaitGroup so a future worker-setup failure (there is none
		// today; CPU pin failure is only ever a warning) has somewhere
		// to propagate to without changing Stop's signature.
		g.Go(func() error {
			th.Join()
			return nil
		})
	}
	return nil
}

// Stop sets the stopping flag, wakes every thread (including, if
// present, the caller context via its deferred run loop), and blocks
// until all participating threads have drained and exited. It must be
// called from the same goroutine that called Start when IncludeCaller
// is set; a call from any other goroutine returns ErrNotCallerThread
// (after the stopping flag has already been set and every thread
// tickled).
func (sc *Scheduler) Stop() error {
	sc.stopFlag.Store(true)
	for i := range sc.contexts {
		sc.hooks.Tickle(i)
	}

	if sc.callerIdx >= 0 {
		if gid.Current() != sc.callerGID {
			return ErrNotCallerThread
		}
		sc.runLoop(sc.contexts[sc.callerIdx])
		unbindCurrentContext()
	}

	return sc.workerGroup.Wait()
}

// stopping reports whether it is safe for a thread to exit its main
// loop: the stop flag is set, every context's public deque is empty,
// and no task is currently active anywhere. Private deques are
// deliberately not inspected here — each thread has already drained
// its own before ever reaching this check (private-deque draining is
// step one of the main loop), and no other thread may touch it.
// BaseStopping exposes the base work-stealing stopping check to an
// extending Hooks implementation (the reactor's stricter criterion
// layers on top of this rather than reimplementing it).
func (sc *Scheduler) BaseStopping() bool { return sc.stopping() }

func (sc *Scheduler) stopping() bool {
	if !sc.stopFlag.Load() {
		return false
	}
	if sc.activeWorkers.Load() != 0 {
		return false
	}
	for _, c := range sc.contexts {
		if c.publicLen() > 0 {
			return false
		}
	}
	return true
}

func (sc *Scheduler) runLoop(ctx *threadContext) {
	bindCurrentContext(ctx)
	primordial := fiber.NewPrimordial(true)
	fiber.BindPrimordial(primordial)
	defer fiber.UnbindPrimordial()
	defer unbindCurrentContext()

	handle := &ThreadContextHandle{Index: ctx.idx, sc: sc, ctx: ctx}

	for {
		if t, ok := ctx.popPrivateFront(); ok {
			sc.execute(ctx, t)
			continue
		}
		if t, ok := ctx.popPublicFront(); ok {
			sc.execute(ctx, t)
			continue
		}
		if t, ok := sc.steal(ctx); ok {
			sc.execute(ctx, t)
			continue
		}
		if sc.hooks.Stopping(sc) {
			return
		}
		sc.idleWorkers.Add(1)
		sc.hooks.Idle(sc, handle)
		sc.idleWorkers.Add(-1)
	}
}

func (sc *Scheduler) steal(self *threadContext) (Task, bool) {
	for _, peer := range sc.contexts {
		if peer == self {
			continue
		}
		if t, ok := peer.stealFromBack(); ok {
			sc.stolenTasks.Add(1)
			return t, true
		}
	}
	return Task{}, false
}

func (sc *Scheduler) execute(ctx *threadContext, t Task) {
	sc.activeWorkers.Add(1)
	defer sc.activeWorkers.Add(-1)

	if t.Target != -1 {
		sc.pinnedExecuted.Add(1)
	}

	if t.Fiber != nil {
		sc.resumeAndLog(t.Fiber)
		return
	}
	if t.Cb == nil {
		return
	}

	cbf := ctx.cbFiber
	if cbf != nil {
		switch cbf.State() {
		case fiber.StateTerminated, fiber.StateFailed:
			if err := cbf.Reset(t.Cb); err != nil {
				sc.logf("sched: resetting callback fiber: %v", err)
				cbf = nil
			}
		default:
			cbf = nil
		}
	}
	if cbf == nil {
		newF, err := fiber.New(t.Cb, sc.opts.FiberStackSize, true)
		if err != nil {
			sc.logf("sched: allocating callback fiber: %v", err)
			return
		}
		ctx.cbFiber = newF
		cbf = newF
	}
	sc.resumeAndLog(cbf)
}

func (sc *Scheduler) resumeAndLog(f *fiber.Fiber) {
	if err := f.Resume(); err != nil {
		sc.logf("sched: resuming fiber %d: %v", f.ID(), err)
		return
	}
	if f.State() == fiber.StateFailed {
		sc.logf("sched: fiber %d failed: %v", f.ID(), f.Err())
	}
}

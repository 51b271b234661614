package reactor

import (
	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/sched"
)

// Tickle wakes the reactor from a blocked readiness wait. threadIdx is
// unused: unlike the base scheduler's per-thread tickle, the reactor's
// epoll instance and self-pipe are shared across every worker, so any
// thread blocked in Wait will observe the wake.
func (r *Reactor) Tickle(int) { r.wake() }

// Idle waits for readiness capped by the next timer deadline, drains
// and dispatches whatever fired, then drains expired timers into
// scheduled callbacks.
func (r *Reactor) Idle(sc *sched.Scheduler, ctx *sched.ThreadContextHandle) {
	timeoutMS := r.maxWaitMS
	if next := r.Timers.NextDeadlineMS(); next < timeoutMS {
		timeoutMS = next
	}

	r.tickled.Store(false)
	r.Timers.ResetTickled()
	_, _ = r.poll.Wait(int(timeoutMS), func(fd int, dir Direction) {
		if fd == r.wakeReadFD {
			drainWake(r.wakeReadFD)
			return
		}
		r.fireFD(fd, dir, ctx)
	})

	for _, cb := range r.Timers.CollectExpired() {
		cb := cb
		ctx.Schedule(sched.Task{Cb: cb, Target: ctx.Index})
	}
}

// fireFD resolves which armed directions actually fired on fd (under
// error/hangup both directions are treated as fired), rewrites the
// registration to the residual, and hands each fired handler to the
// scheduler via the idle thread's own context — avoiding a public
// deque round trip for work discovered on the thread that will most
// likely run it anyway.
func (r *Reactor) fireFD(fd int, dir Direction, ctx *sched.ThreadContextHandle) {
	c := r.ctxFor(fd)
	c.mu.Lock()

	fired := dir & c.armed
	var tasks []sched.Task
	if fired&Read != 0 {
		tasks = append(tasks, c.read.task())
		c.read = handler{}
		c.armed &^= Read
	}
	if fired&Write != 0 {
		tasks = append(tasks, c.write.task())
		c.write = handler{}
		c.armed &^= Write
	}
	r.rewriteRegistration(c)
	c.mu.Unlock()

	if len(tasks) > 0 {
		r.pendingEvents.Add(-int64(len(tasks)))
	}
	for _, t := range tasks {
		t.Target = ctx.Index
		ctx.Schedule(t)
	}
}

// Stopping implements the reactor's stricter stopping criterion: the
// base scheduler's stopping() must hold, and no events or timers may
// be outstanding — both represent in-flight work a plain task-queue
// check can't see.
func (r *Reactor) Stopping(sc *sched.Scheduler) bool {
	return sc.BaseStopping() && r.pendingEvents.Load() == 0 && r.Timers.Len() == 0
}

package corert

import (
	"runtime"
	"sync"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/fdreg"
	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/fiber"
	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/hook"
	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/reactor"
	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/sched"
	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/timerwheel"
)

// Runtime bundles the scheduler, reactor, descriptor registry, and
// syscall-interception hook into the single external surface the
// storage and consensus layers consume.
type Runtime struct {
	cfg *config

	sc  *sched.Scheduler
	rx  *reactor.Reactor
	reg *fdreg.Registry
	hk  *hook.Hook

	mu      sync.Mutex
	started bool
	stopped bool

	undoMaxprocs func()
}

// New constructs a Runtime but does not start it. ThreadCount, if left
// at its zero-value default (see WithThreadCount), is resolved against
// runtime.GOMAXPROCS(0) once Start runs automaxprocs.
func New(opts ...Option) (*Runtime, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	if cfg.logger != nil {
		SetStructuredLogger(cfg.logger)
	}

	rx, err := reactor.NewWithBatchSize(cfg.maxReadinessBatch)
	if err != nil {
		return nil, err
	}
	rx.SetIdleBlockCeiling(cfg.idleBlockCeiling.Milliseconds())

	reg := fdreg.New()
	hk := hook.New(reg, rx)
	hk.DefaultConnectTimeout = cfg.defaultConnectTimeout

	return &Runtime{cfg: cfg, rx: rx, reg: reg, hk: hk}, nil
}

// Start wires the reactor into a freshly constructed scheduler and
// begins running worker threads. It calls maxprocs.Set first (unless
// disabled via WithGOMAXPROCSAuto(false)) so a container's CPU quota,
// not the host's full core count, sizes both GOMAXPROCS and the
// default thread count.
func (rt *Runtime) Start() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.started {
		return ErrAlreadyRunning
	}

	if rt.cfg.gomaxprocsAuto {
		undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
			logf(LevelDebug, "sched", nil, format, args...)
		}))
		if err != nil {
			logf(LevelWarn, "sched", err, "automaxprocs: falling back to runtime.GOMAXPROCS")
		}
		rt.undoMaxprocs = undo
	}

	threadCount := rt.cfg.threadCount
	if threadCount <= 0 {
		threadCount = runtime.GOMAXPROCS(0)
		if threadCount < 1 {
			threadCount = 1
		}
	}

	sc, err := sched.New(sched.Options{
		ThreadCount:      threadCount,
		IncludeCaller:    rt.cfg.includeCaller,
		Name:             rt.cfg.name,
		CPUOffset:        rt.cfg.cpuOffset,
		CPUStride:        rt.cfg.cpuStride,
		FiberStackSize:   rt.cfg.fiberStackSize,
		OutOfRangeTarget: rt.cfg.outOfRangeTarget,
		Hooks:            rt.rx,
		Logf: func(format string, args ...any) {
			logf(LevelWarn, "sched", nil, format, args...)
		},
	})
	if err != nil {
		return err
	}
	rt.rx.SetScheduler(sc)
	rt.sc = sc

	if err := sc.Start(); err != nil {
		return err
	}
	rt.started = true
	logf(LevelInfo, "sched", nil, "runtime started with %d threads", threadCount)
	return nil
}

// Stop signals every worker to exit once drained and blocks until they
// have. Must be called from the goroutine that called Start if the
// Runtime was built with WithIncludeCaller(true).
func (rt *Runtime) Stop() error {
	rt.mu.Lock()
	if !rt.started || rt.stopped {
		rt.mu.Unlock()
		return nil
	}
	rt.stopped = true
	sc := rt.sc
	undo := rt.undoMaxprocs
	rt.mu.Unlock()

	err := sc.Stop()
	if undo != nil {
		undo()
	}
	_ = rt.rx.Close()
	logf(LevelInfo, "sched", err, "runtime stopped")
	return err
}

// Spawn submits fn to run on the runtime's reusable per-thread
// callback fiber, round-robin placed across workers.
func (rt *Runtime) Spawn(fn func()) error {
	return rt.sc.Schedule(sched.Task{Cb: fn, Target: -1})
}

// SpawnPinned is Spawn with an explicit target worker index, for work
// that must run on a specific thread — e.g. the single fiber driving
// this node's Raft leadership state, which must never be torn down and
// rebuilt on another thread mid-term.
func (rt *Runtime) SpawnPinned(workerIdx int, fn func()) error {
	return rt.sc.Schedule(sched.Task{Cb: fn, Target: workerIdx})
}

// SpawnFiber allocates a dedicated stackful fiber for fn rather than
// reusing a thread's shared callback fiber — for long-lived work that
// yields repeatedly (a connection's read loop, a replicated-log
// streaming session) and must preserve its own stack across
// suspension points.
func (rt *Runtime) SpawnFiber(fn func()) error {
	f, err := fiber.New(fn, rt.cfg.fiberStackSize, true)
	if err != nil {
		return err
	}
	return rt.sc.Schedule(sched.Task{Fiber: f, Target: -1})
}

// AddTimer arms a one-shot or recurring callback after d, returning a
// handle that supports Cancel/Refresh/Reset.
func (rt *Runtime) AddTimer(d time.Duration, recurring bool, cb func()) *timerwheel.Timer {
	return rt.rx.Timers.Add(d.Milliseconds(), cb, recurring)
}

// AddConditionalTimer arms cb after d, but only fires it if guard is
// still reachable at fire time — the runtime's substitute for a weak
// reference into an object that may have already been released.
func AddConditionalTimer[T any](rt *Runtime, d time.Duration, recurring bool, guard *T, cb func()) *timerwheel.Timer {
	return timerwheel.AddConditional(rt.rx.Timers, d.Milliseconds(), cb, guard, recurring)
}

// CurrentScheduler returns the Runtime's scheduler, for code that
// needs lower-level access (e.g. ThreadCount for sizing a sharded
// structure one shard per worker).
func (rt *Runtime) CurrentScheduler() *sched.Scheduler { return rt.sc }

// CurrentFiber returns the fiber logically running on the calling
// goroutine, or nil outside fiber-managed code.
func CurrentFiber() *fiber.Fiber { return fiber.Current() }

// SetHookEnable toggles cooperative interception for the calling
// thread, per hook.SetHookEnable — the escape hatch for code that must
// perform a genuinely blocking call (e.g. a one-off DNS lookup at
// startup) without being forced into EAGAIN+yield.
func SetHookEnable(enabled bool) { hook.SetHookEnable(enabled) }

// Hook exposes the runtime's cooperative I/O wrappers (Read, Write,
// Accept, Connect, Sleep, ...) directly, for code that prefers calling
// them without going through Spawn/SpawnFiber first.
func (rt *Runtime) Hook() *hook.Hook { return rt.hk }

// Registry exposes the descriptor registry directly, for code that
// needs to pre-observe a descriptor (e.g. one inherited from a parent
// process) before the hook layer's lazy classification would see it.
func (rt *Runtime) Registry() *fdreg.Registry { return rt.reg }

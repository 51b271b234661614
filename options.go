package corert

import (
	"time"

	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/sched"
)

// config holds the resolved settings a Runtime is constructed with.
// Unexported, built by resolveOptions; callers only ever see the
// functional Option constructors below.
type config struct {
	threadCount           int
	includeCaller         bool
	name                  string
	cpuOffset             int
	cpuStride             int
	fiberStackSize        int
	outOfRangeTarget      sched.OutOfRangePolicy
	defaultConnectTimeout time.Duration
	maxReadinessBatch     int
	idleBlockCeiling      time.Duration
	metricsEnabled        bool
	gomaxprocsAuto        bool
	logger                Logger
}

// Option configures a Runtime at construction.
type Option interface {
	apply(*config) error
}

type optionFunc func(*config) error

func (f optionFunc) apply(cfg *config) error { return f(cfg) }

// WithThreadCount sets the number of scheduler worker threads,
// including the caller thread if WithIncludeCaller is also set.
func WithThreadCount(n int) Option {
	return optionFunc(func(cfg *config) error {
		cfg.threadCount = n
		return nil
	})
}

// WithIncludeCaller makes the goroutine that calls Start a scheduler
// participant, draining lazily inside Stop — see sched.Options.IncludeCaller.
func WithIncludeCaller(enabled bool) Option {
	return optionFunc(func(cfg *config) error {
		cfg.includeCaller = enabled
		return nil
	})
}

// WithName sets the thread-naming prefix for spawned workers.
func WithName(name string) Option {
	return optionFunc(func(cfg *config) error {
		cfg.name = name
		return nil
	})
}

// WithCPUAffinity configures worker i to pin to (offset + i*stride)
// mod NumCPU. stride <= 0 disables pinning.
func WithCPUAffinity(offset, stride int) Option {
	return optionFunc(func(cfg *config) error {
		cfg.cpuOffset = offset
		cfg.cpuStride = stride
		return nil
	})
}

// WithFiberStackSize overrides the default per-callback-fiber stack
// size; 0 uses the stack allocator's own default.
func WithFiberStackSize(bytes int) Option {
	return optionFunc(func(cfg *config) error {
		cfg.fiberStackSize = bytes
		return nil
	})
}

// WithOutOfRangePolicy chooses how a pinned-but-unknown thread target
// is resolved: sched.RoundRobin (default) or sched.Assert.
func WithOutOfRangePolicy(p sched.OutOfRangePolicy) Option {
	return optionFunc(func(cfg *config) error {
		cfg.outOfRangeTarget = p
		return nil
	})
}

// WithDefaultConnectTimeout sets hook.Hook.DefaultConnectTimeout, the
// ambient bound Connect falls back to when the target fd has no
// per-FD send timeout configured.
func WithDefaultConnectTimeout(d time.Duration) Option {
	return optionFunc(func(cfg *config) error {
		cfg.defaultConnectTimeout = d
		return nil
	})
}

// WithMaxReadinessBatch caps how many epoll events the reactor drains
// per Idle call before yielding back to the scheduler's work-stealing
// loop, bounding tail latency for pinned work under I/O load.
func WithMaxReadinessBatch(n int) Option {
	return optionFunc(func(cfg *config) error {
		cfg.maxReadinessBatch = n
		return nil
	})
}

// WithIdleBlockCeiling caps how long a thread's Idle call may block
// waiting for readiness or the next timer deadline, regardless of how
// far away the next timer actually is.
func WithIdleBlockCeiling(d time.Duration) Option {
	return optionFunc(func(cfg *config) error {
		cfg.idleBlockCeiling = d
		return nil
	})
}

// WithMetrics enables the snapshot Runtime.Metrics reports. Disabled by
// default, in which case Metrics returns the zero snapshot; the
// underlying counters are maintained either way.
func WithMetrics(enabled bool) Option {
	return optionFunc(func(cfg *config) error {
		cfg.metricsEnabled = enabled
		return nil
	})
}

// WithGOMAXPROCSAuto toggles whether Start calls automaxprocs.Set to
// respect a container's CPU quota before sizing the default thread
// count off runtime.GOMAXPROCS(0). Enabled by default.
func WithGOMAXPROCSAuto(enabled bool) Option {
	return optionFunc(func(cfg *config) error {
		cfg.gomaxprocsAuto = enabled
		return nil
	})
}

// WithLogger installs l as the package-level logger when New runs,
// equivalent to calling SetStructuredLogger(l) first. The setting is
// process-wide: it applies to every Runtime, not only this one.
func WithLogger(l Logger) Option {
	return optionFunc(func(cfg *config) error {
		cfg.logger = l
		return nil
	})
}

func resolveOptions(opts []Option) (*config, error) {
	cfg := &config{
		threadCount:           0, // resolved in runtime.go against GOMAXPROCS
		name:                  "corert",
		cpuStride:             1,
		outOfRangeTarget:      sched.RoundRobin,
		defaultConnectTimeout: 30 * time.Second,
		maxReadinessBatch:     256,
		idleBlockCeiling:      5 * time.Second,
		gomaxprocsAuto:        true,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

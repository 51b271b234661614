package fiber

import (
	"sync"

	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/gid"
)

var (
	tlsMu      sync.RWMutex
	tlsCurrent = make(map[uint64]*Fiber, 64)
)

// bind associates the calling goroutine with f as its logically-running
// fiber. Used both by a fiber's own trampoline (binds itself) and by
// BindPrimordial (an OS thread binds its synthetic primordial fiber).
func bind(f *Fiber) {
	g := gid.Current()
	tlsMu.Lock()
	tlsCurrent[g] = f
	tlsMu.Unlock()
}

func unbind() {
	g := gid.Current()
	tlsMu.Lock()
	delete(tlsCurrent, g)
	tlsMu.Unlock()
}

// Current returns the fiber logically running on the calling goroutine,
// or nil if none is bound (the goroutine is not under fiber management).
func Current() *Fiber {
	g := gid.Current()
	tlsMu.RLock()
	f := tlsCurrent[g]
	tlsMu.RUnlock()
	return f
}

// BindPrimordial registers f as the calling goroutine's anchor fiber.
// An OS thread (see cthread/sched) calls this once, immediately after
// start, with its thread-primordial or scheduler-primordial fiber.
func BindPrimordial(f *Fiber) {
	bind(f)
}

// UnbindPrimordial reverses BindPrimordial, called as the owning thread
// exits.
func UnbindPrimordial() {
	unbind()
}

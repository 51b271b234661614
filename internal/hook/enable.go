package hook

import (
	"sync"

	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/gid"
)

// disabled tracks, per goroutine-id (the runtime's stand-in for a
// native thread id — see internal/gid), which threads have opted out
// of cooperative interception. Hooked calls on a disabled thread fall
// straight through to the raw syscall — an escape hatch for code that
// must not suspend (e.g. code already running inside the reactor's
// own idle loop).
var (
	disabledMu sync.RWMutex
	disabled   = map[uint64]struct{}{}
)

// SetHookEnable toggles cooperative interception for the calling
// thread. Disabling it makes the blocking wrappers (the read, write,
// accept and connect families) and Sleep/Usleep/Nanosleep on this
// thread call the raw syscall or time.Sleep directly. Close, Dup, Dup2
// and the fcntl/ioctl/setsockopt wrappers do not consult this switch:
// they keep updating the descriptor registry (and Close still cancels
// armed reactor events) whether it is on or off.
func SetHookEnable(enabled bool) {
	id := gid.Current()
	disabledMu.Lock()
	defer disabledMu.Unlock()
	if enabled {
		delete(disabled, id)
	} else {
		disabled[id] = struct{}{}
	}
}

// IsHookEnabled reports whether the calling thread currently has
// cooperative interception enabled (the default).
func IsHookEnabled() bool {
	id := gid.Current()
	disabledMu.RLock()
	defer disabledMu.RUnlock()
	_, off := disabled[id]
	return !off
}

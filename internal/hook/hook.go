// Package hook is the runtime's syscall-interception layer: the
// "cooperative bridge" that turns blocking socket and sleep calls
// into suspend-the-current-fiber-and-resume-on-readiness operations,
// transparent to code written against a normal blocking API.
//
// Go gives no way to intercept libc/syscall entry points process-wide
// the way an LD_PRELOAD shim would, so this package instead exposes
// the same operations as an explicit Go API: callers that want
// cooperative behavior call hook.Read/hook.Write/hook.Accept/...
// instead of the unix package directly. Everything downstream of that
// entry point — the registry lookup, the retry-on-EAGAIN loop, the
// condition timer, the reactor handoff — follows the same generic
// retry-then-suspend template regardless of which syscall it wraps.
package hook

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/fdreg"
	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/fiber"
	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/reactor"
	"github.com/wanyu0315/Distributed-Key-Value-Store/internal/timerwheel"
)

// Hook bundles the descriptor registry and reactor a set of
// cooperative wrappers need. Construct one per runtime instance.
type Hook struct {
	Registry *fdreg.Registry
	Reactor  *reactor.Reactor

	// DefaultConnectTimeout is used by Connect when the target fd has
	// no per-FD send timeout configured via SetsockoptTimeout.
	DefaultConnectTimeout time.Duration
}

// New constructs a Hook wired to the given registry and reactor.
func New(reg *fdreg.Registry, rx *reactor.Reactor) *Hook {
	return &Hook{Registry: reg, Reactor: rx}
}

// cancelInfo is a small record a condition timer stamps a
// cancellation errno into, observed by the woken waiter after it
// resumes. It is also passed to AddConditional as the weak guard;
// since the timer's own callback refers to it as well, the guard stays
// reachable for as long as the timer holds that callback, so the
// callback runs whenever the timer fires. A waiter that has moved on
// stops the timer by cancelling it.
type cancelInfo struct {
	cancelled unix.Errno
}

func isRetryable(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}

// retry implements the generic suspend-on-EAGAIN template every
// blocking wrapper below shares: call attempt; on EINTR just retry; on
// EAGAIN arm a reactor event (plus, if the fd
// has a directional timeout, a condition timer) and yield the current
// fiber; on resume, check for a stamped cancellation before retrying.
// Any other outcome — success or a non-retryable error — returns
// immediately without ever touching the reactor.
func (h *Hook) retry(fd int, dir reactor.Direction, attempt func() error) error {
	if !IsHookEnabled() {
		return attempt()
	}
	entry, ok := h.Registry.Lookup(fd)
	if !ok || entry.Closed || !entry.IsSocket || entry.UserNonBlocking {
		return attempt()
	}
	timeout := entry.Timeout(dir == reactor.Write)

	for {
		err := attempt()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}

		info := &cancelInfo{}
		var timer *timerwheel.Timer
		if timeout > 0 {
			timer = timerwheel.AddConditional(h.Reactor.Timers, timeout.Milliseconds(), func() {
				info.cancelled = unix.ETIMEDOUT
				h.Reactor.CancelEvent(fd, dir)
			}, info, false)
		}

		if armErr := h.Reactor.AddEvent(fd, dir, nil); armErr != nil {
			if !errors.Is(armErr, reactor.ErrAlreadyArmed) {
				if timer != nil {
					timer.Cancel()
				}
				return armErr
			}
		}

		fiber.Current().Yield()

		if timer != nil {
			timer.Cancel()
		}
		if info.cancelled != 0 {
			return info.cancelled
		}
	}
}

// Read cooperatively wraps read(2).
func (h *Hook) Read(fd int, p []byte) (int, error) {
	var n int
	err := h.retry(fd, reactor.Read, func() error {
		var e error
		n, e = unix.Read(fd, p)
		return e
	})
	if err != nil {
		return -1, err
	}
	return n, nil
}

// Readv cooperatively wraps readv(2).
func (h *Hook) Readv(fd int, iovs [][]byte) (int, error) {
	var n int
	err := h.retry(fd, reactor.Read, func() error {
		var e error
		n, e = unix.Readv(fd, iovs)
		return e
	})
	if err != nil {
		return -1, err
	}
	return n, nil
}

// Recv cooperatively wraps recv(2).
func (h *Hook) Recv(fd int, p []byte, flags int) (int, error) {
	var n int
	err := h.retry(fd, reactor.Read, func() error {
		var e error
		n, _, e = unix.Recvfrom(fd, p, flags)
		return e
	})
	if err != nil {
		return -1, err
	}
	return n, nil
}

// Recvfrom cooperatively wraps recvfrom(2).
func (h *Hook) Recvfrom(fd int, p []byte, flags int) (int, unix.Sockaddr, error) {
	var n int
	var from unix.Sockaddr
	err := h.retry(fd, reactor.Read, func() error {
		var e error
		n, from, e = unix.Recvfrom(fd, p, flags)
		return e
	})
	if err != nil {
		return -1, nil, err
	}
	return n, from, nil
}

// Write cooperatively wraps write(2).
func (h *Hook) Write(fd int, p []byte) (int, error) {
	var n int
	err := h.retry(fd, reactor.Write, func() error {
		var e error
		n, e = unix.Write(fd, p)
		return e
	})
	if err != nil {
		return -1, err
	}
	return n, nil
}

// Writev cooperatively wraps writev(2).
func (h *Hook) Writev(fd int, iovs [][]byte) (int, error) {
	var n int
	err := h.retry(fd, reactor.Write, func() error {
		var e error
		n, e = unix.Writev(fd, iovs)
		return e
	})
	if err != nil {
		return -1, err
	}
	return n, nil
}

// Send cooperatively wraps send(2).
func (h *Hook) Send(fd int, p []byte, flags int) (int, error) {
	err := h.retry(fd, reactor.Write, func() error {
		return unix.Sendto(fd, p, flags, nil)
	})
	if err != nil {
		return -1, err
	}
	return len(p), nil
}

// Sendto cooperatively wraps sendto(2).
func (h *Hook) Sendto(fd int, p []byte, flags int, to unix.Sockaddr) error {
	return h.retry(fd, reactor.Write, func() error {
		return unix.Sendto(fd, p, flags, to)
	})
}

// Accept cooperatively wraps accept(2), putting the accepted descriptor
// into kernel-level non-blocking mode and registering it in the
// registry as a socket.
func (h *Hook) Accept(fd int) (int, unix.Sockaddr, error) {
	var nfd int
	var sa unix.Sockaddr
	err := h.retry(fd, reactor.Read, func() error {
		var e error
		nfd, sa, e = unix.Accept(fd)
		return e
	})
	if err != nil {
		return -1, nil, err
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		_ = unix.Close(nfd)
		return -1, nil, err
	}
	h.Registry.Observe(nfd, true)
	return nfd, sa, nil
}

// Connect cooperatively wraps connect(2), using the target fd's
// configured send timeout if one was set via SetsockoptTimeout, or
// else DefaultConnectTimeout (zero means wait indefinitely).
func (h *Hook) Connect(fd int, sa unix.Sockaddr) error {
	timeout := h.DefaultConnectTimeout
	if entry, ok := h.Registry.Lookup(fd); ok {
		if t := entry.Timeout(true); t > 0 {
			timeout = t
		}
	}
	return h.connect(fd, sa, timeout)
}

// ConnectTimeout is Connect with a bound on how long to wait for the
// handshake; exceeding it cancels the wait and returns ETIMEDOUT (zero
// means wait indefinitely). Unlike Connect it never consults the fd's
// send timeout or DefaultConnectTimeout. This two-tier split (ambient
// vs explicit timeout) avoids forcing every caller to thread an
// optional duration through one signature.
func (h *Hook) ConnectTimeout(fd int, sa unix.Sockaddr, timeout time.Duration) error {
	return h.connect(fd, sa, timeout)
}

func (h *Hook) connect(fd int, sa unix.Sockaddr, timeout time.Duration) error {
	if !IsHookEnabled() {
		return unix.Connect(fd, sa)
	}
	entry, ok := h.Registry.Lookup(fd)
	if !ok || entry.Closed || !entry.IsSocket || entry.UserNonBlocking {
		return unix.Connect(fd, sa)
	}

	err := unix.Connect(fd, sa)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EINPROGRESS) {
		return err
	}

	info := &cancelInfo{}
	var timer *timerwheel.Timer
	if timeout > 0 {
		timer = timerwheel.AddConditional(h.Reactor.Timers, timeout.Milliseconds(), func() {
			info.cancelled = unix.ETIMEDOUT
			h.Reactor.CancelEvent(fd, reactor.Write)
		}, info, false)
	}
	if armErr := h.Reactor.AddEvent(fd, reactor.Write, nil); armErr != nil {
		if timer != nil {
			timer.Cancel()
		}
		return armErr
	}

	fiber.Current().Yield()

	if timer != nil {
		timer.Cancel()
	}
	if info.cancelled != 0 {
		return info.cancelled
	}

	soErr, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if gerr != nil {
		return gerr
	}
	if soErr != 0 {
		return unix.Errno(soErr)
	}
	return nil
}

// Close cancels every armed event on fd, drops its registry entry,
// and closes the raw descriptor, in that order — so a fiber still
// waiting on this fd is woken before the fd becomes invalid.
func (h *Hook) Close(fd int) error {
	h.Reactor.CancelAll(fd)
	h.Registry.Close(fd)
	return unix.Close(fd)
}

// Dup cooperatively wraps dup(2), cloning the registry entry onto the
// new descriptor.
func (h *Hook) Dup(oldfd int) (int, error) {
	newfd, err := unix.Dup(oldfd)
	if err != nil {
		return -1, err
	}
	h.Registry.Clone(oldfd, newfd)
	return newfd, nil
}

// Dup2 cooperatively wraps dup2(2), cloning the registry entry onto
// newfd.
func (h *Hook) Dup2(oldfd, newfd int) error {
	if err := unix.Dup2(oldfd, newfd); err != nil {
		return err
	}
	h.Registry.Clone(oldfd, newfd)
	return nil
}

// Sleep suspends the current fiber for d without blocking its thread.
func (h *Hook) Sleep(d time.Duration) {
	if !IsHookEnabled() {
		time.Sleep(d)
		return
	}
	f := fiber.Current()
	h.Reactor.Timers.Add(d.Milliseconds(), func() { _ = f.Resume() }, false)
	f.Yield()
}

// Usleep is Sleep in microseconds, matching usleep(3)'s unit.
func (h *Hook) Usleep(usec int64) { h.Sleep(time.Duration(usec) * time.Microsecond) }

// Nanosleep is Sleep, named to match nanosleep(2)'s own name.
func (h *Hook) Nanosleep(d time.Duration) { h.Sleep(d) }

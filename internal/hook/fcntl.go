package hook

import (
	"time"

	"golang.org/x/sys/unix"
)

func isSocketFD(fd int) bool {
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return false
	}
	return stat.Mode&unix.S_IFMT == unix.S_IFSOCK
}

// FcntlSetfl records the caller's requested O_NONBLOCK bit but, for a
// runtime-managed socket, forces the kernel-level flag to non-blocking
// regardless of what was asked — the registry's user/sys split exists
// exactly to let FcntlGetfl lie convincingly about it afterward.
func (h *Hook) FcntlSetfl(fd int, flags int) error {
	entry := h.Registry.Observe(fd, isSocketFD(fd))
	entry.UserNonBlocking = flags&unix.O_NONBLOCK != 0

	sysFlags := flags
	if entry.IsSocket {
		sysFlags |= unix.O_NONBLOCK
	}
	_, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, sysFlags)
	if err == nil && entry.IsSocket {
		entry.SysNonBlocking = true
	}
	return err
}

// FcntlGetfl returns the flags the caller would see if the runtime
// weren't silently forcing non-blocking underneath: O_NONBLOCK
// reflects the user-requested mode, not the kernel's actual one.
func (h *Hook) FcntlGetfl(fd int) (int, error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return 0, err
	}
	entry, ok := h.Registry.Lookup(fd)
	if !ok || !entry.IsSocket {
		return flags, nil
	}
	if entry.UserNonBlocking {
		return flags | unix.O_NONBLOCK, nil
	}
	return flags &^ unix.O_NONBLOCK, nil
}

// IoctlFIONBIO is FcntlSetfl's ioctl-based equivalent, for callers
// that set non-blocking mode via FIONBIO rather than fcntl.
func (h *Hook) IoctlFIONBIO(fd int, nonBlocking bool) error {
	entry := h.Registry.Observe(fd, isSocketFD(fd))
	entry.UserNonBlocking = nonBlocking

	val := 1
	if !entry.IsSocket && !nonBlocking {
		val = 0
	}
	err := unix.IoctlSetInt(fd, unix.FIONBIO, val)
	if err == nil && entry.IsSocket {
		entry.SysNonBlocking = true
	}
	return err
}

// SetsockoptTimeout intercepts SO_RCVTIMEO/SO_SNDTIMEO: rather than
// forwarding them to the kernel, it stores the requested duration on
// the registry entry, since timeouts are enforced in user space by the
// condition-timer machinery in retry/connect.
func (h *Hook) SetsockoptTimeout(fd, level, opt int, d time.Duration) error {
	if level == unix.SOL_SOCKET && (opt == unix.SO_RCVTIMEO || opt == unix.SO_SNDTIMEO) {
		entry := h.Registry.Observe(fd, true)
		entry.SetTimeout(opt == unix.SO_SNDTIMEO, d)
		return nil
	}
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(fd, level, opt, &tv)
}

// Package fdreg is the runtime's process-wide descriptor registry: a
// map from file descriptor to metadata about how the cooperative hook
// layer should treat it — is it a socket, what mode did the caller
// request, what does the runtime enforce at the kernel level, and what
// per-direction timeouts apply.
//
// Entries are created lazily on first observation (by the hook layer's
// Accept and fcntl/ioctl/setsockopt wrappers, or a direct Observe
// call) or cloned on dup/dup2. The registry itself changes no kernel
// state: the hook layer forces the sockets it accepts, and those whose
// mode it sets via fcntl/ioctl, to kernel-level non-blocking regardless
// of what the user asked for. Send/recv timeouts are tracked in user
// space rather than forwarded to setsockopt.
package fdreg

import (
	"sync"
	"time"
)

// Entry holds everything the hook layer needs to know about one file
// descriptor.
type Entry struct {
	FD int

	IsSocket        bool
	UserNonBlocking bool // what the caller asked fcntl/ioctl for
	SysNonBlocking  bool // what the runtime actually enforces; always true for sockets

	RecvTimeout time.Duration // 0 = no timeout
	SendTimeout time.Duration

	Closed bool

	mu sync.Mutex
}

// Timeout returns the configured timeout for a direction; dirWrite
// selects SendTimeout, otherwise RecvTimeout.
func (e *Entry) Timeout(dirWrite bool) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if dirWrite {
		return e.SendTimeout
	}
	return e.RecvTimeout
}

// SetTimeout stores a direction's timeout without touching the kernel
// — SO_RCVTIMEO/SO_SNDTIMEO are intercepted and redirected here rather
// than passed through, since the runtime manages timeouts in user
// space via condition timers.
func (e *Entry) SetTimeout(dirWrite bool, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if dirWrite {
		e.SendTimeout = d
	} else {
		e.RecvTimeout = d
	}
}

// Registry is the process-wide fd -> Entry map.
type Registry struct {
	mu      sync.RWMutex
	entries map[int]*Entry
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[int]*Entry, 256)}
}

// Observe returns the Entry for fd, creating one (defaulting
// SysNonBlocking to isSocket) if this is the first time fd has been
// seen. Called from the hook layer's Accept and fcntl/ioctl/setsockopt
// wrappers, and by callers registering a descriptor they created; it
// records SysNonBlocking without changing the descriptor's kernel flags.
func (r *Registry) Observe(fd int, isSocket bool) *Entry {
	r.mu.RLock()
	e, ok := r.entries[fd]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[fd]; ok {
		return e
	}
	e = &Entry{FD: fd, IsSocket: isSocket, SysNonBlocking: isSocket}
	r.entries[fd] = e
	return e
}

// Lookup returns the Entry for fd if one has been observed, without
// creating it.
func (r *Registry) Lookup(fd int) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[fd]
	return e, ok
}

// Clone copies newFD's entry from oldFD's, used by dup/dup2 after the
// raw syscall succeeds — re-registering the resulting descriptor
// rather than leaving it to be lazily (and incorrectly) classified on
// first use.
func (r *Registry) Clone(oldFD, newFD int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.entries[oldFD]
	if !ok {
		return
	}
	clone := &Entry{
		FD:              newFD,
		IsSocket:        old.IsSocket,
		UserNonBlocking: old.UserNonBlocking,
		SysNonBlocking:  old.SysNonBlocking,
		RecvTimeout:     old.RecvTimeout,
		SendTimeout:     old.SendTimeout,
	}
	r.entries[newFD] = clone
}

// Close marks fd closed and removes it from the registry. The caller
// still performs the raw close syscall separately.
func (r *Registry) Close(fd int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[fd]; ok {
		e.mu.Lock()
		e.Closed = true
		e.mu.Unlock()
	}
	delete(r.entries, fd)
}

// Len reports the number of tracked descriptors, for diagnostics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

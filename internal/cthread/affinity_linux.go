//go:build linux

package cthread

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

func pinToCPU(cpuID int) error {
	if cpuID < 0 {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("SchedSetaffinity: %w", err)
	}
	return nil
}

func setCurrentThreadName(name string) {
	if name == "" {
		return
	}
	// PR_SET_NAME; best-effort, mirrors pthread_setname_np's silent
	// truncation semantics rather than treating failure as fatal.
	b := append([]byte(name), 0)
	_ = unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&b[0])), 0, 0, 0)
}

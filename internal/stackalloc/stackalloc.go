// Package stackalloc allocates guard-paged virtual memory regions sized
// for fiber stacks.
//
// The region is an anonymous private mapping of requested+one_page bytes;
// the lowest page is downgraded to PROT_NONE so a stack overflow faults
// deterministically instead of corrupting whatever memory happens to sit
// below it. Go's own goroutine stacks already guard against overflow by
// growing, so this allocator exists purely for the fiber package's
// accounting: a fiber "owns" one of these regions for its lifetime, and
// release unmaps it including the guard page.
package stackalloc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DefaultStackSize is the default fiber stack size.
const DefaultStackSize = 128 * 1024

// pageSize is resolved once at init via unix.Getpagesize rather than
// queried per allocation.
var pageSize = unix.Getpagesize()

// Region is an allocated, guard-paged stack region. It is not itself
// used as a goroutine's stack (Go manages those); it exists so fiber
// stack budgets are accounted for and profiling tools can see real
// mapped memory matching the configured stack size.
type Region struct {
	base []byte // full mapping, including the guard page
	size int    // usable size, excluding the guard page
}

// Alloc maps a region of size requested+one_page and protects the first
// page as a guard. requested is rounded up to a whole number of pages.
func Alloc(requested int) (*Region, error) {
	if requested <= 0 {
		requested = DefaultStackSize
	}
	usable := roundUpPage(requested)
	total := usable + pageSize

	base, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("stackalloc: mmap %d bytes: %w", total, err)
	}
	if err := unix.Mprotect(base[:pageSize], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(base)
		return nil, fmt.Errorf("stackalloc: mprotect guard page: %w", err)
	}
	return &Region{base: base, size: usable}, nil
}

// Bytes returns the usable (non-guard) portion of the region.
func (r *Region) Bytes() []byte {
	return r.base[pageSize:]
}

// Size returns the usable size in bytes.
func (r *Region) Size() int {
	return r.size
}

// Release unmaps the entire region, guard page included. The region
// must not be used afterward.
func (r *Region) Release() error {
	if r.base == nil {
		return nil
	}
	err := unix.Munmap(r.base)
	r.base = nil
	return err
}

func roundUpPage(n int) int {
	if rem := n % pageSize; rem != 0 {
		n += pageSize - rem
	}
	return n
}

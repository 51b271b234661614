package corert

import (
	"errors"
	"fmt"
)

// Sentinel errors for expected conditions, preferred over ad-hoc
// fmt.Errorf at call sites so callers can errors.Is against them.
var (
	// ErrRuntimeStopped names the stopped-runtime condition. No Runtime
	// method returns it: Spawn/SpawnPinned/SpawnFiber called after Stop
	// still return nil and the work is queued but never run, and
	// AddTimer returns no error at all.
	ErrRuntimeStopped = errors.New("corert: runtime is stopped")
	// ErrAlreadyRunning is returned by Start when called twice.
	ErrAlreadyRunning = errors.New("corert: runtime is already running")
	// ErrFDClosed names the closed-descriptor condition. The hook
	// wrappers do not return it: on a descriptor the registry marks
	// closed they call the raw syscall and return its error.
	ErrFDClosed = errors.New("corert: file descriptor is closed")
	// ErrFDNotRegistered names the unregistered-descriptor condition.
	// Registry lookups report a missing entry with a false ok value
	// rather than this error.
	ErrFDNotRegistered = errors.New("corert: file descriptor is not registered")
	// ErrEventAlreadyArmed is the facade's name for the condition
	// internal/reactor reports as ErrAlreadyArmed. It is a distinct
	// value: hook calls that fail this way return reactor.ErrAlreadyArmed,
	// and errors.Is does not match it against this one.
	ErrEventAlreadyArmed = errors.New("corert: direction already armed on this fd")
)

// FiberPanicError wraps a value recovered from a panicking fiber
// callback, with Unwrap support for panic values that are themselves
// errors. The runtime does not construct it itself: a fiber's panic is
// recovered at the trampoline boundary and never propagated, the raw
// recovered value is kept on the fiber (fiber.Fiber.Err), and the
// scheduler logs it.
type FiberPanicError struct {
	FiberID uint64
	Value   any
}

func (e *FiberPanicError) Error() string {
	return fmt.Sprintf("corert: fiber %d panicked: %v", e.FiberID, e.Value)
}

// Unwrap returns the panic value if it is itself an error, enabling
// errors.Is/errors.As through the cause chain.
func (e *FiberPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

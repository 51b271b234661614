//go:build !linux

package cthread

import "errors"

func pinToCPU(cpuID int) error {
	if cpuID < 0 {
		return nil
	}
	return errors.New("cthread: CPU affinity pinning is not supported on this platform")
}

func setCurrentThreadName(name string) {
	// No portable equivalent off Linux within this module's scope;
	// CurrentThreadName() still works via the goroutine-id map.
}

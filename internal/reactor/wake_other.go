//go:build !linux

package reactor

import "os"

// createWakeFD falls back to a classic self-pipe on platforms without
// eventfd.
func createWakeFD() (readFD, writeFD int, err error) {
	r, w, err := os.Pipe()
	if err != nil {
		return 0, 0, err
	}
	return int(r.Fd()), int(w.Fd()), nil
}

func writeWake(fd int) {
	f := os.NewFile(uintptr(fd), "reactor-wake-w")
	_, _ = f.Write([]byte{1})
}

// drainWake is unreachable on this build (noopPoller never reports the
// wake fd as readable) but kept for symmetry with wake_linux.go.
func drainWake(fd int) {}

func closeWakeFD(readFD, writeFD int) {
	_ = os.NewFile(uintptr(readFD), "reactor-wake-r").Close()
}

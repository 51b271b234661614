//go:build linux

package reactor

import "golang.org/x/sys/unix"

// createWakeFD uses a single eventfd as both read and write end.
func createWakeFD() (readFD, writeFD int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return 0, 0, err
	}
	return fd, fd, nil
}

func writeWake(fd int) {
	var buf [8]byte
	buf[0] = 1
	_, _ = unix.Write(fd, buf[:])
}

// drainWake reads until EAGAIN, required because the wake fd is
// registered edge-triggered: a partial drain would never re-arm.
func drainWake(fd int) {
	var buf [8]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err != nil {
			return
		}
	}
}

func closeWakeFD(readFD, writeFD int) {
	_ = unix.Close(readFD)
}

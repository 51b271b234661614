//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// epollPoller is a single epoll instance plus a preallocated event
// buffer, reused across waits.
type epollPoller struct {
	epfd int
	buf  []unix.EpollEvent
}

func newPoller(batchSize int) (poller, error) {
	if batchSize <= 0 {
		batchSize = 256
	}
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: fd, buf: make([]unix.EpollEvent, batchSize)}, nil
}

func dirToEpoll(d Direction) uint32 {
	var bits uint32 = unix.EPOLLET
	if d&Read != 0 {
		bits |= unix.EPOLLIN
	}
	if d&Write != 0 {
		bits |= unix.EPOLLOUT
	}
	return bits
}

func epollToDir(bits uint32) Direction {
	var d Direction
	if bits&unix.EPOLLIN != 0 {
		d |= Read
	}
	if bits&unix.EPOLLOUT != 0 {
		d |= Write
	}
	if bits&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		d |= bothDirections
	}
	return d
}

func (p *epollPoller) Add(fd int, dir Direction) error {
	ev := unix.EpollEvent{Events: dirToEpoll(dir), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) Modify(fd int, dir Direction) error {
	ev := unix.EpollEvent{Events: dirToEpoll(dir), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wait(timeoutMs int, fn func(fd int, dir Direction)) (int, error) {
	n, err := unix.EpollWait(p.epfd, p.buf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		fd := int(p.buf[i].Fd)
		if fd < 0 {
			continue
		}
		fn(fd, epollToDir(p.buf[i].Events))
	}
	return n, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}

//go:build linux

// File: reactor/epoll_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7) reactor. epoll merges the events of one descriptor into a
// single entry, so no merging pass is needed here.

package reactor

import (
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/internal/handle"
)

const defaultBackend = BackendEpoll

func init() {
	register(BackendEpoll, newEpoll)
}

// epollReactor implements api.Reactor using Linux epoll.
type epollReactor struct {
	h      *handle.Handle
	wk     waker
	events []unix.EpollEvent
}

func newEpoll() (api.Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, api.SystemError("epoll: failed to create epoll", err)
	}
	h := handle.FD(epfd)

	wk, err := newWaker()
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	r := &epollReactor{h: h, wk: wk}
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: int32(wk.fd())}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wk.fd(), &ev); err != nil {
		_ = r.Close()
		return nil, api.SystemError("epoll: failed to register wakeup", err)
	}
	return r, nil
}

// Set registers fd, or replaces its interest when it is already known.
func (r *epollReactor) Set(fd uintptr, mode api.Mode, flags api.Flag) error {
	if r.h.Closed() {
		return api.ErrClosed
	}
	if int(fd) == r.wk.fd() {
		return api.NewError(api.ErrCodeInvalidArgument, "epoll: descriptor is reserved").Wrap(api.ErrInvalidArgument)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLRDHUP, Fd: int32(fd)}
	if mode&api.ModeRead != 0 {
		ev.Events |= unix.EPOLLIN
	}
	if mode&api.ModeWrite != 0 {
		ev.Events |= unix.EPOLLOUT
	}
	if flags&api.FlagEdge != 0 {
		ev.Events |= unix.EPOLLET
	}
	if flags&api.FlagOnce != 0 {
		ev.Events |= unix.EPOLLONESHOT
	}

	err := unix.EpollCtl(r.h.Int(), unix.EPOLL_CTL_MOD, int(fd), &ev)
	if err == unix.ENOENT {
		err = unix.EpollCtl(r.h.Int(), unix.EPOLL_CTL_ADD, int(fd), &ev)
	}
	if err != nil {
		return api.SystemError("epoll: failed to set event", err).WithContext("fd", fd)
	}
	return nil
}

// Del removes fd; unknown or already closed descriptors are not an error.
func (r *epollReactor) Del(fd uintptr) error {
	if r.h.Closed() {
		return api.ErrClosed
	}
	err := unix.EpollCtl(r.h.Int(), unix.EPOLL_CTL_DEL, int(fd), nil)
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return api.SystemError("epoll: failed to delete event", err).WithContext("fd", fd)
	}
	return nil
}

// Poll waits for events; EINTR is reported as an empty result.
func (r *epollReactor) Poll(dst []api.Data, count int, timeout float64) ([]api.Data, error) {
	dst = dst[:0]
	if count <= 0 {
		return dst, nil
	}
	if r.h.Closed() {
		return dst, api.ErrClosed
	}
	if cap(r.events) < count {
		r.events = make([]unix.EpollEvent, count)
	}

	n, err := unix.EpollWait(r.h.Int(), r.events[:count], msec(timeout))
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, api.SystemError("epoll: failed to poll event", err)
	}

	for i := 0; i < n; i++ {
		item := &r.events[i]
		if int(item.Fd) == r.wk.fd() {
			r.wk.drain()
			continue
		}
		if ev := epollEvent(item.Events); ev != 0 {
			dst = append(dst, api.Data{FD: uintptr(item.Fd), Ev: ev})
		}
	}
	return dst, nil
}

// Stop wakes a blocked Poll.
func (r *epollReactor) Stop() error {
	if r.h.Closed() {
		return api.ErrClosed
	}
	return r.wk.wake()
}

// Close releases the epoll descriptor and the eventfd.
func (r *epollReactor) Close() error {
	return multierr.Combine(r.h.Close(), r.wk.close())
}

func epollEvent(events uint32) api.Event {
	return api.Classify(
		events&unix.EPOLLIN != 0,
		events&unix.EPOLLOUT != 0,
		events&(unix.EPOLLRDHUP|unix.EPOLLERR|unix.EPOLLHUP) != 0,
	)
}

//go:build darwin || freebsd || netbsd || openbsd || dragonfly

// File: reactor/kqueue_bsd.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// kqueue(2) reactor for Darwin and the BSDs. kqueue keeps one filter per
// direction, so one descriptor can come back as two kevents; they are
// merged into a single api.Data in first-seen order.

package reactor

import (
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/internal/handle"
)

const defaultBackend = BackendKqueue

func init() {
	register(BackendKqueue, newKqueue)
}

// kqueueReactor implements api.Reactor using kqueue.
type kqueueReactor struct {
	h      *handle.Handle
	wk     waker
	events []unix.Kevent_t
	index  map[int]int
}

func newKqueue() (api.Reactor, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, api.SystemError("kqueue: failed to create kqueue", err)
	}
	unix.CloseOnExec(kq)
	h := handle.FD(kq)

	wk, err := newWaker()
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	r := &kqueueReactor{h: h, wk: wk, index: make(map[int]int)}
	if err := r.change(wk.fd(), unix.EVFILT_READ, true, unix.EV_CLEAR); err != nil {
		_ = r.Close()
		return nil, api.SystemError("kqueue: failed to register wakeup", err)
	}
	return r, nil
}

// Set adds the filters selected by mode and deletes the others.
func (r *kqueueReactor) Set(fd uintptr, mode api.Mode, flags api.Flag) error {
	if r.h.Closed() {
		return api.ErrClosed
	}
	if int(fd) == r.wk.fd() {
		return api.NewError(api.ErrCodeInvalidArgument, "kqueue: descriptor is reserved").Wrap(api.ErrInvalidArgument)
	}

	extra := 0
	if flags&api.FlagOnce != 0 {
		extra |= unix.EV_ONESHOT
	}
	if flags&api.FlagEdge != 0 {
		extra |= unix.EV_CLEAR
	}

	if err := r.change(int(fd), unix.EVFILT_READ, mode&api.ModeRead != 0, extra); err != nil {
		return api.SystemError("kqueue: failed to set read event", err).WithContext("fd", fd)
	}
	if err := r.change(int(fd), unix.EVFILT_WRITE, mode&api.ModeWrite != 0, extra); err != nil {
		// leave no read filter behind a failed Set
		_ = r.change(int(fd), unix.EVFILT_READ, false, 0)
		return api.SystemError("kqueue: failed to set write event", err).WithContext("fd", fd)
	}
	return nil
}

// Del removes both filters; missing filters are ignored.
func (r *kqueueReactor) Del(fd uintptr) error {
	if r.h.Closed() {
		return api.ErrClosed
	}
	err := multierr.Combine(
		r.change(int(fd), unix.EVFILT_READ, false, 0),
		r.change(int(fd), unix.EVFILT_WRITE, false, 0),
	)
	if err != nil {
		return api.SystemError("kqueue: failed to delete event", err).WithContext("fd", fd)
	}
	return nil
}

// change applies one kevent change. Deleting an absent filter succeeds.
func (r *kqueueReactor) change(fd, filter int, on bool, extra int) error {
	var ch unix.Kevent_t
	if on {
		unix.SetKevent(&ch, fd, filter, unix.EV_ADD|unix.EV_ENABLE|extra)
	} else {
		unix.SetKevent(&ch, fd, filter, unix.EV_DELETE)
	}
	for {
		_, err := unix.Kevent(r.h.Int(), []unix.Kevent_t{ch}, nil, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err == nil:
			return nil
		case !on && (err == unix.ENOENT || err == unix.EBADF):
			return nil
		}
		return err
	}
}

// Poll waits for kevents and merges them per descriptor.
func (r *kqueueReactor) Poll(dst []api.Data, count int, timeout float64) ([]api.Data, error) {
	dst = dst[:0]
	if count <= 0 {
		return dst, nil
	}
	if r.h.Closed() {
		return dst, api.ErrClosed
	}
	if cap(r.events) < count {
		r.events = make([]unix.Kevent_t, count)
	}

	n, err := unix.Kevent(r.h.Int(), nil, r.events[:count], timespec(timeout))
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, api.SystemError("kqueue: failed to poll event", err)
	}

	clear(r.index)
	for i := 0; i < n; i++ {
		item := &r.events[i]
		fd := int(item.Ident)
		if fd == r.wk.fd() {
			r.wk.drain()
			continue
		}

		closed := item.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0
		var ev api.Event
		switch item.Filter {
		case unix.EVFILT_READ:
			ev = api.Classify(!closed || item.Data > 0, false, closed)
		case unix.EVFILT_WRITE:
			ev = api.Classify(false, !closed, closed)
		default:
			continue
		}

		if pos, ok := r.index[fd]; ok {
			merged := dst[pos].Ev | ev
			dst[pos].Ev = api.Classify(merged.IsReadable(), merged.IsWritable(), merged.IsClosed())
			continue
		}
		r.index[fd] = len(dst)
		dst = append(dst, api.Data{FD: uintptr(fd), Ev: ev})
	}
	return dst, nil
}

// Stop wakes a blocked Poll.
func (r *kqueueReactor) Stop() error {
	if r.h.Closed() {
		return api.ErrClosed
	}
	return r.wk.wake()
}

// Close releases the kqueue and the wakeup pipe.
func (r *kqueueReactor) Close() error {
	return multierr.Combine(r.h.Close(), r.wk.close())
}

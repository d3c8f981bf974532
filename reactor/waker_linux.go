//go:build linux

// File: reactor/waker_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// eventfd wakeup channel.

package reactor

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/internal/handle"
)

type eventWaker struct {
	h *handle.Handle
}

func newWaker() (waker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, api.SystemError("reactor: failed to create eventfd", err)
	}
	return &eventWaker{h: handle.FD(fd)}, nil
}

func (w *eventWaker) fd() int { return w.h.Int() }

func (w *eventWaker) wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(w.h.Int(), buf[:])
		switch err {
		case nil, unix.EAGAIN:
			// EAGAIN: the counter is saturated, a wake is pending anyway.
			return nil
		case unix.EINTR:
			continue
		}
		return api.SystemError("reactor: failed to write eventfd", err)
	}
}

func (w *eventWaker) drain() {
	var buf [8]byte
	for {
		if _, err := unix.Read(w.h.Int(), buf[:]); err != unix.EINTR {
			return
		}
	}
}

func (w *eventWaker) close() error { return w.h.Close() }

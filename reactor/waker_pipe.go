//go:build darwin || freebsd || netbsd || openbsd || dragonfly

// File: reactor/waker_pipe.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Self-pipe wakeup channel.

package reactor

import (
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/internal/handle"
)

type pipeWaker struct {
	r, w *handle.Handle
}

func newWaker() (waker, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, api.SystemError("reactor: failed to create wakeup pipe", err)
	}
	pw := &pipeWaker{r: handle.FD(p[0]), w: handle.FD(p[1])}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = pw.close()
			return nil, api.SystemError("reactor: failed to configure wakeup pipe", err)
		}
	}
	return pw, nil
}

func (w *pipeWaker) fd() int { return w.r.Int() }

func (w *pipeWaker) wake() error {
	for {
		_, err := unix.Write(w.w.Int(), []byte{1})
		switch err {
		case nil, unix.EAGAIN:
			// EAGAIN: the pipe is full of pending wakes.
			return nil
		case unix.EINTR:
			continue
		}
		return api.SystemError("reactor: failed to write wakeup pipe", err)
	}
}

func (w *pipeWaker) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(w.r.Int(), buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil || n < len(buf) {
			return
		}
	}
}

func (w *pipeWaker) close() error {
	return multierr.Combine(w.r.Close(), w.w.Close())
}

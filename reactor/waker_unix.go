//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

// File: reactor/waker_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "golang.org/x/sys/unix"

// waker is the private wakeup channel of a reactor.
type waker interface {
	// fd is the descriptor the backend watches for readability.
	fd() int
	// wake makes fd readable. A wake that is already pending is coalesced.
	wake() error
	// drain consumes every pending wake.
	drain()
	close() error
}

// timespec converts the public timeout to a kevent/ppoll timeout; nil blocks.
func timespec(timeout float64) *unix.Timespec {
	if timeout < 0 {
		return nil
	}
	ts := unix.NsecToTimespec(int64(msec(timeout)) * 1e6)
	return &ts
}

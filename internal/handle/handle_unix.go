//go:build unix

// File: internal/handle/handle_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handle

import "golang.org/x/sys/unix"

// FD wraps a unix file descriptor.
func FD(fd int) *Handle {
	return New(uintptr(fd), func(v uintptr) error { return unix.Close(int(v)) })
}

// Int returns the descriptor as the int expected by x/sys/unix.
func (h *Handle) Int() int { return int(h.value) }

//go:build windows

// File: internal/handle/handle_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handle

import "golang.org/x/sys/windows"

// Socket wraps a winsock handle.
func Socket(s windows.Handle) *Handle {
	return New(uintptr(s), func(v uintptr) error { return windows.Closesocket(windows.Handle(v)) })
}

// Sock returns the handle as a windows.Handle.
func (h *Handle) Sock() windows.Handle { return windows.Handle(h.value) }

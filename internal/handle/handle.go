// File: internal/handle/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Owned OS handles. A Handle is released exactly once no matter how many
// exit paths call Close, so constructors can defer cleanup freely.

package handle

import (
	"sync"
	"sync/atomic"
)

// Handle owns one OS descriptor or socket handle.
type Handle struct {
	value   uintptr
	release func(uintptr) error
	closed  atomic.Bool
	once    sync.Once
	err     error
}

// New takes ownership of v. release is invoked once by Close.
func New(v uintptr, release func(uintptr) error) *Handle {
	return &Handle{value: v, release: release}
}

// Value returns the raw handle. It must not be closed by the caller.
func (h *Handle) Value() uintptr { return h.value }

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool { return h.closed.Load() }

// Close releases the handle; later calls return the first result.
func (h *Handle) Close() error {
	h.once.Do(func() {
		h.closed.Store(true)
		if h.release != nil {
			h.err = h.release(h.value)
		}
	})
	return h.err
}

// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Portable contract for readiness-based event reactors. Every backend
// (epoll, kqueue, poll, WSAPoll) normalizes its native flags to the types
// declared here; native bit values never cross this boundary.

package api

import "strings"

// Mode is the interest mask a descriptor is registered with.
type Mode uint8

const (
	// ModeRead reports the descriptor when its receive buffer holds unread data.
	ModeRead Mode = 1 << iota

	// ModeWrite reports the descriptor when its send buffer has room.
	// A socket is writable almost all the time, so register for it only
	// after a send returned EAGAIN.
	ModeWrite

	// ModeRW is the union of ModeRead and ModeWrite.
	ModeRW = ModeRead | ModeWrite
)

// Flag modifies how a registration fires.
type Flag uint8

const (
	// FlagOnce disables the registration after it fired once. The entry stays
	// registered but silent until Set re-arms it or Del removes it.
	FlagOnce Flag = 1 << iota

	// FlagEdge asks for edge-triggered delivery. Backends without native
	// edge triggering (poll, WSAPoll) ignore it and stay level-triggered.
	FlagEdge
)

// Event is the readiness reported for one descriptor in one poll cycle.
// Several kinds may be merged in one value.
type Event uint8

const (
	// Readable means data can be read without blocking.
	Readable Event = 1 << iota

	// Writable means data can be written without blocking.
	Writable

	// Closed covers peer shutdown, hangup and socket errors. When it is
	// reported together with Readable, the caller should drain the remaining
	// bytes before treating the connection as gone.
	Closed
)

// IsReadable reports whether the Readable bit is set.
func (e Event) IsReadable() bool { return e&Readable != 0 }

// IsWritable reports whether the Writable bit is set.
func (e Event) IsWritable() bool { return e&Writable != 0 }

// IsClosed reports whether the Closed bit is set.
func (e Event) IsClosed() bool { return e&Closed != 0 }

func (e Event) String() string {
	if e == 0 {
		return "none"
	}
	var parts []string
	if e.IsReadable() {
		parts = append(parts, "readable")
	}
	if e.IsWritable() {
		parts = append(parts, "writable")
	}
	if e.IsClosed() {
		parts = append(parts, "closed")
	}
	return strings.Join(parts, "|")
}

// Classify folds raw readiness bits into the portable event. Any closed
// condition wins over Writable, while Readable is kept so that buffered
// bytes can still be drained.
func Classify(readable, writable, closed bool) Event {
	var ev Event
	if readable {
		ev |= Readable
	}
	if closed {
		return ev | Closed
	}
	if writable {
		ev |= Writable
	}
	return ev
}

// InvalidFD marks a batch slot whose descriptor was removed before dispatch.
const InvalidFD = ^uintptr(0)

// Data is one polled descriptor with its merged event.
type Data struct {
	FD uintptr
	Ev Event
}

// Reactor defines the registration/poll/wakeup contract shared by all backends.
type Reactor interface {
	// Set registers fd or replaces its interest mask and flags entirely.
	Set(fd uintptr, mode Mode, flags Flag) error

	// Del removes fd. Removing an unknown or already removed fd succeeds.
	Del(fd uintptr) error

	// Poll waits for up to count ready descriptors. The result reuses the
	// capacity of dst. timeout is in seconds: negative waits forever, zero
	// returns immediately. An empty result means timeout, signal
	// interruption or a Stop wakeup; the caller re-checks its own state.
	Poll(dst []Data, count int, timeout float64) ([]Data, error)

	// Stop wakes a blocked Poll. Safe to call from any goroutine.
	Stop() error

	// Close releases the OS handles owned by the reactor.
	Close() error
}

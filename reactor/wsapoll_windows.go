//go:build windows

// File: reactor/wsapoll_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WSAPoll reactor for Windows. IOCP is a completion (proactor) model, so the
// readiness contract is served by WSAPoll, which is level-triggered only.
// The wakeup channel is a UDP socket connected to itself on loopback.

package reactor

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"go.uber.org/multierr"
	"golang.org/x/sys/windows"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/internal/handle"
)

const defaultBackend = BackendWSAPoll

func init() {
	register(BackendWSAPoll, newWSAPoll)
}

var (
	modws2_32   = windows.NewLazySystemDLL("ws2_32.dll")
	procWSAPoll = modws2_32.NewProc("WSAPoll")

	// replaced in tests
	wsaSocket  = windows.Socket
	wsaCleanup = windows.WSACleanup
)

// WSAPOLLFD flag values from winsock2.h.
const (
	pollRDNORM = 0x0100
	pollWRNORM = 0x0010
	pollERR    = 0x0001
	pollHUP    = 0x0002
	pollNVAL   = 0x0004

	fionbio = 0x8004667e

	wsaEINTR       = windows.Errno(10004)
	wsaEWOULDBLOCK = windows.Errno(10035)
)

type wsaPollFD struct {
	fd      windows.Handle
	events  int16
	revents int16
}

type wsaEntry struct {
	mode  api.Mode
	flags api.Flag
	armed bool
}

// wsapollReactor implements api.Reactor using WSAPoll.
type wsapollReactor struct {
	mu      sync.Mutex
	entries map[windows.Handle]*wsaEntry
	fds     []wsaPollFD
	wake    *handle.Handle
	wakeTo  windows.Sockaddr
	waiting bool
	// cursor is the last socket reported; ^0 before the first report.
	cursor  windows.Handle
	stopped atomic.Bool
	closed  atomic.Bool
}

func newWSAPoll() (api.Reactor, error) {
	if err := procWSAPoll.Find(); err != nil {
		return nil, api.SystemError("wsapoll: WSAPoll is not available", err)
	}
	var data windows.WSAData
	if err := windows.WSAStartup(uint32(0x202), &data); err != nil {
		return nil, api.SystemError("wsapoll: WSAStartup failed", err)
	}
	ok := false
	defer func() {
		if !ok {
			_ = wsaCleanup()
		}
	}()

	s, err := wsaSocket(windows.AF_INET, windows.SOCK_DGRAM, windows.IPPROTO_UDP)
	if err != nil {
		return nil, api.SystemError("wsapoll: failed to create wakeup socket", err)
	}
	h := handle.Socket(s)
	if err := windows.Bind(s, &windows.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}); err != nil {
		_ = h.Close()
		return nil, api.SystemError("wsapoll: failed to bind wakeup socket", err)
	}
	local, err := windows.Getsockname(s)
	if err != nil {
		_ = h.Close()
		return nil, api.SystemError("wsapoll: failed to resolve wakeup socket", err)
	}
	if err := windows.Connect(s, local); err != nil {
		_ = h.Close()
		return nil, api.SystemError("wsapoll: failed to connect wakeup socket", err)
	}
	nb := uint32(1)
	var ret uint32
	if err := windows.WSAIoctl(s, fionbio, (*byte)(unsafe.Pointer(&nb)), 4, nil, 0, &ret, nil, 0); err != nil {
		_ = h.Close()
		return nil, api.SystemError("wsapoll: failed to configure wakeup socket", err)
	}

	ok = true
	return &wsapollReactor{
		entries: make(map[windows.Handle]*wsaEntry),
		wake:    h,
		wakeTo:  local,
		cursor:  ^windows.Handle(0),
	}, nil
}

func (r *wsapollReactor) Set(fd uintptr, mode api.Mode, flags api.Flag) error {
	if r.closed.Load() {
		return api.ErrClosed
	}
	if fd == r.wake.Value() {
		return api.NewError(api.ErrCodeInvalidArgument, "wsapoll: descriptor is reserved").Wrap(api.ErrInvalidArgument)
	}
	r.mu.Lock()
	r.entries[windows.Handle(fd)] = &wsaEntry{mode: mode, flags: flags, armed: true}
	return r.changed()
}

func (r *wsapollReactor) Del(fd uintptr) error {
	if r.closed.Load() {
		return api.ErrClosed
	}
	r.mu.Lock()
	if _, ok := r.entries[windows.Handle(fd)]; !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, windows.Handle(fd))
	return r.changed()
}

// changed releases mu and restarts a wait running on a stale array.
func (r *wsapollReactor) changed() error {
	waiting := r.waiting
	r.mu.Unlock()
	if !waiting {
		return nil
	}
	return r.signal()
}

func (r *wsapollReactor) build() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fds = append(r.fds[:0], wsaPollFD{fd: r.wake.Sock(), events: pollRDNORM})
	for s, e := range r.entries {
		if !e.armed {
			continue
		}
		var events int16
		if e.mode&api.ModeRead != 0 {
			events |= pollRDNORM
		}
		if e.mode&api.ModeWrite != 0 {
			events |= pollWRNORM
		}
		r.fds = append(r.fds, wsaPollFD{fd: s, events: events})
	}
	watched := r.fds[1:]
	sort.Slice(watched, func(i, j int) bool { return watched[i].fd < watched[j].fd })
	r.waiting = true
}

func (r *wsapollReactor) Poll(dst []api.Data, count int, timeout float64) ([]api.Data, error) {
	dst = dst[:0]
	if count <= 0 {
		return dst, nil
	}
	if r.closed.Load() {
		return dst, api.ErrClosed
	}

	wait := msec(timeout)
	var deadline time.Time
	if wait > 0 {
		deadline = time.Now().Add(time.Duration(wait) * time.Millisecond)
	}
	for {
		r.build()
		r1, _, e1 := procWSAPoll.Call(
			uintptr(unsafe.Pointer(&r.fds[0])),
			uintptr(len(r.fds)),
			uintptr(int32(wait)),
		)
		r.mu.Lock()
		r.waiting = false
		r.mu.Unlock()
		n := int32(r1)
		if n < 0 {
			if e1 == wsaEINTR {
				return dst, nil
			}
			return dst, api.SystemError("wsapoll: failed to poll event", e1)
		}
		if n == 0 {
			return dst, nil
		}

		woken := r.fds[0].revents != 0
		if woken {
			r.drain()
		}
		dst = r.collect(dst, count)
		stop := woken && r.stopped.Swap(false)
		if len(dst) > 0 || !woken || stop || wait == 0 {
			return dst, nil
		}
		if wait > 0 {
			left := time.Until(deadline)
			if left <= 0 {
				return dst, nil
			}
			wait = msec(left.Seconds())
		}
	}
}

// collect appends up to count ready sockets, starting after the last one
// reported.
func (r *wsapollReactor) collect(dst []api.Data, count int) []api.Data {
	watched := r.fds[1:]
	start := 0
	if r.cursor != ^windows.Handle(0) {
		start = sort.Search(len(watched), func(i int) bool { return watched[i].fd > r.cursor })
	}
	for k := 0; k < len(watched) && len(dst) < count; k++ {
		pfd := &watched[(start+k)%len(watched)]
		if pfd.revents == 0 {
			continue
		}
		ev := api.Classify(
			pfd.revents&pollRDNORM != 0,
			pfd.revents&pollWRNORM != 0,
			pfd.revents&(pollHUP|pollERR|pollNVAL) != 0,
		)
		if ev == 0 {
			continue
		}
		r.mu.Lock()
		e, ok := r.entries[pfd.fd]
		if ok && e.flags&api.FlagOnce != 0 {
			e.armed = false
		}
		r.mu.Unlock()
		if ok {
			dst = append(dst, api.Data{FD: uintptr(pfd.fd), Ev: ev})
			r.cursor = pfd.fd
		}
	}
	return dst
}

func (r *wsapollReactor) drain() {
	var buf [64]byte
	for {
		if _, _, err := windows.Recvfrom(r.wake.Sock(), buf[:], 0); err != nil {
			return
		}
	}
}

func (r *wsapollReactor) Stop() error {
	if r.closed.Load() {
		return api.ErrClosed
	}
	r.stopped.Store(true)
	return r.signal()
}

func (r *wsapollReactor) signal() error {
	err := windows.Sendto(r.wake.Sock(), []byte{1}, 0, r.wakeTo)
	if err != nil && err != wsaEWOULDBLOCK {
		return api.SystemError("wsapoll: failed to wake", err)
	}
	return nil
}

func (r *wsapollReactor) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return multierr.Combine(r.wake.Close(), wsaCleanup())
}

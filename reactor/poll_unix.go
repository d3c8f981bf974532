//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

// File: reactor/poll_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// poll(2) reactor. Readiness based and level-triggered only; the interest
// set lives in user space and is rebuilt for every wait. Registration
// changes during a wait wake the poller so the new set is picked up.

package reactor

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-sockets/api"
)

func init() {
	register(BackendPoll, newPoll)
}

type pollEntry struct {
	mode  api.Mode
	flags api.Flag
	armed bool
}

// pollReactor implements api.Reactor using poll(2).
type pollReactor struct {
	mu      sync.Mutex
	entries map[int]*pollEntry
	fds     []unix.PollFd
	wk      waker
	// waiting is set under mu while a Poll holds a built pollfd array, so a
	// registration change knows it has to restart the wait.
	waiting bool
	// cursor is the last descriptor reported; the next scan starts after it.
	cursor  int32
	stopped atomic.Bool
	closed  atomic.Bool
}

func newPoll() (api.Reactor, error) {
	wk, err := newWaker()
	if err != nil {
		return nil, err
	}
	return &pollReactor{entries: make(map[int]*pollEntry), wk: wk, cursor: -1}, nil
}

// Set stores the interest for fd. A Poll in flight restarts its wait.
func (r *pollReactor) Set(fd uintptr, mode api.Mode, flags api.Flag) error {
	if r.closed.Load() {
		return api.ErrClosed
	}
	if int(fd) == r.wk.fd() {
		return api.NewError(api.ErrCodeInvalidArgument, "poll: descriptor is reserved").Wrap(api.ErrInvalidArgument)
	}
	r.mu.Lock()
	r.entries[int(fd)] = &pollEntry{mode: mode, flags: flags, armed: true}
	return r.changed()
}

// Del forgets fd.
func (r *pollReactor) Del(fd uintptr) error {
	if r.closed.Load() {
		return api.ErrClosed
	}
	r.mu.Lock()
	if _, ok := r.entries[int(fd)]; !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, int(fd))
	return r.changed()
}

// changed releases mu and wakes a Poll that waits on a stale array.
func (r *pollReactor) changed() error {
	waiting := r.waiting
	r.mu.Unlock()
	if !waiting {
		return nil
	}
	if err := r.wk.wake(); err != nil {
		return api.SystemError("poll: failed to restart wait", err)
	}
	return nil
}

// build fills r.fds with the wakeup descriptor and every armed entry sorted
// by descriptor, and marks the reactor as waiting.
func (r *pollReactor) build() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fds = append(r.fds[:0], unix.PollFd{Fd: int32(r.wk.fd()), Events: unix.POLLIN})
	for fd, e := range r.entries {
		if !e.armed {
			continue
		}
		var events int16
		if e.mode&api.ModeRead != 0 {
			events |= unix.POLLIN | pollRDHUP
		}
		if e.mode&api.ModeWrite != 0 {
			events |= unix.POLLOUT
		}
		r.fds = append(r.fds, unix.PollFd{Fd: int32(fd), Events: events})
	}
	watched := r.fds[1:]
	sort.Slice(watched, func(i, j int) bool { return watched[i].Fd < watched[j].Fd })
	r.waiting = true
}

// Poll waits on a snapshot of the interest set. A wakeup caused only by Set
// or Del rebuilds the snapshot and waits again for the remaining timeout;
// a Stop returns an empty batch.
func (r *pollReactor) Poll(dst []api.Data, count int, timeout float64) ([]api.Data, error) {
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
		n, err := unix.Poll(r.fds, wait)
		r.mu.Lock()
		r.waiting = false
		r.mu.Unlock()
		if err != nil {
			if err == unix.EINTR {
				return dst, nil
			}
			return dst, api.SystemError("poll: failed to poll event", err)
		}
		if n == 0 {
			return dst, nil
		}

		woken := r.fds[0].Revents != 0
		if woken {
			r.wk.drain()
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

// collect appends up to count ready descriptors, starting after the one
// reported last so that every ready descriptor gets its turn.
func (r *pollReactor) collect(dst []api.Data, count int) []api.Data {
	watched := r.fds[1:]
	start := sort.Search(len(watched), func(i int) bool { return watched[i].Fd > r.cursor })
	for k := 0; k < len(watched) && len(dst) < count; k++ {
		pfd := &watched[(start+k)%len(watched)]
		if pfd.Revents == 0 {
			continue
		}
		ev := api.Classify(
			pfd.Revents&unix.POLLIN != 0,
			pfd.Revents&unix.POLLOUT != 0,
			pfd.Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL|pollRDHUP) != 0,
		)
		if ev == 0 {
			continue
		}

		r.mu.Lock()
		e, ok := r.entries[int(pfd.Fd)]
		if ok && e.flags&api.FlagOnce != 0 {
			e.armed = false
		}
		r.mu.Unlock()
		if !ok {
			// removed by another goroutine while we were waiting
			continue
		}
		dst = append(dst, api.Data{FD: uintptr(pfd.Fd), Ev: ev})
		r.cursor = pfd.Fd
	}
	return dst
}

// Stop wakes a blocked Poll.
func (r *pollReactor) Stop() error {
	if r.closed.Load() {
		return api.ErrClosed
	}
	r.stopped.Store(true)
	return r.wk.wake()
}

// Close releases the wakeup channel.
func (r *pollReactor) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.wk.close()
}

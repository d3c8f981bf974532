// File: fake/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scripted in-memory api.Reactor for deterministic runloop tests.

package fake

import (
	"sync"
	"time"

	"github.com/momentics/hioload-sockets/api"
)

// Registration mirrors one Set call.
type Registration struct {
	Mode  api.Mode
	Flags api.Flag
}

// Reactor replays batches queued with Push. It does not filter them against
// its registrations, so tests can script events the real backends never
// produce.
type Reactor struct {
	mu      sync.Mutex
	regs    map[uintptr]Registration
	script  [][]api.Data
	woken   bool
	closed  bool
	setErr  error
	signal  chan struct{}
	polls   int
	stops   int
	dels    []uintptr
	timeout []float64
}

var _ api.Reactor = (*Reactor)(nil)

// NewReactor returns an empty fake.
func NewReactor() *Reactor {
	return &Reactor{
		regs:   make(map[uintptr]Registration),
		signal: make(chan struct{}, 1),
	}
}

// Push queues one batch to be returned by a future Poll.
func (r *Reactor) Push(batch ...api.Data) {
	r.mu.Lock()
	r.script = append(r.script, append([]api.Data(nil), batch...))
	r.mu.Unlock()
	r.notify()
}

// FailSet makes every following Set return err. Nil restores success.
func (r *Reactor) FailSet(err error) {
	r.mu.Lock()
	r.setErr = err
	r.mu.Unlock()
}

// Registered reports the current registration of fd.
func (r *Reactor) Registered(fd uintptr) (Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[fd]
	return reg, ok
}

// Len returns the number of registered descriptors.
func (r *Reactor) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.regs)
}

// Polls returns the number of Poll calls so far.
func (r *Reactor) Polls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polls
}

// Stops returns the number of Stop calls so far.
func (r *Reactor) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

// Timeouts returns the timeout argument of every Poll call.
func (r *Reactor) Timeouts() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.timeout...)
}

// Deleted returns the descriptors passed to Del in call order.
func (r *Reactor) Deleted() []uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uintptr(nil), r.dels...)
}

func (r *Reactor) Set(fd uintptr, mode api.Mode, flags api.Flag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return api.ErrClosed
	}
	if r.setErr != nil {
		return r.setErr
	}
	r.regs[fd] = Registration{Mode: mode, Flags: flags}
	return nil
}

func (r *Reactor) Del(fd uintptr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return api.ErrClosed
	}
	delete(r.regs, fd)
	r.dels = append(r.dels, fd)
	return nil
}

// Poll returns the next scripted batch truncated to count; the remainder
// stays queued. Without a batch it behaves like a real backend: it returns
// empty on timeout or Stop and blocks otherwise.
func (r *Reactor) Poll(dst []api.Data, count int, timeout float64) ([]api.Data, error) {
	r.mu.Lock()
	r.polls++
	r.timeout = append(r.timeout, timeout)
	r.mu.Unlock()

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(time.Duration(timeout * float64(time.Second)))
		defer t.Stop()
		deadline = t.C
	}
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return dst[:0], api.ErrClosed
		}
		if len(r.script) > 0 {
			batch := r.script[0]
			if len(batch) > count {
				r.script[0] = batch[count:]
				batch = batch[:count]
			} else {
				r.script = r.script[1:]
			}
			r.mu.Unlock()
			return append(dst[:0], batch...), nil
		}
		if r.woken {
			r.woken = false
			r.mu.Unlock()
			return dst[:0], nil
		}
		r.mu.Unlock()

		if timeout == 0 {
			return dst[:0], nil
		}
		select {
		case <-r.signal:
		case <-deadline:
			return dst[:0], nil
		}
	}
}

func (r *Reactor) Stop() error {
	r.mu.Lock()
	r.stops++
	r.woken = true
	r.mu.Unlock()
	r.notify()
	return nil
}

func (r *Reactor) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.notify()
	return nil
}

func (r *Reactor) notify() {
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

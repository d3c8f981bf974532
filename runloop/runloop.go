// File: runloop/runloop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Single-threaded dispatch loop over an api.Reactor.

package runloop

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/eapache/queue"
	"github.com/momentics/hioload-sockets/affinity"
	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/control"
	"github.com/momentics/hioload-sockets/reactor"
	"github.com/momentics/hioload-sockets/timer"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrStateDiverged means the reactor reported a descriptor the loop holds no
// callback for. The registration bookkeeping is broken and the loop stops.
var ErrStateDiverged = errors.New("reactor reported a descriptor without callback")

// ErrRunning is returned when Start or RunOnce is entered while the loop is
// already dispatching.
var ErrRunning = errors.New("runloop already running")

type probe struct {
	debug api.Debug
	name  string
}

// Callback receives the merged event of one descriptor.
type Callback func(fd uintptr, ev api.Event)

// Loop maps descriptors to callbacks and drives poll/dispatch cycles.
//
// Callbacks, timers and posted tasks all run on the goroutine that called
// Start, one at a time. Set and Del may be called from callbacks; calling
// them from other goroutines is safe but racing with dispatch of the same
// descriptor is the caller's problem. Stop and Post are safe anywhere.
type Loop struct {
	reactor   api.Reactor
	owned     bool
	batchSize int
	cpu       int
	idle      time.Duration
	clock     clock.Clock
	log       *zap.Logger
	metrics   *control.Metrics

	// mu guards the mapping, the batch being dispatched, timers and posted
	// tasks. It is never held across Poll or a callback.
	mu      sync.Mutex
	mapping map[uintptr]Callback
	batch   []api.Data
	// deleted holds descriptors removed since the current Poll started. Their
	// already-polled slots are skipped even if Del ran before the batch was
	// published to dispatch.
	deleted map[uintptr]struct{}
	timers  timer.Queue
	posted  *queue.Queue

	scratch []api.Data
	probes  []probe

	running atomic.Bool
	stopped atomic.Bool
	closed  atomic.Bool

	polls       atomic.Uint64
	dispatched  atomic.Uint64
	skipped     atomic.Uint64
	timersFired atomic.Uint64
}

// New builds a loop. Without WithReactor it creates and owns a reactor of
// the configured backend.
func New(opts ...Option) (*Loop, error) {
	o := options{
		batchSize: DefaultBatchSize,
		cpu:       -1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.batchSize <= 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "batch size must be positive").
			WithContext("batch_size", o.batchSize)
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.metrics == nil {
		o.metrics = control.NewMetrics(nil)
	}
	l := &Loop{
		reactor:   o.reactor,
		batchSize: o.batchSize,
		cpu:       o.cpu,
		idle:      o.idle,
		clock:     o.clock,
		log:       o.log,
		metrics:   o.metrics,
		mapping:   make(map[uintptr]Callback),
		deleted:   make(map[uintptr]struct{}),
		posted:    queue.New(),
		scratch:   make([]api.Data, 0, o.batchSize),
	}
	if l.reactor == nil {
		var ropts []reactor.Option
		if o.backend != "" {
			ropts = append(ropts, reactor.WithBackend(o.backend))
		}
		r, err := reactor.New(ropts...)
		if err != nil {
			return nil, err
		}
		l.reactor = r
		l.owned = true
	}
	return l, nil
}

// Reactor returns the reactor the loop polls.
func (l *Loop) Reactor() api.Reactor { return l.reactor }

// Clock returns the loop's time source.
func (l *Loop) Clock() clock.Clock { return l.clock }

// Set registers fd or replaces its interest, flags and callback.
func (l *Loop) Set(fd uintptr, mode api.Mode, flags api.Flag, cb Callback) error {
	if cb == nil || fd == api.InvalidFD {
		return api.NewError(api.ErrCodeInvalidArgument, "set needs a descriptor and a callback").
			WithContext("fd", fd)
	}
	if l.closed.Load() {
		return api.ErrClosed
	}
	// The callback is visible before the reactor can report fd, so a
	// concurrent dispatch never observes a registered fd without callback.
	l.mu.Lock()
	prev, had := l.mapping[fd]
	l.mapping[fd] = cb
	l.mu.Unlock()

	if err := l.reactor.Set(fd, mode, flags); err != nil {
		l.mu.Lock()
		if had {
			l.mapping[fd] = prev
		} else {
			delete(l.mapping, fd)
		}
		l.mu.Unlock()
		return err
	}
	if !had {
		l.metrics.Descriptors.Inc()
	}
	return nil
}

// Del removes fd. Any event for fd already polled in the current batch is
// dropped. Removing an unknown descriptor succeeds.
func (l *Loop) Del(fd uintptr) error {
	if err := l.reactor.Del(fd); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.mapping[fd]; ok {
		delete(l.mapping, fd)
		l.metrics.Descriptors.Dec()
		l.deleted[fd] = struct{}{}
	}
	for i := range l.batch {
		if l.batch[i].FD == fd {
			l.batch[i].FD = api.InvalidFD
		}
	}
	return nil
}

// Registered reports whether fd has a callback.
func (l *Loop) Registered(fd uintptr) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.mapping[fd]
	return ok
}

// Start polls and dispatches until Stop, Close or a fatal error. A Stop that
// arrived while the loop was idle makes Start return at once. With
// WithIdleTimeout, Start also returns nil once no descriptor, timer or
// posted task has run for that long.
func (l *Loop) Start() error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	if l.cpu >= 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := affinity.Pin(l.cpu); err != nil {
			return err
		}
	}

	l.log.Debug("runloop started", zap.Int("batch_size", l.batchSize), zap.Int("cpu", l.cpu))
	defer l.log.Debug("runloop stopped")
	last := l.clock.Now()
	for {
		if l.stopped.CompareAndSwap(true, false) {
			return nil
		}
		wait := -1.0
		if l.idle > 0 {
			left := l.idle - l.clock.Since(last)
			if left <= 0 {
				l.log.Debug("runloop idle", zap.Duration("idle", l.idle))
				return nil
			}
			wait = left.Seconds()
		}
		_, work, err := l.cycle(wait)
		if err != nil {
			if l.closed.Load() && errors.Is(err, api.ErrClosed) {
				return nil
			}
			return err
		}
		if work > 0 {
			last = l.clock.Now()
		}
	}
}

// RunOnce performs a single poll/dispatch cycle waiting at most timeout
// seconds (negative waits for the first event, timer or wakeup) and returns
// the number of callbacks invoked for descriptors.
func (l *Loop) RunOnce(timeout float64) (int, error) {
	if !l.running.CompareAndSwap(false, true) {
		return 0, ErrRunning
	}
	defer l.running.Store(false)
	n, _, err := l.cycle(timeout)
	return n, err
}

// Run is Start bound to ctx: cancelling ctx stops the loop and Run returns
// ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.Stop()
		case <-done:
		}
	}()
	if err := l.Start(); err != nil {
		return err
	}
	return ctx.Err()
}

// Stop makes Start return after the current cycle. Safe from any goroutine.
func (l *Loop) Stop() error {
	l.stopped.Store(true)
	return l.reactor.Stop()
}

// Post queues fn to run on the loop goroutine after the next dispatch.
func (l *Loop) Post(fn func()) error {
	if fn == nil {
		return api.NewError(api.ErrCodeInvalidArgument, "nil task")
	}
	if l.closed.Load() {
		return api.ErrClosed
	}
	l.mu.Lock()
	l.posted.Add(fn)
	l.mu.Unlock()
	return l.reactor.Stop()
}

// AddTimer arms t relative to the loop clock. Adding an armed timer
// re-arms it.
func (l *Loop) AddTimer(t *timer.Timer) error {
	if t == nil || (t.Repeat() && t.Cycle() <= 0) {
		return api.NewError(api.ErrCodeInvalidArgument, "repeating timer needs a positive period")
	}
	l.mu.Lock()
	t.Setup(l.clock.Now())
	l.timers.Push(t)
	l.mu.Unlock()
	if l.running.Load() {
		return l.reactor.Stop()
	}
	return nil
}

// DelTimer disarms t. Unknown timers are ignored.
func (l *Loop) DelTimer(t *timer.Timer) {
	l.mu.Lock()
	l.timers.Remove(t)
	l.mu.Unlock()
}

// Close stops the loop and drops every registration. The reactor is closed
// only when the loop created it.
func (l *Loop) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	err := l.Stop()

	l.mu.Lock()
	n := len(l.mapping)
	l.mapping = make(map[uintptr]Callback)
	l.timers = timer.Queue{}
	l.posted = queue.New()
	probes := l.probes
	l.probes = nil
	l.mu.Unlock()
	l.metrics.Descriptors.Sub(float64(n))
	for _, p := range probes {
		p.debug.RemoveProbe(p.name)
	}

	if l.owned {
		err = multierr.Append(err, l.reactor.Close())
	}
	return err
}

// cycle returns the callbacks invoked for descriptors and the total work
// done, which also counts fired timers and posted tasks.
func (l *Loop) cycle(timeout float64) (int, int, error) {
	wait := l.pollTimeout(timeout)
	l.mu.Lock()
	clear(l.deleted)
	l.mu.Unlock()

	var err error
	l.scratch, err = l.reactor.Poll(l.scratch[:0], l.batchSize, wait)
	if err != nil {
		return 0, 0, err
	}
	l.polls.Add(1)
	l.metrics.Polls.Inc()
	if len(l.scratch) == 0 {
		l.metrics.EmptyPolls.Inc()
	}

	n, err := l.dispatch(l.scratch)
	if err != nil {
		return n, n, err
	}

	work := n + l.fireTimers()
	work += l.runPosted()
	return n, work, nil
}

func (l *Loop) pollTimeout(timeout float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.posted.Length() > 0 {
		return 0
	}
	if d := l.timers.Wait(l.clock.Now()); d >= 0 {
		s := d.Seconds()
		if timeout < 0 || s < timeout {
			return s
		}
	}
	return timeout
}

// dispatch runs callbacks for batch in order. The callback is looked up per
// slot at call time so that a Del issued by an earlier callback suppresses
// later slots for the same descriptor.
func (l *Loop) dispatch(batch []api.Data) (int, error) {
	l.mu.Lock()
	l.batch = batch
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.batch = nil
		l.mu.Unlock()
	}()

	n := 0
	for i := 0; ; i++ {
		l.mu.Lock()
		if i >= len(l.batch) {
			l.mu.Unlock()
			return n, nil
		}
		d := l.batch[i]
		if d.FD == api.InvalidFD {
			l.mu.Unlock()
			l.skipped.Add(1)
			l.metrics.Skipped.Inc()
			continue
		}
		cb, ok := l.mapping[d.FD]
		_, gone := l.deleted[d.FD]
		l.mu.Unlock()

		if !ok && gone {
			l.skipped.Add(1)
			l.metrics.Skipped.Inc()
			continue
		}
		if !ok {
			l.log.Error("polled descriptor has no callback", zap.Uintptr("fd", d.FD), zap.Stringer("event", d.Ev))
			return n, api.NewError(api.ErrCodeInternal, "dispatch").
				WithContext("fd", d.FD).
				Wrap(ErrStateDiverged)
		}
		cb(d.FD, d.Ev)
		n++
		l.dispatched.Add(1)
		l.metrics.Dispatched.WithLabelValues(d.Ev.String()).Inc()
	}
}

// fireTimers runs every timer due at the start of the pass. Timers armed by
// callbacks wait for the next cycle.
func (l *Loop) fireTimers() int {
	now := l.clock.Now()
	l.mu.Lock()
	budget := l.timers.Len()
	l.mu.Unlock()

	fired := 0
	for ; budget > 0; budget-- {
		l.mu.Lock()
		t := l.timers.PopExpired(now)
		if t != nil && t.Repeat() {
			t.Update(now)
			l.timers.Push(t)
		}
		l.mu.Unlock()
		if t == nil {
			return fired
		}
		t.Fire()
		fired++
		l.timersFired.Add(1)
		l.metrics.TimersFired.Inc()
	}
	return fired
}

func (l *Loop) runPosted() int {
	l.mu.Lock()
	tasks := make([]func(), 0, l.posted.Length())
	for l.posted.Length() > 0 {
		tasks = append(tasks, l.posted.Remove().(func()))
	}
	l.mu.Unlock()
	for _, fn := range tasks {
		fn()
	}
	return len(tasks)
}

// Stats is a point-in-time snapshot of the loop.
type Stats struct {
	Descriptors int
	Timers      int
	Pending     int
	Running     bool
	Polls       uint64
	Dispatched  uint64
	Skipped     uint64
	TimersFired uint64
}

// Stats returns current counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Descriptors: len(l.mapping),
		Timers:      l.timers.Len(),
		Pending:     l.posted.Length(),
		Running:     l.running.Load(),
		Polls:       l.polls.Load(),
		Dispatched:  l.dispatched.Load(),
		Skipped:     l.skipped.Load(),
		TimersFired: l.timersFired.Load(),
	}
}

// RegisterProbes publishes Stats under name until Close.
func (l *Loop) RegisterProbes(d api.Debug, name string) {
	d.RegisterProbe(name, func() any { return l.Stats() })
	l.mu.Lock()
	l.probes = append(l.probes, probe{d, name})
	l.mu.Unlock()
}

// File: timer/timer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Deadline objects driven by a runloop. A Timer is either one-shot (relative
// timeout or absolute calendar time) or repeating with a fixed period.
//
// Catch-up policy for repeating timers is skip-ahead: after a stall that
// spans several periods the timer fires once, and the next deadline is
// placed one period after the current time. Missed periods are never
// replayed in a burst.

package timer

import "time"

// Timer holds one deadline and its callback.
type Timer struct {
	repeat bool
	cycle  time.Duration
	future time.Time
	alarm  time.Time
	notify func()

	// queue bookkeeping
	seq   uint64
	index int
}

// New creates an unarmed timer with an optional callback.
func New(cb func()) *Timer {
	return &Timer{notify: cb, index: -1}
}

// Timeout fires the callback once, d after Setup.
func (t *Timer) Timeout(d time.Duration) {
	t.repeat = false
	t.cycle = d
	t.future = time.Time{}
}

// Future fires the callback once at the given calendar time.
func (t *Timer) Future(at time.Time) {
	t.repeat = false
	t.cycle = 0
	t.future = at
}

// Interval fires the callback every d.
func (t *Timer) Interval(d time.Duration) {
	t.repeat = true
	t.cycle = d
	t.future = time.Time{}
}

// Attach replaces the callback.
func (t *Timer) Attach(cb func()) { t.notify = cb }

// Repeat reports whether the timer is periodic.
func (t *Timer) Repeat() bool { return t.repeat }

// Cycle is the configured period or relative timeout.
func (t *Timer) Cycle() time.Duration { return t.cycle }

// Alarm is the next deadline.
func (t *Timer) Alarm() time.Time { return t.alarm }

// Setup computes the first absolute deadline.
func (t *Timer) Setup(now time.Time) {
	if !t.future.IsZero() {
		t.alarm = t.future
		return
	}
	t.alarm = now.Add(t.cycle)
}

// Expire reports whether the deadline has been reached. It never mutates.
func (t *Timer) Expire(now time.Time) bool {
	return !now.Before(t.alarm)
}

// Update advances a repeating timer by one period, skipping ahead to
// now+period when the advanced deadline is already in the past.
// One-shot timers are left untouched.
func (t *Timer) Update(now time.Time) {
	if !t.repeat {
		return
	}
	next := t.alarm.Add(t.cycle)
	if !next.After(now) {
		next = now.Add(t.cycle)
	}
	t.alarm = next
}

// Fire invokes the callback if one is attached.
func (t *Timer) Fire() {
	if t.notify != nil {
		t.notify()
	}
}

// Less orders timers by deadline, then by insertion into a Queue.
func Less(a, b *Timer) bool {
	if !a.alarm.Equal(b.alarm) {
		return a.alarm.Before(b.alarm)
	}
	return a.seq < b.seq
}

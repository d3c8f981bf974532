// File: timer/queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Min-heap of timers keyed by (deadline, insertion sequence).

package timer

import (
	"container/heap"
	"time"
)

// Queue orders active timers. Not safe for concurrent use.
type Queue struct {
	h   timerHeap
	seq uint64
}

// Len returns the number of queued timers.
func (q *Queue) Len() int { return len(q.h) }

// Contains reports whether t is queued here.
func (q *Queue) Contains(t *Timer) bool {
	return t.index >= 0 && t.index < len(q.h) && q.h[t.index] == t
}

// Push inserts t. Pushing a queued timer only re-sorts it.
func (q *Queue) Push(t *Timer) {
	if q.Contains(t) {
		heap.Fix(&q.h, t.index)
		return
	}
	q.seq++
	t.seq = q.seq
	heap.Push(&q.h, t)
}

// Remove drops t; unknown timers are ignored.
func (q *Queue) Remove(t *Timer) {
	if !q.Contains(t) {
		return
	}
	heap.Remove(&q.h, t.index)
}

// Fix restores the order after t's deadline changed.
func (q *Queue) Fix(t *Timer) {
	if q.Contains(t) {
		heap.Fix(&q.h, t.index)
	}
}

// Peek returns the earliest timer or nil.
func (q *Queue) Peek() *Timer {
	if len(q.h) == 0 {
		return nil
	}
	return q.h[0]
}

// PopExpired removes and returns the earliest timer when it has expired.
func (q *Queue) PopExpired(now time.Time) *Timer {
	t := q.Peek()
	if t == nil || !t.Expire(now) {
		return nil
	}
	heap.Pop(&q.h)
	return t
}

// Wait is the time until the earliest deadline: negative when the queue
// is empty, zero when a timer is already due.
func (q *Queue) Wait(now time.Time) time.Duration {
	t := q.Peek()
	if t == nil {
		return -1
	}
	if d := t.alarm.Sub(now); d > 0 {
		return d
	}
	return 0
}

type timerHeap []*Timer

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return Less(h[i], h[j]) }

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

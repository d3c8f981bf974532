// File: runloop/runloop_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package runloop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/control"
	"github.com/momentics/hioload-sockets/fake"
	"github.com/momentics/hioload-sockets/timer"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hit struct {
	fd uintptr
	ev api.Event
}

func newFakeLoop(t *testing.T, opts ...Option) (*Loop, *fake.Reactor) {
	t.Helper()
	r := fake.NewReactor()
	l, err := New(append([]Option{WithReactor(r)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, r
}

func recorder(hits *[]hit) Callback {
	return func(fd uintptr, ev api.Event) {
		*hits = append(*hits, hit{fd, ev})
	}
}

func TestDispatchInBatchOrder(t *testing.T) {
	l, r := newFakeLoop(t)
	var hits []hit
	for _, fd := range []uintptr{3, 4, 5} {
		require.NoError(t, l.Set(fd, api.ModeRead, 0, recorder(&hits)))
	}
	r.Push(
		api.Data{FD: 5, Ev: api.Readable},
		api.Data{FD: 3, Ev: api.Readable | api.Closed},
		api.Data{FD: 4, Ev: api.Writable},
	)

	n, err := l.RunOnce(0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []hit{
		{5, api.Readable},
		{3, api.Readable | api.Closed},
		{4, api.Writable},
	}, hits)
}

func TestSetForwardsInterest(t *testing.T) {
	l, r := newFakeLoop(t)
	cb := func(uintptr, api.Event) {}
	require.NoError(t, l.Set(7, api.ModeRW, api.FlagEdge, cb))
	reg, ok := r.Registered(7)
	require.True(t, ok)
	assert.Equal(t, fake.Registration{Mode: api.ModeRW, Flags: api.FlagEdge}, reg)

	require.NoError(t, l.Set(7, api.ModeRead, 0, cb))
	reg, _ = r.Registered(7)
	assert.Equal(t, api.ModeRead, reg.Mode)
	assert.Equal(t, 1, l.Stats().Descriptors)
}

func TestSetRejectsInvalid(t *testing.T) {
	l, _ := newFakeLoop(t)
	err := l.Set(3, api.ModeRead, 0, nil)
	assert.Equal(t, api.ErrCodeInvalidArgument, api.CodeOf(err))
	err = l.Set(api.InvalidFD, api.ModeRead, 0, func(uintptr, api.Event) {})
	assert.Equal(t, api.ErrCodeInvalidArgument, api.CodeOf(err))
}

func TestSetFailureRestoresMapping(t *testing.T) {
	l, r := newFakeLoop(t)
	var hits []hit
	require.NoError(t, l.Set(3, api.ModeRead, 0, recorder(&hits)))

	boom := errors.New("boom")
	r.FailSet(boom)
	assert.ErrorIs(t, l.Set(3, api.ModeWrite, 0, func(uintptr, api.Event) { t.Fatal("replaced callback called") }), boom)
	assert.ErrorIs(t, l.Set(9, api.ModeRead, 0, func(uintptr, api.Event) {}), boom)
	assert.False(t, l.Registered(9))

	r.Push(api.Data{FD: 3, Ev: api.Readable})
	_, err := l.RunOnce(0)
	require.NoError(t, err)
	assert.Equal(t, []hit{{3, api.Readable}}, hits)
}

func TestDelDuringDispatchSuppressesLaterSlot(t *testing.T) {
	l, r := newFakeLoop(t)
	var hits []hit
	rec := recorder(&hits)
	require.NoError(t, l.Set(3, api.ModeRead, 0, func(fd uintptr, ev api.Event) {
		rec(fd, ev)
		require.NoError(t, l.Del(4))
	}))
	require.NoError(t, l.Set(4, api.ModeRead, 0, rec))
	require.NoError(t, l.Set(5, api.ModeRead, 0, rec))
	r.Push(
		api.Data{FD: 3, Ev: api.Readable},
		api.Data{FD: 4, Ev: api.Readable},
		api.Data{FD: 5, Ev: api.Readable},
	)

	n, err := l.RunOnce(0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []hit{{3, api.Readable}, {5, api.Readable}}, hits)
	assert.Equal(t, uint64(1), l.Stats().Skipped)
	assert.Equal(t, []uintptr{4}, r.Deleted())
}

func TestDelThenSetInSameBatchDropsStaleEvent(t *testing.T) {
	l, r := newFakeLoop(t)
	var hits []hit
	rec := recorder(&hits)
	require.NoError(t, l.Set(3, api.ModeRead, 0, func(fd uintptr, ev api.Event) {
		rec(fd, ev)
		require.NoError(t, l.Del(4))
		require.NoError(t, l.Set(4, api.ModeRead, 0, func(uintptr, api.Event) {
			t.Fatal("stale event delivered to new registration")
		}))
	}))
	require.NoError(t, l.Set(4, api.ModeRead, 0, rec))
	r.Push(api.Data{FD: 3, Ev: api.Readable}, api.Data{FD: 4, Ev: api.Readable})

	n, err := l.RunOnce(0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, l.Registered(4))
}

func TestSelfDelKeepsOtherSlots(t *testing.T) {
	l, r := newFakeLoop(t)
	calls := 0
	require.NoError(t, l.Set(3, api.ModeRead, 0, func(fd uintptr, _ api.Event) {
		calls++
		require.NoError(t, l.Del(fd))
	}))
	// the same descriptor twice in one batch, as kqueue could report it
	r.Push(api.Data{FD: 3, Ev: api.Readable}, api.Data{FD: 3, Ev: api.Writable})
	_, err := l.RunOnce(0)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestMissingCallbackIsFatal(t *testing.T) {
	l, r := newFakeLoop(t)
	var hits []hit
	require.NoError(t, l.Set(3, api.ModeRead, 0, recorder(&hits)))
	r.Push(api.Data{FD: 3, Ev: api.Readable}, api.Data{FD: 42, Ev: api.Readable})

	n, err := l.RunOnce(0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateDiverged)
	assert.Equal(t, api.ErrCodeInternal, api.CodeOf(err))
	assert.Equal(t, 1, n)

	// Start surfaces the same condition instead of continuing
	r.Push(api.Data{FD: 42, Ev: api.Readable})
	assert.ErrorIs(t, l.Start(), ErrStateDiverged)
}

// pollHook runs after the wrapped reactor produced a batch and before the
// loop sees it.
type pollHook struct {
	*fake.Reactor
	after func()
}

func (r *pollHook) Poll(dst []api.Data, count int, timeout float64) ([]api.Data, error) {
	out, err := r.Reactor.Poll(dst, count, timeout)
	if r.after != nil {
		r.after()
	}
	return out, err
}

func TestDelFromOtherGoroutineBeforeDispatch(t *testing.T) {
	r := &pollHook{Reactor: fake.NewReactor()}
	l, err := New(WithReactor(r))
	require.NoError(t, err)
	defer l.Close()

	var hits []hit
	require.NoError(t, l.Set(4, api.ModeRead, 0, recorder(&hits)))
	require.NoError(t, l.Set(5, api.ModeRead, 0, recorder(&hits)))
	r.after = func() {
		done := make(chan struct{})
		go func() {
			defer close(done)
			assert.NoError(t, l.Del(4))
		}()
		<-done
	}
	r.Push(api.Data{FD: 4, Ev: api.Readable}, api.Data{FD: 5, Ev: api.Readable})

	n, err := l.RunOnce(0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []hit{{5, api.Readable}}, hits)
	assert.Equal(t, uint64(1), l.Stats().Skipped)

	// the record only covers the cycle it was made in
	r.after = nil
	r.Push(api.Data{FD: 4, Ev: api.Readable})
	_, err = l.RunOnce(0)
	assert.ErrorIs(t, err, ErrStateDiverged)
}

func TestCallbackPanicPropagates(t *testing.T) {
	l, r := newFakeLoop(t)
	require.NoError(t, l.Set(3, api.ModeRead, 0, func(uintptr, api.Event) { panic("callback") }))
	r.Push(api.Data{FD: 3, Ev: api.Readable})
	assert.PanicsWithValue(t, "callback", func() { _, _ = l.RunOnce(0) })

	// the loop is usable again afterwards
	_, err := l.RunOnce(0)
	assert.NoError(t, err)
}

func TestStopFromOtherGoroutine(t *testing.T) {
	l, r := newFakeLoop(t)
	done := make(chan error, 1)
	go func() { done <- l.Start() }()

	require.Eventually(t, func() bool { return r.Polls() > 0 }, time.Second, time.Millisecond)
	require.NoError(t, l.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	assert.False(t, l.Stats().Running)
}

func TestStopBeforeStart(t *testing.T) {
	l, r := newFakeLoop(t)
	require.NoError(t, l.Stop())
	require.NoError(t, l.Start())
	assert.Equal(t, 0, r.Polls())
}

func TestStartTwice(t *testing.T) {
	l, r := newFakeLoop(t)
	done := make(chan error, 1)
	go func() { done <- l.Start() }()
	require.Eventually(t, func() bool { return r.Polls() > 0 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, l.Start(), ErrRunning)
	_, err := l.RunOnce(0)
	assert.ErrorIs(t, err, ErrRunning)

	require.NoError(t, l.Stop())
	require.NoError(t, <-done)
}

func TestRunCancel(t *testing.T) {
	l, _ := newFakeLoop(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run ignored cancellation")
	}
}

func TestPostRunsOnLoop(t *testing.T) {
	l, _ := newFakeLoop(t)
	done := make(chan error, 1)
	go func() { done <- l.Start() }()

	ran := make(chan struct{})
	require.NoError(t, l.Post(func() {
		close(ran)
		_ = l.Stop()
	}))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("posted task did not run")
	}
	require.NoError(t, <-done)
	assert.Error(t, l.Post(nil))
}

func TestPostedTaskForcesNonBlockingPoll(t *testing.T) {
	l, r := newFakeLoop(t)
	require.NoError(t, l.Post(func() {}))
	_, err := l.RunOnce(-1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, r.Timeouts())
	assert.Equal(t, 0, l.Stats().Pending)
}

func TestTimerBoundsPollTimeout(t *testing.T) {
	mock := clock.NewMock()
	l, r := newFakeLoop(t, WithClock(mock))

	fired := 0
	tm := timer.New(func() { fired++ })
	tm.Timeout(20 * time.Millisecond)
	require.NoError(t, l.AddTimer(tm))

	_, err := l.RunOnce(-1)
	require.NoError(t, err)
	assert.InDelta(t, 0.02, r.Timeouts()[0], 1e-9)
	assert.Equal(t, 0, fired)

	mock.Add(20 * time.Millisecond)
	_, err = l.RunOnce(5)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0.0, r.Timeouts()[1])
	assert.Equal(t, 0, l.Stats().Timers)

	// a user timeout shorter than the timer wins
	tm.Timeout(time.Hour)
	require.NoError(t, l.AddTimer(tm))
	_, err = l.RunOnce(0.001)
	require.NoError(t, err)
	assert.Equal(t, 0.001, r.Timeouts()[2])
}

func TestIntervalSkipsAhead(t *testing.T) {
	mock := clock.NewMock()
	start := mock.Now()
	l, _ := newFakeLoop(t, WithClock(mock))

	fired := 0
	tm := timer.New(func() { fired++ })
	tm.Interval(100 * time.Millisecond)
	require.NoError(t, l.AddTimer(tm))

	mock.Add(250 * time.Millisecond)
	_, err := l.RunOnce(0)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.Equal(t, start.Add(350*time.Millisecond), tm.Alarm())
	assert.Equal(t, 1, l.Stats().Timers)

	l.DelTimer(tm)
	mock.Add(time.Second)
	_, err = l.RunOnce(0)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
}

func TestTimerRearmedFromCallbackWaitsForNextCycle(t *testing.T) {
	mock := clock.NewMock()
	l, _ := newFakeLoop(t, WithClock(mock))

	fired := 0
	tm := timer.New(nil)
	tm.Attach(func() {
		fired++
		tm.Timeout(0)
		require.NoError(t, l.AddTimer(tm))
	})
	tm.Timeout(0)
	require.NoError(t, l.AddTimer(tm))

	_, err := l.RunOnce(0)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	_, err = l.RunOnce(0)
	require.NoError(t, err)
	assert.Equal(t, 2, fired)
}

func TestAddTimerRejectsZeroPeriod(t *testing.T) {
	l, _ := newFakeLoop(t)
	tm := timer.New(nil)
	tm.Interval(0)
	assert.Equal(t, api.ErrCodeInvalidArgument, api.CodeOf(l.AddTimer(tm)))
}

func TestCloseDropsRegistrations(t *testing.T) {
	r := fake.NewReactor()
	l, err := New(WithReactor(r))
	require.NoError(t, err)
	require.NoError(t, l.Set(3, api.ModeRead, 0, func(uintptr, api.Event) {}))
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	assert.Equal(t, 0, l.Stats().Descriptors)
	assert.ErrorIs(t, l.Set(3, api.ModeRead, 0, func(uintptr, api.Event) {}), api.ErrClosed)
	// borrowed reactor stays open
	_, err = r.Poll(nil, 1, 0)
	assert.NoError(t, err)
}

func TestMetricsAndProbes(t *testing.T) {
	m := control.NewMetrics(nil)
	l, r := newFakeLoop(t, WithMetrics(m))
	require.NoError(t, l.Set(3, api.ModeRead, 0, func(uintptr, api.Event) {}))
	r.Push(api.Data{FD: 3, Ev: api.Readable})
	_, err := l.RunOnce(0)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Polls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Descriptors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatched.WithLabelValues("readable")))

	dp := control.NewDebugProbes()
	l.RegisterProbes(dp, "runloop")
	st, ok := dp.DumpState()["runloop"].(Stats)
	require.True(t, ok)
	assert.Equal(t, uint64(1), st.Dispatched)
	assert.Equal(t, 1, st.Descriptors)

	require.NoError(t, l.Close())
	assert.NotContains(t, dp.DumpState(), "runloop")
}

func TestNewRejectsBadBatch(t *testing.T) {
	_, err := New(WithReactor(fake.NewReactor()), WithBatchSize(0))
	assert.Equal(t, api.ErrCodeInvalidArgument, api.CodeOf(err))
}

func TestBatchSizeBoundsPoll(t *testing.T) {
	l, r := newFakeLoop(t, WithBatchSize(2))
	var hits []hit
	for _, fd := range []uintptr{3, 4, 5} {
		require.NoError(t, l.Set(fd, api.ModeRead, 0, recorder(&hits)))
	}
	r.Push(api.Data{FD: 3}, api.Data{FD: 4}, api.Data{FD: 5})
	n, err := l.RunOnce(0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = l.RunOnce(0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIdleTimeoutEndsStart(t *testing.T) {
	l, r := newFakeLoop(t, WithIdleTimeout(50*time.Millisecond))
	start := time.Now()
	require.NoError(t, l.Start())
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Positive(t, r.Polls())
}

func TestIdleTimeoutExtendedByWork(t *testing.T) {
	l, r := newFakeLoop(t, WithIdleTimeout(150*time.Millisecond))
	var hits []hit
	require.NoError(t, l.Set(3, api.ModeRead, 0, recorder(&hits)))

	go func() {
		for i := 0; i < 4; i++ {
			time.Sleep(30 * time.Millisecond)
			r.Push(api.Data{FD: 3, Ev: api.Readable})
		}
	}()
	require.NoError(t, l.Start())
	assert.Len(t, hits, 4)
}

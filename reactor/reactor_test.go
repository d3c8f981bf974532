//go:build linux

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-sockets/api"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func forEachBackend(t *testing.T, fn func(t *testing.T, r api.Reactor)) {
	for _, b := range Backends() {
		t.Run(string(b), func(t *testing.T) {
			r, err := New(WithBackend(b))
			require.NoError(t, err)
			t.Cleanup(func() { _ = r.Close() })
			fn(t, r)
		})
	}
}

func TestBackendsDefaultFirst(t *testing.T) {
	backends := Backends()
	require.Equal(t, []Backend{BackendEpoll, BackendPoll}, backends)
	require.Equal(t, BackendEpoll, Default())
}

func TestUnknownBackend(t *testing.T) {
	_, err := New(WithBackend(BackendKqueue))
	require.ErrorIs(t, err, api.ErrNotSupported)
	require.Equal(t, api.ErrCodeNotSupported, api.CodeOf(err))
}

func TestMsec(t *testing.T) {
	require.Equal(t, -1, msec(-1))
	require.Equal(t, -1, msec(-0.5))
	require.Equal(t, 0, msec(0))
	require.Equal(t, 1, msec(0.0001))
	require.Equal(t, 1150, msec(1.15))
}

func TestReadable(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r api.Reactor) {
		a, b := socketPair(t)
		require.NoError(t, r.Set(uintptr(a), api.ModeRead, 0))

		events, err := r.Poll(nil, 8, 0)
		require.NoError(t, err)
		require.Empty(t, events)

		_, err = unix.Write(b, []byte("hello"))
		require.NoError(t, err)

		events, err = r.Poll(events, 8, 1)
		require.NoError(t, err)
		require.Equal(t, []api.Data{{FD: uintptr(a), Ev: api.Readable}}, events)
	})
}

func TestLevelTriggeredReReport(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r api.Reactor) {
		a, b := socketPair(t)
		require.NoError(t, r.Set(uintptr(a), api.ModeRead, 0))

		_, err := unix.Write(b, []byte{})
		require.NoError(t, err)
		events, err := r.Poll(nil, 8, 0)
		require.NoError(t, err)
		require.Empty(t, events, "a zero-length write must not wake the reader")

		_, err = unix.Write(b, []byte("12345"))
		require.NoError(t, err)
		events, err = r.Poll(events, 8, 1)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.True(t, events[0].Ev.IsReadable())

		// not drained: reported again
		events, err = r.Poll(events, 8, 0)
		require.NoError(t, err)
		require.Len(t, events, 1)

		buf := make([]byte, 16)
		n, err := unix.Read(a, buf)
		require.NoError(t, err)
		require.Equal(t, 5, n)

		events, err = r.Poll(events, 8, 0)
		require.NoError(t, err)
		require.Empty(t, events)
	})
}

func TestSetReplacesInterest(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r api.Reactor) {
		a, _ := socketPair(t)
		require.NoError(t, r.Set(uintptr(a), api.ModeRW, 0))

		events, err := r.Poll(nil, 8, 1)
		require.NoError(t, err)
		require.Equal(t, []api.Data{{FD: uintptr(a), Ev: api.Writable}}, events)

		require.NoError(t, r.Set(uintptr(a), api.ModeRead, 0))
		events, err = r.Poll(events, 8, 0)
		require.NoError(t, err)
		require.Empty(t, events)
	})
}

func TestPeerClosedKeepsReadable(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r api.Reactor) {
		a, b := socketPair(t)
		require.NoError(t, r.Set(uintptr(a), api.ModeRW, 0))

		_, err := unix.Write(b, []byte("last words"))
		require.NoError(t, err)
		require.NoError(t, unix.Close(b))

		events, err := r.Poll(nil, 8, 1)
		require.NoError(t, err)
		require.Len(t, events, 1)
		ev := events[0].Ev
		require.True(t, ev.IsClosed(), "got %s", ev)
		require.True(t, ev.IsReadable(), "got %s", ev)
		require.False(t, ev.IsWritable(), "got %s", ev)
	})
}

func TestDelIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r api.Reactor) {
		a, b := socketPair(t)
		require.NoError(t, r.Del(uintptr(a)), "never added")
		require.NoError(t, r.Set(uintptr(a), api.ModeRead, 0))
		require.NoError(t, r.Del(uintptr(a)))
		require.NoError(t, r.Del(uintptr(a)), "already removed")

		_, err := unix.Write(b, []byte("x"))
		require.NoError(t, err)
		events, err := r.Poll(nil, 8, 0)
		require.NoError(t, err)
		require.Empty(t, events)
	})
}

func TestOnceDisablesUntilRearmed(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r api.Reactor) {
		a, b := socketPair(t)
		require.NoError(t, r.Set(uintptr(a), api.ModeRead, api.FlagOnce))
		_, err := unix.Write(b, []byte("x"))
		require.NoError(t, err)

		events, err := r.Poll(nil, 8, 1)
		require.NoError(t, err)
		require.Len(t, events, 1)

		events, err = r.Poll(events, 8, 0)
		require.NoError(t, err)
		require.Empty(t, events)

		require.NoError(t, r.Set(uintptr(a), api.ModeRead, api.FlagOnce))
		events, err = r.Poll(events, 8, 1)
		require.NoError(t, err)
		require.Len(t, events, 1)
	})
}

func TestPollHonoursCount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r api.Reactor) {
		for i := 0; i < 3; i++ {
			a, b := socketPair(t)
			require.NoError(t, r.Set(uintptr(a), api.ModeRead, 0))
			_, err := unix.Write(b, []byte("x"))
			require.NoError(t, err)
		}

		events := make([]api.Data, 0, 1)
		events, err := r.Poll(events, 2, 1)
		require.NoError(t, err)
		require.Len(t, events, 2)

		events, err = r.Poll(events, 0, 1)
		require.NoError(t, err)
		require.Empty(t, events)
	})
}

func TestStopWakesBlockedPoll(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r api.Reactor) {
		done := make(chan []api.Data, 1)
		go func() {
			events, err := r.Poll(nil, 8, -1)
			assert.NoError(t, err)
			done <- events
		}()

		time.Sleep(50 * time.Millisecond)
		require.NoError(t, r.Stop())

		select {
		case events := <-done:
			require.Empty(t, events)
		case <-time.After(5 * time.Second):
			t.Fatal("Poll did not return after Stop")
		}
	})
}

func TestStopBeforePollIsNotLost(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r api.Reactor) {
		require.NoError(t, r.Stop())
		require.NoError(t, r.Stop())

		start := time.Now()
		events, err := r.Poll(nil, 8, 5)
		require.NoError(t, err)
		require.Empty(t, events)
		require.Less(t, time.Since(start), 2*time.Second)

		// both stops were coalesced into the wake above
		events, err = r.Poll(events, 8, 0)
		require.NoError(t, err)
		require.Empty(t, events)
	})
}

func TestPollTimeout(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r api.Reactor) {
		start := time.Now()
		events, err := r.Poll(nil, 8, 0.05)
		require.NoError(t, err)
		require.Empty(t, events)
		require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	})
}

func TestClosedReactor(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r api.Reactor) {
		require.NoError(t, r.Close())
		require.NoError(t, r.Close())
		_, err := r.Poll(nil, 8, 0)
		require.ErrorIs(t, err, api.ErrClosed)
		require.ErrorIs(t, r.Set(0, api.ModeRead, 0), api.ErrClosed)
		require.ErrorIs(t, r.Stop(), api.ErrClosed)
	})
}

func TestEpollEdgeTriggered(t *testing.T) {
	r, err := New(WithBackend(BackendEpoll))
	require.NoError(t, err)
	defer r.Close()

	a, b := socketPair(t)
	require.NoError(t, r.Set(uintptr(a), api.ModeRead, api.FlagEdge))
	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)

	events, err := r.Poll(nil, 8, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)

	events, err = r.Poll(events, 8, 0)
	require.NoError(t, err)
	require.Empty(t, events, "edge-triggered registration must not re-report")
}

func TestSetFailsOnBadDescriptor(t *testing.T) {
	r, err := New(WithBackend(BackendEpoll))
	require.NoError(t, err)
	defer r.Close()

	err = r.Set(uintptr(1<<20), api.ModeRead, 0)
	require.ErrorIs(t, err, unix.EBADF)
	require.Equal(t, api.ErrCodeSystem, api.CodeOf(err))
}

func TestSetDuringBlockedPoll(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r api.Reactor) {
		a, b := socketPair(t)
		done := make(chan []api.Data, 1)
		go func() {
			events, err := r.Poll(nil, 8, -1)
			assert.NoError(t, err)
			done <- events
		}()

		time.Sleep(50 * time.Millisecond)
		require.NoError(t, r.Set(uintptr(a), api.ModeRead, 0))
		_, err := unix.Write(b, []byte("x"))
		require.NoError(t, err)

		select {
		case events := <-done:
			require.Equal(t, []api.Data{{FD: uintptr(a), Ev: api.Readable}}, events)
		case <-time.After(2 * time.Second):
			_ = r.Stop()
			t.Fatal("registration made during Poll was not picked up")
		}
	})
}

func TestDelDuringBlockedPollThenStop(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r api.Reactor) {
		a, b := socketPair(t)
		require.NoError(t, r.Set(uintptr(a), api.ModeRead, 0))
		done := make(chan []api.Data, 1)
		go func() {
			events, err := r.Poll(nil, 8, -1)
			assert.NoError(t, err)
			done <- events
		}()

		time.Sleep(50 * time.Millisecond)
		require.NoError(t, r.Del(uintptr(a)))
		_, err := unix.Write(b, []byte("x"))
		require.NoError(t, err)
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, r.Stop())

		select {
		case events := <-done:
			require.Empty(t, events)
		case <-time.After(5 * time.Second):
			t.Fatal("Poll did not return after Stop")
		}
	})
}

func TestPollRotatesReadyDescriptors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r api.Reactor) {
		ready := make(map[uintptr]bool)
		for i := 0; i < 3; i++ {
			a, b := socketPair(t)
			require.NoError(t, r.Set(uintptr(a), api.ModeRead, 0))
			_, err := unix.Write(b, []byte("x"))
			require.NoError(t, err)
			ready[uintptr(a)] = true
		}

		seen := make(map[uintptr]int)
		for i := 0; i < 6; i++ {
			events, err := r.Poll(nil, 1, 0)
			require.NoError(t, err)
			require.Len(t, events, 1)
			seen[events[0].FD]++
		}
		require.Len(t, seen, 3)
		for fd := range ready {
			assert.Positive(t, seen[fd], "fd %d never reported", fd)
		}
	})
}

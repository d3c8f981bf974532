//go:build windows

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"

	"github.com/momentics/hioload-sockets/api"
)

func TestWSAPollFailedConstructionReleasesWinsock(t *testing.T) {
	origSocket, origCleanup := wsaSocket, wsaCleanup
	t.Cleanup(func() { wsaSocket, wsaCleanup = origSocket, origCleanup })

	cleanups := 0
	wsaCleanup = func() error {
		cleanups++
		return origCleanup()
	}
	wsaSocket = func(int, int, int) (windows.Handle, error) {
		return windows.InvalidHandle, windows.ERROR_TOO_MANY_OPEN_FILES
	}

	_, err := newWSAPoll()
	require.Error(t, err)
	assert.Equal(t, api.ErrCodeSystem, api.CodeOf(err))
	assert.Equal(t, 1, cleanups)

	wsaSocket = origSocket
	r, err := newWSAPoll()
	require.NoError(t, err)
	assert.Equal(t, 1, cleanups)
	require.NoError(t, r.Close())
	assert.Equal(t, 2, cleanups)
}

func TestWSAPollSetDuringBlockedPoll(t *testing.T) {
	r, err := newWSAPoll()
	require.NoError(t, err)
	defer r.Close()

	l, err := windows.Socket(windows.AF_INET, windows.SOCK_DGRAM, windows.IPPROTO_UDP)
	require.NoError(t, err)
	defer windows.Closesocket(l)
	require.NoError(t, windows.Bind(l, &windows.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}))
	to, err := windows.Getsockname(l)
	require.NoError(t, err)

	done := make(chan []api.Data, 1)
	go func() {
		events, err := r.Poll(nil, 8, 5)
		assert.NoError(t, err)
		done <- events
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, r.Set(uintptr(l), api.ModeRead, 0))
	require.NoError(t, windows.Sendto(l, []byte("x"), 0, to))
	events := <-done
	require.Equal(t, []api.Data{{FD: uintptr(l), Ev: api.Readable}}, events)
}

//go:build unix

// File: socket/socket_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"errors"
	"net/netip"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/internal/handle"
)

// Shutdown directions.
const (
	ShutRead  = unix.SHUT_RD
	ShutWrite = unix.SHUT_WR
	ShutBoth  = unix.SHUT_RDWR
)

// Socket owns one non-blocking socket descriptor.
type Socket struct {
	h      *handle.Handle
	family int
}

// Open creates a socket, e.g. Open(unix.AF_INET, unix.SOCK_DGRAM).
func Open(fam, typ int) (*Socket, error) {
	fd, err := unix.Socket(fam, typ, 0)
	if err != nil {
		return nil, api.SystemError("socket", err).WithContext("family", fam).WithContext("type", typ)
	}
	return adopt(fd, fam)
}

func adopt(fd, fam int) (*Socket, error) {
	s := &Socket{h: handle.FD(fd), family: fam}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = s.h.Close()
		return nil, api.SystemError("set nonblock", err)
	}
	return s, nil
}

// Listen binds a TCP socket to addr with SO_REUSEADDR and starts listening.
func Listen(addr netip.AddrPort, backlog int) (*Socket, error) {
	s, err := Open(family(addr), unix.SOCK_STREAM)
	if err != nil {
		return nil, err
	}
	if err := s.setup(addr, func() error {
		if err := unix.SetsockoptInt(s.fd(), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return api.SystemError("setsockopt SO_REUSEADDR", err)
		}
		if err := s.Bind(addr); err != nil {
			return err
		}
		if err := unix.Listen(s.fd(), backlog); err != nil {
			return api.SystemError("listen", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// ListenUDP binds a datagram socket to addr.
func ListenUDP(addr netip.AddrPort) (*Socket, error) {
	s, err := Open(family(addr), unix.SOCK_DGRAM)
	if err != nil {
		return nil, err
	}
	if err := s.setup(addr, func() error { return s.Bind(addr) }); err != nil {
		return nil, err
	}
	return s, nil
}

// Dial starts a TCP connection. The connect completes in the background:
// wait for Writable, then check ConnectError.
func Dial(addr netip.AddrPort) (*Socket, error) {
	s, err := Open(family(addr), unix.SOCK_STREAM)
	if err != nil {
		return nil, err
	}
	if err := s.setup(addr, func() error { return s.Connect(addr) }); err != nil {
		return nil, err
	}
	return s, nil
}

// DialUDP creates a datagram socket connected to addr.
func DialUDP(addr netip.AddrPort) (*Socket, error) {
	s, err := Open(family(addr), unix.SOCK_DGRAM)
	if err != nil {
		return nil, err
	}
	if err := s.setup(addr, func() error { return s.Connect(addr) }); err != nil {
		return nil, err
	}
	return s, nil
}

// Pair returns two connected unix stream sockets.
func Pair() (*Socket, *Socket, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, api.SystemError("socketpair", err)
	}
	a, err := adopt(fds[0], unix.AF_UNIX)
	if err != nil {
		_ = unix.Close(fds[1])
		return nil, nil, err
	}
	b, err := adopt(fds[1], unix.AF_UNIX)
	if err != nil {
		_ = a.Close()
		return nil, nil, err
	}
	return a, b, nil
}

func (s *Socket) setup(addr netip.AddrPort, fn func() error) error {
	if err := fn(); err != nil {
		_ = s.Close()
		if e := new(api.Error); errors.As(err, &e) {
			e.WithContext("addr", addr.String())
		}
		return err
	}
	return nil
}

func (s *Socket) fd() int { return s.h.Int() }

// FD returns the descriptor for reactor registration.
func (s *Socket) FD() uintptr { return s.h.Value() }

// Bind assigns the local address.
func (s *Socket) Bind(addr netip.AddrPort) error {
	sa, err := toSockaddr(addr, s.family)
	if err != nil {
		return err
	}
	if err := unix.Bind(s.fd(), sa); err != nil {
		return api.SystemError("bind", err)
	}
	return nil
}

// Accept takes one pending connection. It fails with a temporary error when
// none is queued.
func (s *Socket) Accept() (*Socket, netip.AddrPort, error) {
	fd, sa, err := unix.Accept(s.fd())
	if err != nil {
		return nil, netip.AddrPort{}, api.SystemError("accept", err)
	}
	c, err := adopt(fd, s.family)
	if err != nil {
		return nil, netip.AddrPort{}, err
	}
	return c, fromSockaddr(sa), nil
}

// Connect starts connecting to addr. An in-progress connect is not an error.
func (s *Socket) Connect(addr netip.AddrPort) error {
	sa, err := toSockaddr(addr, s.family)
	if err != nil {
		return err
	}
	if err := unix.Connect(s.fd(), sa); err != nil && !errors.Is(err, unix.EINPROGRESS) {
		return api.SystemError("connect", err)
	}
	return nil
}

// ConnectError returns the outcome of a background connect.
func (s *Socket) ConnectError() error {
	v, err := unix.GetsockoptInt(s.fd(), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return api.SystemError("getsockopt SO_ERROR", err)
	}
	if v != 0 {
		return api.SystemError("connect", unix.Errno(v))
	}
	return nil
}

// Send writes to a connected socket.
func (s *Socket) Send(b []byte) (int, error) {
	n, err := unix.Write(s.fd(), b)
	if err != nil {
		return 0, api.SystemError("send", err)
	}
	return n, nil
}

// Recv reads from a connected socket. Zero bytes with a nil error on a
// stream socket means the peer closed.
func (s *Socket) Recv(b []byte) (int, error) {
	n, err := unix.Read(s.fd(), b)
	if err != nil {
		return 0, api.SystemError("recv", err)
	}
	return n, nil
}

// SendTo sends one datagram to addr.
func (s *Socket) SendTo(b []byte, addr netip.AddrPort) error {
	sa, err := toSockaddr(addr, s.family)
	if err != nil {
		return err
	}
	if err := unix.Sendto(s.fd(), b, 0, sa); err != nil {
		return api.SystemError("sendto", err).WithContext("addr", addr.String())
	}
	return nil
}

// RecvFrom receives one datagram.
func (s *Socket) RecvFrom(b []byte) (int, netip.AddrPort, error) {
	n, sa, err := unix.Recvfrom(s.fd(), b, 0)
	if err != nil {
		return 0, netip.AddrPort{}, api.SystemError("recvfrom", err)
	}
	return n, fromSockaddr(sa), nil
}

// LocalAddr is the bound address.
func (s *Socket) LocalAddr() (netip.AddrPort, error) {
	sa, err := unix.Getsockname(s.fd())
	if err != nil {
		return netip.AddrPort{}, api.SystemError("getsockname", err)
	}
	return fromSockaddr(sa), nil
}

// PeerAddr is the connected peer's address.
func (s *Socket) PeerAddr() (netip.AddrPort, error) {
	sa, err := unix.Getpeername(s.fd())
	if err != nil {
		return netip.AddrPort{}, api.SystemError("getpeername", err)
	}
	return fromSockaddr(sa), nil
}

// Shutdown disables one or both directions.
func (s *Socket) Shutdown(how int) error {
	if err := unix.Shutdown(s.fd(), how); err != nil {
		return api.SystemError("shutdown", err)
	}
	return nil
}

// Close releases the descriptor. Repeated calls return the first result.
func (s *Socket) Close() error {
	if err := s.h.Close(); err != nil {
		return api.SystemError("close", err)
	}
	return nil
}

// IsTemporary reports whether err only means "try again when ready".
func IsTemporary(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) ||
		errors.Is(err, unix.EINTR) || errors.Is(err, unix.EINPROGRESS)
}

//go:build unix

// File: socket/addr_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"net/netip"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-sockets/api"
)

func family(addr netip.AddrPort) int {
	if addr.Addr().Unmap().Is4() {
		return unix.AF_INET
	}
	return unix.AF_INET6
}

func toSockaddr(addr netip.AddrPort, fam int) (unix.Sockaddr, error) {
	ip := addr.Addr()
	switch {
	case !ip.IsValid():
		return nil, api.NewError(api.ErrCodeInvalidArgument, "invalid address").WithContext("addr", addr.String())
	case fam == unix.AF_INET:
		ip = ip.Unmap()
		if !ip.Is4() {
			return nil, api.NewError(api.ErrCodeInvalidArgument, "IPv6 address on IPv4 socket").WithContext("addr", addr.String())
		}
		return &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.As4()}, nil
	default:
		return &unix.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}, nil
	}
}

func fromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr), uint16(sa.Port))
	}
	return netip.AddrPort{}
}

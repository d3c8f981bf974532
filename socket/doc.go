// Package socket
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thin BSD socket layer for the runloop: non-blocking, close-on-exec
// descriptors addressed with netip.AddrPort. Every I/O call returns at once;
// IsTemporary tells a would-block result apart from a real failure so the
// caller can wait for readiness instead.
package socket

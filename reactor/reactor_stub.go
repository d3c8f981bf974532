//go:build !linux && !windows && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub for unsupported platforms: New always fails with ErrNotSupported.

package reactor

const defaultBackend Backend = ""

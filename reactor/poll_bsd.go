//go:build darwin || freebsd || netbsd || openbsd || dragonfly

// File: reactor/poll_bsd.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

// pollRDHUP is not available: a peer half-close shows up as Readable with a
// zero-length read.
const pollRDHUP = 0

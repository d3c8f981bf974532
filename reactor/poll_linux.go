//go:build linux

// File: reactor/poll_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "golang.org/x/sys/unix"

// pollRDHUP reports a peer half-close as Closed, matching the epoll backend.
const pollRDHUP = unix.POLLRDHUP

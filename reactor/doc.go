// File: reactor/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package reactor provides readiness-based event reactors behind the
// portable api.Reactor contract.
//
// Backends:
//   - epoll on Linux (default there)
//   - kqueue on Darwin and the BSDs (default there)
//   - poll on every supported unix, selectable with WithBackend(BackendPoll)
//   - WSAPoll on Windows
//
// poll and WSAPoll are level-triggered only: a descriptor that stays ready is
// reported again on every Poll until it is drained or removed. FlagEdge is a
// no-op for them.
//
// Every reactor owns a private wakeup channel (eventfd, self-pipe or a
// loopback datagram socket). Stop signals it from any goroutine; the channel
// never shows up in the events returned to the caller.
package reactor

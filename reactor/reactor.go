// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Backend registry and factory.

package reactor

import (
	"math"
	"sort"
	"sync"

	"github.com/momentics/hioload-sockets/api"
)

// Backend names an OS multiplexing primitive.
type Backend string

const (
	BackendEpoll   Backend = "epoll"
	BackendKqueue  Backend = "kqueue"
	BackendPoll    Backend = "poll"
	BackendWSAPoll Backend = "wsapoll"
)

// Constructor builds a reactor for one backend.
type Constructor func() (api.Reactor, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[Backend]Constructor)
)

// register is called from the build-tagged backend files.
func register(b Backend, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[b] = ctor
}

type options struct {
	backend Backend
}

// Option customizes New.
type Option func(*options)

// WithBackend selects a backend instead of the platform default.
func WithBackend(b Backend) Option {
	return func(o *options) {
		if b != "" {
			o.backend = b
		}
	}
}

// Default returns the backend New uses without options.
func Default() Backend { return defaultBackend }

// Backends lists the backends compiled into this binary, default first.
func Backends() []Backend {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Backend, 0, len(registry))
	for b := range registry {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i] == defaultBackend || out[j] == defaultBackend {
			return out[i] == defaultBackend
		}
		return out[i] < out[j]
	})
	return out
}

// New creates a reactor. Failing to create the OS primitive or the wakeup
// channel is returned as an *api.Error with ErrCodeSystem.
func New(opts ...Option) (api.Reactor, error) {
	o := options{backend: defaultBackend}
	for _, opt := range opts {
		opt(&o)
	}
	registryMu.RLock()
	ctor, ok := registry[o.backend]
	registryMu.RUnlock()
	if !ok {
		return nil, api.NewError(api.ErrCodeNotSupported, "reactor: backend not available").
			WithContext("backend", string(o.backend)).
			Wrap(api.ErrNotSupported)
	}
	return ctor()
}

// msec converts the public timeout in seconds to the millisecond argument
// of poll-style syscalls, rounding up.
func msec(timeout float64) int {
	if timeout < 0 {
		return -1
	}
	ms := math.Ceil(timeout * 1000)
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}

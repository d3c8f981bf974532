// File: runloop/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package runloop

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/control"
	"github.com/momentics/hioload-sockets/reactor"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of events taken per poll cycle.
const DefaultBatchSize = 128

type options struct {
	reactor   api.Reactor
	backend   reactor.Backend
	batchSize int
	clock     clock.Clock
	log       *zap.Logger
	metrics   *control.Metrics
	cpu       int
	idle      time.Duration
}

// Option configures a Loop.
type Option func(*options)

// WithReactor runs the loop on r. The caller keeps ownership: Close does not
// close r.
func WithReactor(r api.Reactor) Option {
	return func(o *options) { o.reactor = r }
}

// WithBackend selects the reactor backend the loop creates for itself.
func WithBackend(b reactor.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithBatchSize bounds the events dispatched per poll cycle.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithClock replaces the time source used for timers.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics sets the collectors updated by the loop.
func WithMetrics(m *control.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithCPU pins the thread running Start to the logical CPU cpu. A negative
// value leaves scheduling to the runtime.
func WithCPU(cpu int) Option {
	return func(o *options) { o.cpu = cpu }
}

// WithIdleTimeout makes Start return after d without dispatched events,
// fired timers or posted tasks. Zero waits forever.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) { o.idle = d }
}

// WithConfig applies the runloop section of a configuration document.
func WithConfig(cfg control.RunloopConfig) Option {
	return func(o *options) {
		if cfg.BatchSize > 0 {
			o.batchSize = cfg.BatchSize
		}
		if cfg.Backend != "" {
			o.backend = reactor.Backend(cfg.Backend)
		}
		if cfg.CPU != nil {
			o.cpu = *cfg.CPU
		}
	}
}

//go:build unix

// File: server/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/momentics/hioload-sockets/control"
	"go.uber.org/zap"
)

// Option customizes a DNS responder.
type Option func(*DNS)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *DNS) { s.log = l }
}

// WithMetrics sets the collectors for answered queries.
func WithMetrics(m *control.Metrics) Option {
	return func(s *DNS) { s.metrics = m }
}

// WithZone sets the initial record table.
func WithZone(z *Zone) Option {
	return func(s *DNS) {
		if z != nil {
			s.zone.Store(z)
		}
	}
}

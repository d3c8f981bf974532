// control/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Prometheus collectors for the runloop and the DNS responder.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hioload"

// Metrics groups every collector exported by the library.
type Metrics struct {
	Polls       prometheus.Counter
	EmptyPolls  prometheus.Counter
	Dispatched  *prometheus.CounterVec
	Skipped     prometheus.Counter
	TimersFired prometheus.Counter
	Descriptors prometheus.Gauge
	DNSQueries  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg yields working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Polls: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runloop",
			Name:      "polls_total",
			Help:      "Reactor poll cycles.",
		}),
		EmptyPolls: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runloop",
			Name:      "empty_polls_total",
			Help:      "Poll cycles that returned no event (timeout, interruption or wakeup).",
		}),
		Dispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runloop",
			Name:      "events_dispatched_total",
			Help:      "Events delivered to callbacks, by kind.",
		}, []string{"event"}),
		Skipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runloop",
			Name:      "events_skipped_total",
			Help:      "Polled events dropped because the descriptor was removed earlier in the batch.",
		}),
		TimersFired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runloop",
			Name:      "timers_fired_total",
			Help:      "Timer callbacks invoked.",
		}),
		Descriptors: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runloop",
			Name:      "descriptors",
			Help:      "Descriptors currently registered.",
		}),
		DNSQueries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dns",
			Name:      "queries_total",
			Help:      "DNS queries answered, by response code.",
		}, []string{"rcode"}),
	}
}

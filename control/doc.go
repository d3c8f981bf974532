// Package control
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Configuration, logging, metrics and debug introspection for hioload-sockets.
//
// Provides:
//   - YAML configuration with validation and a hot-reloadable ConfigStore
//   - zap logger construction from configuration
//   - Prometheus metrics for the runloop and the DNS responder
//   - Debug probes exporting component state snapshots
package control

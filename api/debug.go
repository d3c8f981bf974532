// File: api/debug.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Debug exposes runtime introspection. Components publish snapshots of
// their state through named probes.
type Debug interface {
	// DumpState evaluates every probe.
	DumpState() map[string]any

	// RegisterProbe installs or replaces a named probe.
	RegisterProbe(name string, fn func() any)

	// RemoveProbe drops a probe; unknown names are ignored.
	RemoveProbe(name string)
}

// control/debug.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Probe registry behind the /debug/state endpoint.

package control

import (
	"slices"
	"sync"

	"github.com/momentics/hioload-sockets/api"
)

// DebugProbes is a named set of state snapshots. Probes are evaluated
// outside the registry lock, so a probe may register or remove probes.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

var _ api.Debug = (*DebugProbes)(nil)

// NewDebugProbes creates a registry with the platform probes installed.
func NewDebugProbes() *DebugProbes {
	dp := &DebugProbes{probes: make(map[string]func() any)}
	RegisterPlatformProbes(dp)
	return dp
}

func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	dp.probes[name] = fn
	dp.mu.Unlock()
}

func (dp *DebugProbes) RemoveProbe(name string) {
	dp.mu.Lock()
	delete(dp.probes, name)
	dp.mu.Unlock()
}

// Names lists the registered probes in lexical order.
func (dp *DebugProbes) Names() []string {
	dp.mu.RLock()
	names := make([]string, 0, len(dp.probes))
	for name := range dp.probes {
		names = append(names, name)
	}
	dp.mu.RUnlock()
	slices.Sort(names)
	return names
}

func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	snapshot := make(map[string]func() any, len(dp.probes))
	for name, fn := range dp.probes {
		snapshot[name] = fn
	}
	dp.mu.RUnlock()

	out := make(map[string]any, len(snapshot))
	for name, fn := range snapshot {
		out[name] = fn()
	}
	return out
}

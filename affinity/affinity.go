// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thread-to-CPU pinning for dispatch goroutines. Platform-specific
// implementations live in files guarded by build tags.

package affinity

import "github.com/momentics/hioload-sockets/api"

// Pin binds the calling OS thread to the logical CPU cpu. The caller must
// hold runtime.LockOSThread for the pinning to stick to its goroutine.
func Pin(cpu int) error {
	if cpu < 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "affinity: negative cpu").
			WithContext("cpu", cpu)
	}
	if err := pin(cpu); err != nil {
		return api.SystemError("affinity: pin thread", err).WithContext("cpu", cpu)
	}
	return nil
}

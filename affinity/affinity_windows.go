//go:build windows

// File: affinity/affinity_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package affinity

import "golang.org/x/sys/windows"

var procSetThreadAffinityMask = windows.NewLazySystemDLL("kernel32.dll").NewProc("SetThreadAffinityMask")

func pin(cpu int) error {
	if cpu >= 64 {
		return windows.ERROR_INVALID_PARAMETER
	}
	ret, _, err := procSetThreadAffinityMask.Call(uintptr(windows.CurrentThread()), uintptr(1)<<cpu)
	if ret == 0 {
		return err
	}
	return nil
}

//go:build unix

// File: cmd/hioload-sockets/platform_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import "github.com/spf13/cobra"

func addPlatformCommands(root *cobra.Command) {
	root.AddCommand(newServeCmd(), newQueryCmd())
}

//go:build !unix

// File: cmd/hioload-sockets/platform_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import "github.com/spf13/cobra"

// The socket layer is unix only; serve and query are not built here.
func addPlatformCommands(*cobra.Command) {}

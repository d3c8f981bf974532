// File: cmd/hioload-sockets/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Command hioload-sockets runs the DNS responder on the runloop, sends
// one-off queries with the same stack and lists the reactor backends.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hioload-sockets",
		Short:         "Reactor-driven sockets toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newBackendsCmd())
	addPlatformCommands(root)
	return root
}

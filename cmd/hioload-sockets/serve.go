//go:build unix

// File: cmd/hioload-sockets/serve.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the DNS responder until SIGINT or SIGTERM; SIGHUP reloads records",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			app := newApp(path)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "YAML configuration file")
	return cmd
}

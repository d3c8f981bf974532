//go:build unix

// File: cmd/hioload-sockets/query.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/spf13/cobra"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/dns"
	"github.com/momentics/hioload-sockets/reactor"
	"github.com/momentics/hioload-sockets/runloop"
	"github.com/momentics/hioload-sockets/socket"
	"github.com/momentics/hioload-sockets/timer"
)

var errQueryTimeout = errors.New("query timed out")

type queryOptions struct {
	server  string
	timeout time.Duration
	backend string
}

func newQueryCmd() *cobra.Command {
	var o queryOptions
	cmd := &cobra.Command{
		Use:   "query NAME [TYPE]",
		Short: "Send one DNS query over UDP and print the response",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qtype := "A"
			if len(args) == 2 {
				qtype = args[1]
			}
			return runQuery(cmd.OutOrStdout(), o, args[0], qtype)
		},
	}
	cmd.Flags().StringVarP(&o.server, "server", "s", "127.0.0.1:5353", "server address")
	cmd.Flags().DurationVarP(&o.timeout, "timeout", "t", 2*time.Second, "response timeout")
	cmd.Flags().StringVar(&o.backend, "backend", "", "reactor backend")
	return cmd
}

func parseQType(s string) (dns.Type, error) {
	if t, ok := mdns.StringToType[strings.ToUpper(s)]; ok {
		return dns.Type(t), nil
	}
	if t, ok := dns.ParseType(strings.ToUpper(s)); ok {
		return t, nil
	}
	return 0, fmt.Errorf("unknown record type %q", s)
}

func runQuery(out io.Writer, o queryOptions, name, qtype string) error {
	t, err := parseQType(qtype)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddrPort(o.server)
	if err != nil {
		return err
	}

	q := dns.NewQuery(name, t)
	wire, err := q.Pack(true)
	if err != nil {
		return err
	}

	loop, err := runloop.New(runloop.WithBackend(reactor.Backend(o.backend)))
	if err != nil {
		return err
	}
	defer loop.Close()

	sock, err := socket.DialUDP(addr)
	if err != nil {
		return err
	}
	defer sock.Close()

	var (
		resp   []byte
		result error
	)
	buf := make([]byte, 65535)
	err = loop.Set(sock.FD(), api.ModeRead, 0, func(uintptr, api.Event) {
		for {
			n, err := sock.Recv(buf)
			if err != nil {
				if !socket.IsTemporary(err) {
					result = err
					_ = loop.Stop()
				}
				return
			}
			var m dns.Message
			if m.Unpack(buf[:n]) != nil || m.Header.ID != q.Header.ID || !m.Header.Response() {
				continue
			}
			resp = append([]byte(nil), buf[:n]...)
			_ = loop.Stop()
			return
		}
	})
	if err != nil {
		return err
	}

	deadline := timer.New(func() {
		result = fmt.Errorf("%w after %s", errQueryTimeout, o.timeout)
		_ = loop.Stop()
	})
	deadline.Timeout(o.timeout)
	if err := loop.AddTimer(deadline); err != nil {
		return err
	}

	if _, err := sock.Send(wire); err != nil {
		return err
	}
	start := time.Now()
	if err := loop.Start(); err != nil {
		return err
	}
	if result != nil {
		return result
	}

	var m mdns.Msg
	if err := m.Unpack(resp); err != nil {
		return err
	}
	fmt.Fprintln(out, m.String())
	fmt.Fprintf(out, ";; Query time: %v\n;; SERVER: %s\n", time.Since(start).Round(time.Microsecond), addr)
	return nil
}

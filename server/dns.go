//go:build unix

// File: server/dns.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"net/netip"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/control"
	"github.com/momentics/hioload-sockets/dns"
	"github.com/momentics/hioload-sockets/runloop"
	"github.com/momentics/hioload-sockets/socket"
)

const (
	// classic UDP payload limit without EDNS0
	udpPlainSize = 512
	// payload size advertised in our OPT record
	udpEDNSSize = 1232
	maxDatagram = 65535
)

// DNS answers queries arriving on one UDP socket from a Zone. All socket
// work happens in runloop callbacks.
type DNS struct {
	loop    *runloop.Loop
	sock    *socket.Socket
	addr    netip.AddrPort
	zone    atomic.Pointer[Zone]
	log     *zap.Logger
	metrics *control.Metrics
	buf     []byte
	enc     dns.Encoder
}

// NewDNS binds addr and registers the socket with loop for reading.
func NewDNS(loop *runloop.Loop, addr netip.AddrPort, opts ...Option) (*DNS, error) {
	s := &DNS{
		loop: loop,
		buf:  make([]byte, maxDatagram),
	}
	s.zone.Store(NewZone())
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = control.NewMetrics(nil)
	}

	sock, err := socket.ListenUDP(addr)
	if err != nil {
		return nil, err
	}
	if s.addr, err = sock.LocalAddr(); err != nil {
		_ = sock.Close()
		return nil, err
	}
	s.sock = sock
	if err := loop.Set(sock.FD(), api.ModeRead, 0, s.onEvent); err != nil {
		_ = sock.Close()
		return nil, err
	}
	s.log.Info("dns responder listening", zap.Stringer("addr", s.addr))
	return s, nil
}

// Addr is the bound address, with the port resolved when 0 was requested.
func (s *DNS) Addr() netip.AddrPort { return s.addr }

// SetRecords swaps the zone. Queries already being answered keep the old one.
func (s *DNS) SetRecords(z *Zone) {
	s.zone.Store(z)
	s.log.Info("dns records replaced", zap.Int("records", z.Len()))
}

// Close unregisters and closes the socket.
func (s *DNS) Close() error {
	if err := s.loop.Del(s.sock.FD()); err != nil {
		_ = s.sock.Close()
		return err
	}
	return s.sock.Close()
}

// onEvent drains every queued datagram.
func (s *DNS) onEvent(_ uintptr, ev api.Event) {
	if !ev.IsReadable() {
		return
	}
	for {
		n, from, err := s.sock.RecvFrom(s.buf)
		if err != nil {
			if !socket.IsTemporary(err) {
				s.log.Warn("dns recv failed", zap.Error(err))
			}
			return
		}
		resp := s.Answer(s.buf[:n])
		if resp == nil {
			continue
		}
		if err := s.sock.SendTo(resp, from); err != nil {
			s.log.Warn("dns send failed", zap.Stringer("peer", from), zap.Error(err))
		}
	}
}

// Answer builds the response datagram for one query. It returns nil when
// the input is too short to carry a message ID, since there is nobody to
// address a reply to.
func (s *DNS) Answer(query []byte) []byte {
	var q dns.Message
	if err := q.Unpack(query); err != nil {
		var h dns.Header
		if h.Decode(dns.NewDecoder(query)) != nil || h.Response() {
			return nil
		}
		s.log.Debug("malformed query", zap.Uint16("id", h.ID), zap.Error(err))
		return s.pack(errorReply(h, dns.RcodeFormatError), udpPlainSize)
	}
	if q.Header.Response() {
		return nil
	}

	limit := udpPlainSize
	var opt *dns.RR
	for i := range q.Additional {
		if q.Additional[i].Type() == dns.TypeOPT {
			limit = max(udpPlainSize, min(int(q.Additional[i].Class), udpEDNSSize))
			opt = &dns.RR{Name: ".", Class: udpEDNSSize, Data: &dns.OPT{}}
			break
		}
	}

	r := dns.Reply(&q)
	if opt != nil {
		r.Additional = []dns.RR{*opt}
	}
	switch {
	case q.Header.Opcode() != dns.OpcodeQuery:
		r.Header.SetRcode(dns.RcodeNotImplemented)
	case len(q.Question) != 1:
		r.Header.SetRcode(dns.RcodeFormatError)
	case q.Question[0].Class != dns.ClassIN && q.Question[0].Class != dns.ClassANY:
		r.Header.SetRcode(dns.RcodeRefused)
	default:
		qs := q.Question[0]
		answer, found := s.zone.Load().Lookup(qs.Name, qs.Type)
		r.Header.SetAuthoritative(true)
		r.Answer = answer
		if !found {
			r.Header.SetRcode(dns.RcodeNameError)
		}
	}
	return s.pack(r, limit)
}

// pack encodes r, truncating to the question section when it exceeds limit.
func (s *DNS) pack(r *dns.Message, limit int) []byte {
	s.enc.Reset()
	err := r.Encode(&s.enc, true)
	if err == nil && s.enc.Len() > limit {
		r.Answer, r.Authority = nil, nil
		r.Header.SetTruncated(true)
		s.enc.Reset()
		err = r.Encode(&s.enc, true)
	}
	if err != nil {
		s.log.Error("dns pack failed", zap.Error(err))
		r.Answer, r.Authority, r.Additional = nil, nil, nil
		r.Header.SetRcode(dns.RcodeServerFailure)
		s.enc.Reset()
		if err := r.Encode(&s.enc, true); err != nil {
			return nil
		}
	}
	s.metrics.DNSQueries.WithLabelValues(r.Header.Rcode().String()).Inc()
	return append([]byte(nil), s.enc.Bytes()...)
}

func errorReply(h dns.Header, rc dns.Rcode) *dns.Message {
	r := &dns.Message{}
	r.Header.ID = h.ID
	r.Header.SetResponse(true)
	r.Header.SetOpcode(h.Opcode())
	r.Header.SetRecursionDesired(h.RecursionDesired())
	r.Header.SetRcode(rc)
	return r
}

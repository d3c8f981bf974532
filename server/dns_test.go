//go:build unix

// File: server/dns_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/momentics/hioload-sockets/control"
	"github.com/momentics/hioload-sockets/dns"
	"github.com/momentics/hioload-sockets/runloop"
)

func startServer(t *testing.T, opts ...Option) *DNS {
	t.Helper()
	loop, err := runloop.New()
	require.NoError(t, err)
	s, err := NewDNS(loop, netip.MustParseAddrPort("127.0.0.1:0"), append([]Option{WithZone(testZone())}, opts...)...)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- loop.Start() }()
	t.Cleanup(func() {
		require.NoError(t, s.Close())
		require.NoError(t, loop.Stop())
		require.NoError(t, <-done)
		require.NoError(t, loop.Close())
	})
	return s
}

func exchange(t *testing.T, s *DNS, m *mdns.Msg) *mdns.Msg {
	t.Helper()
	c := &mdns.Client{Net: "udp", Timeout: 2 * time.Second}
	r, _, err := c.Exchange(m, s.Addr().String())
	require.NoError(t, err)
	return r
}

func TestServeAnswer(t *testing.T) {
	s := startServer(t)
	q := new(mdns.Msg)
	q.SetQuestion("www.example.com.", mdns.TypeA)

	r := exchange(t, s, q)
	assert.Equal(t, q.Id, r.Id)
	assert.Equal(t, mdns.RcodeSuccess, r.Rcode)
	assert.True(t, r.Authoritative)
	assert.True(t, r.RecursionDesired)
	require.Len(t, r.Answer, 1)
	a, ok := r.Answer[0].(*mdns.A)
	require.True(t, ok)
	assert.Equal(t, "192.0.2.1", a.A.String())
	assert.Equal(t, uint32(60), a.Hdr.Ttl)
}

func TestServeCNAMEChain(t *testing.T) {
	s := startServer(t)
	q := new(mdns.Msg)
	q.SetQuestion("alias.example.com.", mdns.TypeAAAA)

	r := exchange(t, s, q)
	require.Len(t, r.Answer, 2)
	assert.Equal(t, "www.example.com.", r.Answer[0].(*mdns.CNAME).Target)
	assert.Equal(t, "2001:db8::1", r.Answer[1].(*mdns.AAAA).AAAA.String())
}

func TestServeNXDomainAndNoData(t *testing.T) {
	s := startServer(t)
	q := new(mdns.Msg)
	q.SetQuestion("nope.example.com.", mdns.TypeA)
	r := exchange(t, s, q)
	assert.Equal(t, mdns.RcodeNameError, r.Rcode)
	assert.Empty(t, r.Answer)

	q.SetQuestion("www.example.com.", mdns.TypeMX)
	r = exchange(t, s, q)
	assert.Equal(t, mdns.RcodeSuccess, r.Rcode)
	assert.Empty(t, r.Answer)
}

func TestServeNotImplemented(t *testing.T) {
	s := startServer(t)
	q := new(mdns.Msg)
	q.SetQuestion("www.example.com.", mdns.TypeA)
	q.Opcode = mdns.OpcodeStatus
	r := exchange(t, s, q)
	assert.Equal(t, mdns.RcodeNotImplemented, r.Rcode)
	assert.Equal(t, mdns.OpcodeStatus, r.Opcode)
}

func TestServeSetRecords(t *testing.T) {
	m := control.NewMetrics(nil)
	s := startServer(t, WithMetrics(m))
	z := NewZone()
	z.Add(dns.RR{Name: "new.test.", Class: dns.ClassIN, TTL: 5, Data: &dns.TXT{Text: []string{"fresh"}}})
	s.SetRecords(z)

	q := new(mdns.Msg)
	q.SetQuestion("new.test.", mdns.TypeTXT)
	r := exchange(t, s, q)
	require.Len(t, r.Answer, 1)
	assert.Equal(t, []string{"fresh"}, r.Answer[0].(*mdns.TXT).Txt)

	q.SetQuestion("www.example.com.", mdns.TypeA)
	r = exchange(t, s, q)
	assert.Equal(t, mdns.RcodeNameError, r.Rcode)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DNSQueries.WithLabelValues("NOERROR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DNSQueries.WithLabelValues("NXDOMAIN")))
}

func TestServeFormErrOverUDP(t *testing.T) {
	s := startServer(t)
	conn, err := net.Dial("udp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// header claiming one question, followed by a truncated name
	_, err = conn.Write([]byte{0xAB, 0xCD, 0x01, 0x00, 0, 1, 0, 0, 0, 0, 0, 0, 5, 'a'})
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	var r mdns.Msg
	require.NoError(t, r.Unpack(buf[:n]))
	assert.Equal(t, uint16(0xABCD), r.Id)
	assert.True(t, r.Response)
	assert.True(t, r.RecursionDesired)
	assert.Equal(t, mdns.RcodeFormatError, r.Rcode)
}

func newAnswerer() *DNS {
	s := &DNS{log: nopLogger(), metrics: control.NewMetrics(nil)}
	s.zone.Store(testZone())
	return s
}

func TestAnswerDropsGarbage(t *testing.T) {
	s := newAnswerer()
	assert.Nil(t, s.Answer([]byte{1, 2, 3}))

	// responses are never answered
	r := dns.Reply(dns.NewQuery("www.example.com.", dns.TypeA))
	b, err := r.Pack(true)
	require.NoError(t, err)
	assert.Nil(t, s.Answer(b))
}

func TestAnswerMultipleQuestions(t *testing.T) {
	s := newAnswerer()
	q := dns.NewQuery("www.example.com.", dns.TypeA)
	q.Question = append(q.Question, q.Question[0])
	b, err := q.Pack(true)
	require.NoError(t, err)

	var r dns.Message
	require.NoError(t, r.Unpack(s.Answer(b)))
	assert.Equal(t, dns.RcodeFormatError, r.Header.Rcode())
}

func TestAnswerRefusesOtherClass(t *testing.T) {
	s := newAnswerer()
	q := dns.NewQuery("www.example.com.", dns.TypeA)
	q.Question[0].Class = dns.ClassCH
	b, err := q.Pack(true)
	require.NoError(t, err)

	var r dns.Message
	require.NoError(t, r.Unpack(s.Answer(b)))
	assert.Equal(t, dns.RcodeRefused, r.Header.Rcode())
}

func TestAnswerTruncatesAndEchoesEDNS(t *testing.T) {
	s := newAnswerer()
	z := NewZone()
	for i := 0; i < 40; i++ {
		z.Add(dns.RR{Name: "big.test.", Class: dns.ClassIN, TTL: 1, Data: &dns.TXT{Text: []string{strings.Repeat("x", 40)}}})
	}
	s.zone.Store(z)

	q := dns.NewQuery("big.test.", dns.TypeTXT)
	b, err := q.Pack(true)
	require.NoError(t, err)
	var r dns.Message
	require.NoError(t, r.Unpack(s.Answer(b)))
	assert.True(t, r.Header.Truncated())
	assert.Empty(t, r.Answer)

	q.Additional = []dns.RR{{Name: ".", Class: 4096, Data: &dns.OPT{}}}
	b, err = q.Pack(true)
	require.NoError(t, err)
	resp := s.Answer(b)
	assert.LessOrEqual(t, len(resp), udpEDNSSize)
	require.NoError(t, r.Unpack(resp))
	require.Len(t, r.Additional, 1)
	assert.Equal(t, dns.TypeOPT, r.Additional[0].Type())
	assert.Equal(t, dns.Class(udpEDNSSize), r.Additional[0].Class)

	// twenty records fit in the EDNS limit
	z = NewZone()
	for i := 0; i < 20; i++ {
		z.Add(dns.RR{Name: "big.test.", Class: dns.ClassIN, TTL: 1, Data: &dns.TXT{Text: []string{strings.Repeat("x", 40)}}})
	}
	s.zone.Store(z)
	require.NoError(t, r.Unpack(s.Answer(b)))
	assert.False(t, r.Header.Truncated())
	assert.Len(t, r.Answer, 20)
}

func nopLogger() *zap.Logger { return zap.NewNop() }

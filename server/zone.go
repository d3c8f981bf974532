// File: server/zone.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/momentics/hioload-sockets/control"
	"github.com/momentics/hioload-sockets/dns"
)

// maxChase bounds CNAME chains followed inside the zone.
const maxChase = 8

// Zone is an immutable-after-build table of records keyed by owner name.
// Names compare case-insensitively.
type Zone struct {
	rrs map[string][]dns.RR
}

// NewZone returns an empty zone.
func NewZone() *Zone {
	return &Zone{rrs: make(map[string][]dns.RR)}
}

// ZoneFromConfig builds A and AAAA records from the dns.records section.
func ZoneFromConfig(cfg control.DNSConfig) (*Zone, error) {
	z := NewZone()
	for name, addrs := range cfg.Records {
		for _, s := range addrs {
			ip, err := netip.ParseAddr(s)
			if err != nil {
				return nil, fmt.Errorf("record %s: %w", name, err)
			}
			var data dns.RData = &dns.AAAA{Addr: ip}
			if ip.Is4() {
				data = &dns.A{Addr: ip}
			}
			z.Add(dns.RR{Name: name, Class: dns.ClassIN, TTL: cfg.TTL, Data: data})
		}
	}
	return z, nil
}

func key(name string) string {
	return strings.ToLower(dns.Fqdn(name))
}

// Add appends rr to its owner name. The owner is made fully qualified.
func (z *Zone) Add(rr dns.RR) {
	rr.Name = dns.Fqdn(rr.Name)
	k := key(rr.Name)
	z.rrs[k] = append(z.rrs[k], rr)
}

// Len is the number of records.
func (z *Zone) Len() int {
	n := 0
	for _, rrs := range z.rrs {
		n += len(rrs)
	}
	return n
}

// Lookup returns the records answering (name, t), following CNAMEs held in
// the zone. found is false when the name does not exist at all.
func (z *Zone) Lookup(name string, t dns.Type) (answer []dns.RR, found bool) {
	for chase := 0; chase < maxChase; chase++ {
		rrs, ok := z.rrs[key(name)]
		if !ok {
			return answer, len(answer) > 0
		}
		var cname *dns.RR
		for i := range rrs {
			rt := rrs[i].Type()
			switch {
			case rt == t || t == dns.TypeANY:
				answer = append(answer, rrs[i])
			case rt == dns.TypeCNAME && cname == nil:
				cname = &rrs[i]
			}
		}
		if cname == nil || t == dns.TypeCNAME || t == dns.TypeANY {
			return answer, true
		}
		answer = append(answer, *cname)
		name = cname.Data.(*dns.CNAME).Target
	}
	return answer, true
}

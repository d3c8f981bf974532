// File: dns/rdata.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dns

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// RData is the type-specific part of a resource record.
type RData interface {
	// Type is the RR type this payload belongs to.
	Type() Type
	// Encode appends the payload. compress applies to embedded names of
	// the RFC 1035 types only.
	Encode(e *Encoder, compress bool) error
	// Decode reads exactly length bytes of payload.
	Decode(d *Decoder, length int) error
	String() string
}

// newRData returns an empty payload for t. Unknown types decode as Raw.
func newRData(t Type) RData {
	switch t {
	case TypeA:
		return &A{}
	case TypeAAAA:
		return &AAAA{}
	case TypeNS:
		return &NS{}
	case TypeCNAME:
		return &CNAME{}
	case TypePTR:
		return &PTR{}
	case TypeMX:
		return &MX{}
	case TypeTXT:
		return &TXT{}
	case TypeSOA:
		return &SOA{}
	case TypeOPT:
		return &OPT{}
	default:
		return &Raw{RRType: t}
	}
}

// A is an IPv4 host address.
type A struct {
	Addr netip.Addr
}

func (*A) Type() Type { return TypeA }

func (r *A) Encode(e *Encoder, _ bool) error {
	if !r.Addr.Is4() {
		return codecError("pack A", e.Len(), fmt.Errorf("%w: %v is not IPv4", ErrBadRdata, r.Addr))
	}
	a := r.Addr.As4()
	e.PackArray(a[:])
	return nil
}

func (r *A) Decode(d *Decoder, length int) error {
	if length != 4 {
		return codecError("unpack A", d.Offset(), ErrBadRdata)
	}
	var a [4]byte
	if err := d.UnpackArray(a[:]); err != nil {
		return err
	}
	r.Addr = netip.AddrFrom4(a)
	return nil
}

func (r *A) String() string { return r.Addr.String() }

// AAAA is an IPv6 host address.
type AAAA struct {
	Addr netip.Addr
}

func (*AAAA) Type() Type { return TypeAAAA }

func (r *AAAA) Encode(e *Encoder, _ bool) error {
	if !r.Addr.Is6() {
		return codecError("pack AAAA", e.Len(), fmt.Errorf("%w: %v is not IPv6", ErrBadRdata, r.Addr))
	}
	a := r.Addr.As16()
	e.PackArray(a[:])
	return nil
}

func (r *AAAA) Decode(d *Decoder, length int) error {
	if length != 16 {
		return codecError("unpack AAAA", d.Offset(), ErrBadRdata)
	}
	var a [16]byte
	if err := d.UnpackArray(a[:]); err != nil {
		return err
	}
	r.Addr = netip.AddrFrom16(a)
	return nil
}

func (r *AAAA) String() string { return r.Addr.String() }

// NS names an authoritative server.
type NS struct {
	Host string
}

func (*NS) Type() Type                               { return TypeNS }
func (r *NS) Encode(e *Encoder, compress bool) error { return e.PackName(r.Host, compress) }
func (r *NS) String() string                         { return r.Host }

func (r *NS) Decode(d *Decoder, _ int) (err error) {
	r.Host, err = d.UnpackName()
	return err
}

// CNAME is the canonical name of an alias.
type CNAME struct {
	Target string
}

func (*CNAME) Type() Type                               { return TypeCNAME }
func (r *CNAME) Encode(e *Encoder, compress bool) error { return e.PackName(r.Target, compress) }
func (r *CNAME) String() string                         { return r.Target }

func (r *CNAME) Decode(d *Decoder, _ int) (err error) {
	r.Target, err = d.UnpackName()
	return err
}

// PTR points to another name, typically for reverse lookups.
type PTR struct {
	Target string
}

func (*PTR) Type() Type                               { return TypePTR }
func (r *PTR) Encode(e *Encoder, compress bool) error { return e.PackName(r.Target, compress) }
func (r *PTR) String() string                         { return r.Target }

func (r *PTR) Decode(d *Decoder, _ int) (err error) {
	r.Target, err = d.UnpackName()
	return err
}

// MX is a mail exchanger with its preference.
type MX struct {
	Preference uint16
	Exchange   string
}

func (*MX) Type() Type { return TypeMX }

func (r *MX) Encode(e *Encoder, compress bool) error {
	e.PackUint16(r.Preference)
	return e.PackName(r.Exchange, compress)
}

func (r *MX) Decode(d *Decoder, _ int) (err error) {
	if r.Preference, err = d.UnpackUint16(); err != nil {
		return err
	}
	r.Exchange, err = d.UnpackName()
	return err
}

func (r *MX) String() string { return strconv.Itoa(int(r.Preference)) + " " + r.Exchange }

// TXT holds one or more character strings.
type TXT struct {
	Text []string
}

func (*TXT) Type() Type { return TypeTXT }

func (r *TXT) Encode(e *Encoder, _ bool) error {
	if len(r.Text) == 0 {
		// RFC 1035 requires at least one string
		return e.PackString("", StringPlain, false)
	}
	for _, s := range r.Text {
		if err := e.PackString(s, StringPlain, false); err != nil {
			return err
		}
	}
	return nil
}

func (r *TXT) Decode(d *Decoder, length int) error {
	end := d.Offset() + length
	r.Text = r.Text[:0]
	for d.Offset() < end {
		s, err := d.UnpackString(StringPlain)
		if err != nil {
			return err
		}
		r.Text = append(r.Text, s)
	}
	return nil
}

func (r *TXT) String() string {
	parts := make([]string, len(r.Text))
	for i, s := range r.Text {
		parts[i] = strconv.Quote(s)
	}
	return strings.Join(parts, " ")
}

// SOA marks the start of a zone of authority.
type SOA struct {
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

func (*SOA) Type() Type { return TypeSOA }

func (r *SOA) Encode(e *Encoder, compress bool) error {
	if err := e.PackName(r.MName, compress); err != nil {
		return err
	}
	if err := e.PackName(r.RName, compress); err != nil {
		return err
	}
	for _, v := range [...]uint32{r.Serial, r.Refresh, r.Retry, r.Expire, r.Minimum} {
		e.PackUint32(v)
	}
	return nil
}

func (r *SOA) Decode(d *Decoder, _ int) (err error) {
	if r.MName, err = d.UnpackName(); err != nil {
		return err
	}
	if r.RName, err = d.UnpackName(); err != nil {
		return err
	}
	for _, p := range [...]*uint32{&r.Serial, &r.Refresh, &r.Retry, &r.Expire, &r.Minimum} {
		if *p, err = d.UnpackUint32(); err != nil {
			return err
		}
	}
	return nil
}

func (r *SOA) String() string {
	return fmt.Sprintf("%s %s %d %d %d %d %d", r.MName, r.RName, r.Serial, r.Refresh, r.Retry, r.Expire, r.Minimum)
}

// EDNS0Option is one option of an OPT record (RFC 6891).
type EDNS0Option struct {
	Code uint16
	Data []byte
}

// OPT is the EDNS0 pseudo-record. Its RR class carries the requester's
// UDP payload size and its TTL the extended rcode and flags.
type OPT struct {
	Options []EDNS0Option
}

func (*OPT) Type() Type { return TypeOPT }

func (r *OPT) Encode(e *Encoder, _ bool) error {
	for _, o := range r.Options {
		if len(o.Data) > 0xFFFF {
			return codecError("pack OPT", e.Len(), ErrBadRdata)
		}
		e.PackUint16(o.Code)
		e.PackUint16(uint16(len(o.Data)))
		e.PackArray(o.Data)
	}
	return nil
}

func (r *OPT) Decode(d *Decoder, length int) error {
	end := d.Offset() + length
	r.Options = r.Options[:0]
	for d.Offset() < end {
		code, err := d.UnpackUint16()
		if err != nil {
			return err
		}
		n, err := d.UnpackUint16()
		if err != nil {
			return err
		}
		data, err := d.UnpackBytes(int(n))
		if err != nil {
			return err
		}
		r.Options = append(r.Options, EDNS0Option{Code: code, Data: data})
	}
	return nil
}

func (r *OPT) String() string {
	parts := make([]string, len(r.Options))
	for i, o := range r.Options {
		parts[i] = fmt.Sprintf("%d:%s", o.Code, hex.EncodeToString(o.Data))
	}
	return strings.Join(parts, " ")
}

// Raw keeps the payload of a type this package does not model.
type Raw struct {
	RRType Type
	Data   []byte
}

func (r *Raw) Type() Type { return r.RRType }

func (r *Raw) Encode(e *Encoder, _ bool) error {
	e.PackArray(r.Data)
	return nil
}

func (r *Raw) Decode(d *Decoder, length int) (err error) {
	r.Data, err = d.UnpackBytes(length)
	return err
}

// String uses the RFC 3597 generic form.
func (r *Raw) String() string {
	return fmt.Sprintf("\\# %d %s", len(r.Data), hex.EncodeToString(r.Data))
}

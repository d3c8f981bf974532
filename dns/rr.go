// File: dns/rr.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dns

import "fmt"

// RR is a resource record. Data decides the wire type.
type RR struct {
	Name  string
	Class Class
	TTL   uint32
	Data  RData
}

// Type is the RR type taken from the payload.
func (rr *RR) Type() Type {
	if rr.Data == nil {
		return TypeNone
	}
	return rr.Data.Type()
}

// Encode writes the record. RDLENGTH is patched once the payload is written.
func (rr *RR) Encode(e *Encoder, compress bool) error {
	if rr.Data == nil {
		return codecError("pack rr", e.Len(), fmt.Errorf("%w: %s has no data", ErrBadRdata, rr.Name))
	}
	if err := e.PackName(rr.Name, compress); err != nil {
		return err
	}
	e.PackType(rr.Data.Type())
	e.PackClass(rr.Class)
	e.PackUint32(rr.TTL)

	lenPos := e.Len()
	e.PackUint16(0)
	if err := rr.Data.Encode(e, compress && compressible(rr.Data.Type())); err != nil {
		return err
	}
	n := e.Len() - lenPos - 2
	if n > 0xFFFF {
		return codecError("pack rr", lenPos, fmt.Errorf("%w: %d bytes", ErrBadRdata, n))
	}
	_ = e.Change(lenPos, byte(n>>8))
	_ = e.Change(lenPos+1, byte(n))
	return nil
}

// Decode reads one record. The payload must consume exactly RDLENGTH bytes.
func (rr *RR) Decode(d *Decoder) error {
	name, err := d.UnpackName()
	if err != nil {
		return err
	}
	t, err := d.UnpackType()
	if err != nil {
		return err
	}
	c, err := d.UnpackClass()
	if err != nil {
		return err
	}
	ttl, err := d.UnpackUint32()
	if err != nil {
		return err
	}
	n, err := d.UnpackUint16()
	if err != nil {
		return err
	}
	start := d.Offset()
	if d.Remaining() < int(n) {
		return codecError("unpack rr", start, fmt.Errorf("%w: rdlength %d", ErrShortBuffer, n))
	}
	data := newRData(t)
	if err := data.Decode(d, int(n)); err != nil {
		return err
	}
	if d.Offset() != start+int(n) {
		return codecError("unpack rr", start, fmt.Errorf("%w: %s consumed %d of %d bytes", ErrBadRdata, t, d.Offset()-start, n))
	}
	*rr = RR{Name: name, Class: c, TTL: ttl, Data: data}
	return nil
}

func (rr *RR) String() string {
	if rr.Data == nil {
		return fmt.Sprintf("%s\t%d\t%s\tNONE", rr.Name, rr.TTL, rr.Class)
	}
	return fmt.Sprintf("%s\t%d\t%s\t%s\t%s", rr.Name, rr.TTL, rr.Class, rr.Data.Type(), rr.Data.String())
}

// compressible reports whether names inside t's payload may be compressed
// (RFC 3597 section 4).
func compressible(t Type) bool {
	switch t {
	case TypeNS, TypeCNAME, TypePTR, TypeMX, TypeSOA:
		return true
	}
	return false
}

// File: dns/header.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dns

import "math/rand"

// Flag bit positions inside the 16-bit header flags field.
const (
	flagQR     = 1 << 15
	flagAA     = 1 << 10
	flagTC     = 1 << 9
	flagRD     = 1 << 8
	flagRA     = 1 << 7
	flagZ      = 1 << 6
	flagAD     = 1 << 5
	flagCD     = 1 << 4
	opcodePos  = 11
	opcodeMask = 0xF << opcodePos
	rcodeMask  = 0xF
)

// Header is the fixed 12-byte message header.
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// RandomID returns a random message ID.
func RandomID() uint16 {
	return uint16(rand.Uint32())
}

func (h *Header) bit(mask uint16) bool { return h.Flags&mask != 0 }

func (h *Header) set(mask uint16, on bool) {
	if on {
		h.Flags |= mask
	} else {
		h.Flags &^= mask
	}
}

// Response is the QR bit.
func (h *Header) Response() bool     { return h.bit(flagQR) }
func (h *Header) SetResponse(v bool) { h.set(flagQR, v) }

// Authoritative is the AA bit.
func (h *Header) Authoritative() bool     { return h.bit(flagAA) }
func (h *Header) SetAuthoritative(v bool) { h.set(flagAA, v) }

// Truncated is the TC bit.
func (h *Header) Truncated() bool     { return h.bit(flagTC) }
func (h *Header) SetTruncated(v bool) { h.set(flagTC, v) }

// RecursionDesired is the RD bit.
func (h *Header) RecursionDesired() bool     { return h.bit(flagRD) }
func (h *Header) SetRecursionDesired(v bool) { h.set(flagRD, v) }

// RecursionAvailable is the RA bit.
func (h *Header) RecursionAvailable() bool     { return h.bit(flagRA) }
func (h *Header) SetRecursionAvailable(v bool) { h.set(flagRA, v) }

// Zero is the reserved Z bit.
func (h *Header) Zero() bool     { return h.bit(flagZ) }
func (h *Header) SetZero(v bool) { h.set(flagZ, v) }

// AuthenticData is the AD bit (RFC 4035).
func (h *Header) AuthenticData() bool     { return h.bit(flagAD) }
func (h *Header) SetAuthenticData(v bool) { h.set(flagAD, v) }

// CheckingDisabled is the CD bit (RFC 4035).
func (h *Header) CheckingDisabled() bool     { return h.bit(flagCD) }
func (h *Header) SetCheckingDisabled(v bool) { h.set(flagCD, v) }

// Opcode returns bits 11-14.
func (h *Header) Opcode() Opcode { return Opcode((h.Flags & opcodeMask) >> opcodePos) }

// SetOpcode keeps the low four bits of op.
func (h *Header) SetOpcode(op Opcode) {
	h.Flags = h.Flags&^opcodeMask | uint16(op&0xF)<<opcodePos
}

// Rcode returns bits 0-3.
func (h *Header) Rcode() Rcode { return Rcode(h.Flags & rcodeMask) }

// SetRcode keeps the low four bits of rc.
func (h *Header) SetRcode(rc Rcode) {
	h.Flags = h.Flags&^rcodeMask | uint16(rc&0xF)
}

// Encode writes the header fields in wire order.
func (h *Header) Encode(e *Encoder) {
	e.PackUint16(h.ID)
	e.PackUint16(h.Flags)
	e.PackUint16(h.QDCount)
	e.PackUint16(h.ANCount)
	e.PackUint16(h.NSCount)
	e.PackUint16(h.ARCount)
}

// Decode reads the header fields. On failure h is left unchanged.
func (h *Header) Decode(d *Decoder) error {
	if err := d.need("unpack header", headerLength); err != nil {
		return err
	}
	var f [6]uint16
	for i := range f {
		f[i], _ = d.UnpackUint16()
	}
	*h = Header{ID: f[0], Flags: f[1], QDCount: f[2], ANCount: f[3], NSCount: f[4], ARCount: f[5]}
	return nil
}

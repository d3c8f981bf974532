// File: dns/encoder.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dns

import (
	"encoding/binary"
	"fmt"
	"maps"
)

// Encoder appends wire-format fields to a growing buffer and remembers
// where domain names were written so later names can point at them.
//
// The zero value is ready to use.
type Encoder struct {
	buf   []byte
	cache map[string]uint16
}

// Bytes returns the encoded message. The slice aliases the encoder's buffer.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of bytes written.
func (e *Encoder) Len() int { return len(e.buf) }

// Cache returns a copy of the compression cache: name suffix to offset.
func (e *Encoder) Cache() map[string]uint16 {
	return maps.Clone(e.cache)
}

// Reset empties the buffer and the compression cache, keeping capacity.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
	clear(e.cache)
}

// Change overwrites one already written byte.
func (e *Encoder) Change(pos int, b byte) error {
	if pos < 0 || pos >= len(e.buf) {
		return codecError("change", pos, ErrShortBuffer)
	}
	e.buf[pos] = b
	return nil
}

func (e *Encoder) PackUint8(v uint8)   { e.buf = append(e.buf, v) }
func (e *Encoder) PackUint16(v uint16) { e.buf = binary.BigEndian.AppendUint16(e.buf, v) }
func (e *Encoder) PackUint32(v uint32) { e.buf = binary.BigEndian.AppendUint32(e.buf, v) }
func (e *Encoder) PackUint64(v uint64) { e.buf = binary.BigEndian.AppendUint64(e.buf, v) }

func (e *Encoder) PackInt8(v int8)   { e.PackUint8(uint8(v)) }
func (e *Encoder) PackInt16(v int16) { e.PackUint16(uint16(v)) }
func (e *Encoder) PackInt32(v int32) { e.PackUint32(uint32(v)) }
func (e *Encoder) PackInt64(v int64) { e.PackUint64(uint64(v)) }

func (e *Encoder) PackType(t Type)   { e.PackUint16(uint16(t)) }
func (e *Encoder) PackClass(c Class) { e.PackUint16(uint16(c)) }

// PackBytes writes the first need bytes of b, or all of b when need is
// negative.
func (e *Encoder) PackBytes(b []byte, need int) error {
	if need < 0 {
		need = len(b)
	}
	if len(b) < need {
		return codecError("pack bytes", len(e.buf), fmt.Errorf("%w: have %d, need %d", ErrShortBuffer, len(b), need))
	}
	e.buf = append(e.buf, b[:need]...)
	return nil
}

// PackArray writes b verbatim.
func (e *Encoder) PackArray(b []byte) { e.buf = append(e.buf, b...) }

// PackString writes s as a character string or as a domain name. compress
// only applies to domain names.
func (e *Encoder) PackString(s string, kind StringKind, compress bool) error {
	switch kind {
	case StringPlain:
		return e.plain(s)
	case StringDomain:
		return e.domain(s, compress)
	default:
		return codecError("pack string", len(e.buf), fmt.Errorf("unknown string kind %d", kind))
	}
}

// PackName is PackString(name, StringDomain, compress).
func (e *Encoder) PackName(name string, compress bool) error {
	return e.domain(name, compress)
}

func (e *Encoder) plain(s string) error {
	if len(s) > maxString {
		return codecError("pack string", len(e.buf), ErrStringTooLong)
	}
	e.buf = append(e.buf, byte(len(s)))
	e.buf = append(e.buf, s...)
	return nil
}

// domain writes name label by label. Before each label the remaining
// suffix is looked up in the cache; a hit ends the name with a pointer.
// Every suffix written literally at an offset a pointer can reach is cached
// unless an earlier copy already is.
// The root name is a single zero byte and never cached.
func (e *Encoder) domain(name string, compress bool) error {
	start := len(e.buf)
	name = Fqdn(name)
	if name == "." {
		e.buf = append(e.buf, 0)
		return nil
	}
	labels, err := splitName(name)
	if err != nil {
		return codecError("pack name", start, err)
	}

	for _, lb := range labels {
		rest := name[lb.at:]
		if compress {
			if off, ok := e.cache[rest]; ok {
				e.buf = binary.BigEndian.AppendUint16(e.buf, 0xC000|off)
				return nil
			}
		}
		if pos := len(e.buf); pos <= maxPointer {
			if e.cache == nil {
				e.cache = make(map[string]uint16)
			}
			if _, ok := e.cache[rest]; !ok {
				e.cache[rest] = uint16(pos)
			}
		}
		e.buf = append(e.buf, byte(len(lb.raw)))
		e.buf = append(e.buf, lb.raw...)
	}
	e.buf = append(e.buf, 0)
	return nil
}


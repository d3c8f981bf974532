// File: dns/decoder.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dns

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Decoder reads wire-format fields from an immutable buffer. The cursor only
// moves forward; following a compression pointer never moves it past the
// pointer itself.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder starts decoding at the beginning of b. Compression pointers
// are offsets into b, so b must hold the whole message.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Offset is the cursor position.
func (d *Decoder) Offset() int { return d.off }

// Remaining is the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

// Reset moves the cursor back to the beginning.
func (d *Decoder) Reset() { d.off = 0 }

func (d *Decoder) need(op string, n int) error {
	if d.Remaining() < n {
		return codecError(op, d.off, fmt.Errorf("%w: have %d, need %d", ErrShortBuffer, d.Remaining(), n))
	}
	return nil
}

func (d *Decoder) UnpackUint8() (uint8, error) {
	if err := d.need("unpack uint8", 1); err != nil {
		return 0, err
	}
	v := d.buf[d.off]
	d.off++
	return v, nil
}

func (d *Decoder) UnpackUint16() (uint16, error) {
	if err := d.need("unpack uint16", 2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(d.buf[d.off:])
	d.off += 2
	return v, nil
}

func (d *Decoder) UnpackUint32() (uint32, error) {
	if err := d.need("unpack uint32", 4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *Decoder) UnpackUint64() (uint64, error) {
	if err := d.need("unpack uint64", 8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, nil
}

func (d *Decoder) UnpackInt8() (int8, error) {
	v, err := d.UnpackUint8()
	return int8(v), err
}

func (d *Decoder) UnpackInt16() (int16, error) {
	v, err := d.UnpackUint16()
	return int16(v), err
}

func (d *Decoder) UnpackInt32() (int32, error) {
	v, err := d.UnpackUint32()
	return int32(v), err
}

func (d *Decoder) UnpackInt64() (int64, error) {
	v, err := d.UnpackUint64()
	return int64(v), err
}

func (d *Decoder) UnpackType() (Type, error) {
	v, err := d.UnpackUint16()
	return Type(v), err
}

func (d *Decoder) UnpackClass() (Class, error) {
	v, err := d.UnpackUint16()
	return Class(v), err
}

// UnpackBytes returns a copy of the next need bytes, or of everything left
// when need is negative.
func (d *Decoder) UnpackBytes(need int) ([]byte, error) {
	if need < 0 {
		need = d.Remaining()
	}
	if err := d.need("unpack bytes", need); err != nil {
		return nil, err
	}
	b := make([]byte, need)
	copy(b, d.buf[d.off:])
	d.off += need
	return b, nil
}

// UnpackArray fills dst completely.
func (d *Decoder) UnpackArray(dst []byte) error {
	if err := d.need("unpack array", len(dst)); err != nil {
		return err
	}
	d.off += copy(dst, d.buf[d.off:])
	return nil
}

// UnpackString reads a character string or a domain name.
func (d *Decoder) UnpackString(kind StringKind) (string, error) {
	switch kind {
	case StringPlain:
		return d.plain()
	case StringDomain:
		return d.domain()
	default:
		return "", codecError("unpack string", d.off, fmt.Errorf("unknown string kind %d", kind))
	}
}

// UnpackName is UnpackString(StringDomain).
func (d *Decoder) UnpackName() (string, error) { return d.domain() }

func (d *Decoder) plain() (string, error) {
	n, err := d.UnpackUint8()
	if err != nil {
		return "", err
	}
	if err := d.need("unpack string", int(n)); err != nil {
		d.off--
		return "", err
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return s, nil
}

// domain extracts a possibly compressed name. Each pointer must target an
// offset below the start of the label run it was found in, so the runs
// visited start at strictly decreasing offsets and decoding terminates on
// any input. The cursor resumes after the first pointer, or after the root
// label when the name is not compressed.
func (d *Decoder) domain() (string, error) {
	var sb strings.Builder
	pos := d.off
	run := d.off
	resume := -1
	wire := 1

	for {
		if pos >= len(d.buf) {
			return "", codecError("unpack name", pos, ErrShortBuffer)
		}
		c := d.buf[pos]
		switch c & pointerFlag {
		case 0x00:
			if c == 0 {
				pos++
				if resume < 0 {
					resume = pos
				}
				d.off = resume
				if sb.Len() == 0 {
					return ".", nil
				}
				return sb.String(), nil
			}
			end := pos + 1 + int(c)
			if end > len(d.buf) {
				return "", codecError("unpack name", pos, ErrShortBuffer)
			}
			if wire += int(c) + 1; wire > maxName {
				return "", codecError("unpack name", pos, ErrNameTooLong)
			}
			escapeLabel(&sb, d.buf[pos+1:end])
			sb.WriteByte('.')
			pos = end
		case pointerFlag:
			if pos+1 >= len(d.buf) {
				return "", codecError("unpack name", pos, ErrShortBuffer)
			}
			target := int(binary.BigEndian.Uint16(d.buf[pos:]) & maxPointer)
			if target >= run {
				return "", codecError("unpack name", pos, fmt.Errorf("%w: %d -> %d", ErrBadPointer, pos, target))
			}
			if resume < 0 {
				resume = pos + 2
			}
			pos = target
			run = target
		default:
			return "", codecError("unpack name", pos, fmt.Errorf("%w: 0x%02x", ErrBadLabelType, c))
		}
	}
}

// File: dns/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dns

import (
	"errors"
	"fmt"
)

// Parse and build failures. Every error returned by this package wraps one
// of these, so callers test with errors.Is.
var (
	ErrShortBuffer   = errors.New("not enough bytes")
	ErrBadPointer    = errors.New("compression pointer must point strictly backward")
	ErrBadLabelType  = errors.New("unsupported label type")
	ErrLabelTooLong  = errors.New("label exceeds 63 bytes")
	ErrNameTooLong   = errors.New("name exceeds 255 bytes")
	ErrEmptyLabel    = errors.New("empty label")
	ErrBadEscape     = errors.New("bad escape sequence in name")
	ErrStringTooLong = errors.New("character string exceeds 255 bytes")
	ErrBadRdata      = errors.New("rdata length mismatch")
	ErrTooMany       = errors.New("section holds more than 65535 entries")
	ErrTrailingData  = errors.New("trailing bytes after message")
)

func codecError(op string, off int, err error) error {
	return fmt.Errorf("dns: %s at offset %d: %w", op, off, err)
}

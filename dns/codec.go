// File: dns/codec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dns

import (
	"fmt"
	"strings"
)

// StringKind selects how PackString and UnpackString treat text.
type StringKind int

const (
	// StringPlain is a character string: one length byte then raw bytes.
	StringPlain StringKind = iota + 1
	// StringDomain is a domain name: length-prefixed labels ending in the
	// root label, optionally compressed.
	StringDomain
)

const (
	maxLabel     = 63
	maxName      = 255
	maxString    = 255
	pointerFlag  = 0xC0
	maxPointer   = 0x3FFF
	headerLength = 12
)

// IsFqdn reports whether name ends with an unescaped root dot.
func IsFqdn(name string) bool {
	if !strings.HasSuffix(name, ".") {
		return false
	}
	i := len(name) - 2
	for i >= 0 && name[i] == '\\' {
		i--
	}
	return (len(name)-2-i)%2 == 0
}

// Fqdn returns name with a trailing dot.
func Fqdn(name string) string {
	if IsFqdn(name) {
		return name
	}
	return name + "."
}

// IsPqdn reports whether name is a partially qualified form of fqdn: a
// relative name made of fqdn's leading labels, like "www" or
// "www.example" for "www.example.com.". Comparison ignores case.
func IsPqdn(name, fqdn string) bool {
	if name == "" || IsFqdn(name) || !IsFqdn(fqdn) {
		return false
	}
	prefix := name + "."
	return len(fqdn) > len(prefix) && strings.EqualFold(fqdn[:len(prefix)], prefix)
}

// label is one decoded label of a presentation-format name and the offset
// of its first character in that name.
type label struct {
	raw string
	at  int
}

// splitName parses a fully qualified, non-root name in presentation format.
// `\X` stands for the byte X and `\DDD` for the decimal byte value DDD, so
// a label may carry dots and backslashes.
func splitName(name string) ([]label, error) {
	var (
		labels []label
		raw    []byte
		at     int
		wire   = 1
	)
	flush := func() error {
		switch {
		case len(raw) == 0:
			return ErrEmptyLabel
		case len(raw) > maxLabel:
			return fmt.Errorf("%w: %q", ErrLabelTooLong, raw)
		}
		if wire += len(raw) + 1; wire > maxName {
			return ErrNameTooLong
		}
		labels = append(labels, label{raw: string(raw), at: at})
		raw = raw[:0]
		return nil
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch c {
		case '\\':
			if i+1 >= len(name) {
				return nil, fmt.Errorf("%w: trailing backslash", ErrBadEscape)
			}
			if isDigit(name[i+1]) {
				if i+3 >= len(name) || !isDigit(name[i+2]) || !isDigit(name[i+3]) {
					return nil, fmt.Errorf("%w: %q", ErrBadEscape, name[i:])
				}
				v := int(name[i+1]-'0')*100 + int(name[i+2]-'0')*10 + int(name[i+3]-'0')
				if v > 255 {
					return nil, fmt.Errorf("%w: \\%d", ErrBadEscape, v)
				}
				raw = append(raw, byte(v))
				i += 3
				continue
			}
			raw = append(raw, name[i+1])
			i++
		case '.':
			if err := flush(); err != nil {
				return nil, err
			}
			at = i + 1
		default:
			raw = append(raw, c)
		}
	}
	if len(raw) > 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	return labels, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// escapeLabel writes a wire label in presentation format: dots, backslashes
// and zone-file specials get a backslash, other unprintable bytes \DDD.
func escapeLabel(sb *strings.Builder, b []byte) {
	for _, c := range b {
		switch {
		case c == '.' || c == '\\' || c == '(' || c == ')' || c == ';' || c == ' ' || c == '@' || c == '"':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c < ' ' || c > '~':
			fmt.Fprintf(sb, "\\%03d", c)
		default:
			sb.WriteByte(c)
		}
	}
}

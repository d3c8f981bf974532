// File: dns/message.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dns

import (
	"fmt"
	"strings"
)

// Message is a complete DNS message. Header counts are derived from the
// section lengths on Pack and drive the section sizes on Unpack.
type Message struct {
	Header     Header
	Question   []Question
	Answer     []RR
	Authority  []RR
	Additional []RR
}

// NewQuery builds a recursive query for name in class IN.
func NewQuery(name string, t Type) *Message {
	m := &Message{
		Question: []Question{{Name: Fqdn(name), Type: t, Class: ClassIN}},
	}
	m.Header.ID = RandomID()
	m.Header.SetOpcode(OpcodeQuery)
	m.Header.SetRecursionDesired(true)
	return m
}

// Reply builds an empty response to q: same ID, opcode, RD bit and
// question, with QR set.
func Reply(q *Message) *Message {
	m := &Message{
		Question: append([]Question(nil), q.Question...),
	}
	m.Header.ID = q.Header.ID
	m.Header.SetResponse(true)
	m.Header.SetOpcode(q.Header.Opcode())
	m.Header.SetRecursionDesired(q.Header.RecursionDesired())
	m.Header.SetCheckingDisabled(q.Header.CheckingDisabled())
	return m
}

// Pack encodes m, compressing names when compress is set.
func (m *Message) Pack(compress bool) ([]byte, error) {
	var e Encoder
	if err := m.Encode(&e, compress); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// Encode appends m to e. m.Header counts are updated.
func (m *Message) Encode(e *Encoder, compress bool) error {
	for _, n := range [...]int{len(m.Question), len(m.Answer), len(m.Authority), len(m.Additional)} {
		if n > 0xFFFF {
			return codecError("pack message", e.Len(), ErrTooMany)
		}
	}
	m.Header.QDCount = uint16(len(m.Question))
	m.Header.ANCount = uint16(len(m.Answer))
	m.Header.NSCount = uint16(len(m.Authority))
	m.Header.ARCount = uint16(len(m.Additional))
	m.Header.Encode(e)

	for i := range m.Question {
		if err := m.Question[i].Encode(e, compress); err != nil {
			return err
		}
	}
	for _, section := range [...][]RR{m.Answer, m.Authority, m.Additional} {
		for i := range section {
			if err := section[i].Encode(e, compress); err != nil {
				return err
			}
		}
	}
	return nil
}

// Unpack decodes a whole message. Bytes left after the last section are
// an error.
func (m *Message) Unpack(b []byte) error {
	d := NewDecoder(b)
	if err := m.Decode(d); err != nil {
		return err
	}
	if d.Remaining() != 0 {
		return codecError("unpack message", d.Offset(), fmt.Errorf("%w: %d bytes", ErrTrailingData, d.Remaining()))
	}
	return nil
}

// Decode reads a message from d. Sections are sized by the header counts.
func (m *Message) Decode(d *Decoder) error {
	var h Header
	if err := h.Decode(d); err != nil {
		return err
	}
	out := Message{Header: h}
	// a question takes at least 5 bytes
	if int(h.QDCount)*5 > d.Remaining() {
		return codecError("unpack question", d.Offset(), fmt.Errorf("%w: %d questions", ErrShortBuffer, h.QDCount))
	}
	if h.QDCount > 0 {
		out.Question = make([]Question, h.QDCount)
	}
	for i := range out.Question {
		if err := out.Question[i].Decode(d); err != nil {
			return err
		}
	}
	var err error
	if out.Answer, err = decodeSection(d, h.ANCount); err != nil {
		return err
	}
	if out.Authority, err = decodeSection(d, h.NSCount); err != nil {
		return err
	}
	if out.Additional, err = decodeSection(d, h.ARCount); err != nil {
		return err
	}
	*m = out
	return nil
}

func decodeSection(d *Decoder, n uint16) ([]RR, error) {
	if n == 0 {
		return nil, nil
	}
	// every RR takes at least 11 bytes, which bounds allocations driven by
	// a hostile count
	if int(n)*11 > d.Remaining() {
		return nil, codecError("unpack section", d.Offset(), fmt.Errorf("%w: %d records", ErrShortBuffer, n))
	}
	rrs := make([]RR, n)
	for i := range rrs {
		if err := rrs[i].Decode(d); err != nil {
			return nil, err
		}
	}
	return rrs, nil
}

func (m *Message) String() string {
	var sb strings.Builder
	h := &m.Header
	fmt.Fprintf(&sb, ";; opcode: %s, status: %s, id: %d\n", h.Opcode(), h.Rcode(), h.ID)
	fmt.Fprintf(&sb, ";; flags:%s; QUERY: %d, ANSWER: %d, AUTHORITY: %d, ADDITIONAL: %d\n",
		flagString(h), len(m.Question), len(m.Answer), len(m.Authority), len(m.Additional))
	if len(m.Question) > 0 {
		sb.WriteString("\n;; QUESTION SECTION:\n")
		for _, q := range m.Question {
			sb.WriteString(q.String())
			sb.WriteByte('\n')
		}
	}
	for _, s := range []struct {
		title string
		rrs   []RR
	}{
		{"ANSWER", m.Answer},
		{"AUTHORITY", m.Authority},
		{"ADDITIONAL", m.Additional},
	} {
		if len(s.rrs) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n;; %s SECTION:\n", s.title)
		for i := range s.rrs {
			sb.WriteString(s.rrs[i].String())
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func flagString(h *Header) string {
	var sb strings.Builder
	for _, f := range []struct {
		on   bool
		name string
	}{
		{h.Response(), "qr"},
		{h.Authoritative(), "aa"},
		{h.Truncated(), "tc"},
		{h.RecursionDesired(), "rd"},
		{h.RecursionAvailable(), "ra"},
		{h.Zero(), "z"},
		{h.AuthenticData(), "ad"},
		{h.CheckingDisabled(), "cd"},
	} {
		if f.on {
			sb.WriteByte(' ')
			sb.WriteString(f.name)
		}
	}
	return sb.String()
}

// File: dns/question.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dns

import "fmt"

// Question is one entry of the question section.
type Question struct {
	Name  string
	Type  Type
	Class Class
}

// Encode writes the question.
func (q *Question) Encode(e *Encoder, compress bool) error {
	if err := e.PackName(q.Name, compress); err != nil {
		return err
	}
	e.PackType(q.Type)
	e.PackClass(q.Class)
	return nil
}

// Decode reads the question.
func (q *Question) Decode(d *Decoder) error {
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
	*q = Question{Name: name, Type: t, Class: c}
	return nil
}

func (q Question) String() string {
	return fmt.Sprintf(";%s\t%s\t%s", q.Name, q.Class, q.Type)
}

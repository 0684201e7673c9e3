// Package contact implements the contact form workflow: a per-visitor
// message being edited, the Idle/Submitting/Succeeded state machine around
// it, and the outbound dispatch to an email delivery service.
package contact

import (
	"fmt"
	"strings"
)

// Field identifies one of the four inputs of the contact form.
type Field int

const (
	FieldName Field = iota
	FieldEmail
	FieldSubject
	FieldMessage
)

// Fields lists every form field in display order.
var Fields = []Field{FieldName, FieldEmail, FieldSubject, FieldMessage}

// String returns the form input name of the field.
func (f Field) String() string {
	switch f {
	case FieldName:
		return "name"
	case FieldEmail:
		return "email"
	case FieldSubject:
		return "subject"
	case FieldMessage:
		return "message"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// Label is the human readable name shown next to the input.
func (f Field) Label() string {
	switch f {
	case FieldName:
		return "Name"
	case FieldEmail:
		return "Email"
	case FieldSubject:
		return "Subject"
	case FieldMessage:
		return "Message"
	default:
		return f.String()
	}
}

// ParseField maps a form input name onto a Field.
func ParseField(name string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "name":
		return FieldName, nil
	case "email":
		return FieldEmail, nil
	case "subject":
		return FieldSubject, nil
	case "message":
		return FieldMessage, nil
	}
	return 0, fmt.Errorf("unknown contact field %q", name)
}

// Message is the four-field record collected from the contact form.
// The zero value is the empty message; an empty string means unset.
type Message struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"message" validate:"required"`
}

// Get returns the current value of f.
func (m Message) Get(f Field) string {
	switch f {
	case FieldName:
		return m.Name
	case FieldEmail:
		return m.Email
	case FieldSubject:
		return m.Subject
	case FieldMessage:
		return m.Body
	}
	return ""
}

// Set overwrites f and leaves the other fields untouched.
func (m *Message) Set(f Field, value string) {
	switch f {
	case FieldName:
		m.Name = value
	case FieldEmail:
		m.Email = value
	case FieldSubject:
		m.Subject = value
	case FieldMessage:
		m.Body = value
	}
}

// IsEmpty reports whether every field is unset.
func (m Message) IsEmpty() bool {
	return m == Message{}
}

// Payload maps the message onto the template parameters expected by the
// delivery service.
func (m Message) Payload() Payload {
	return Payload{
		FromName: m.Name,
		ReplyTo:  m.Email,
		Subject:  m.Subject,
		Message:  m.Body,
	}
}

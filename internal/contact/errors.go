package contact

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInProgress is returned by Submit while a dispatch is outstanding.
	// The call has no side effect.
	ErrInProgress = errors.New("contact: submission already in progress")

	// ErrClosed is returned once the workflow has been torn down.
	ErrClosed = errors.New("contact: workflow closed")
)

// Reason describes why a field failed validation.
type Reason string

const (
	ReasonRequired Reason = "required"
	ReasonInvalid  Reason = "invalid"
)

// FieldError is the validation outcome for a single field.
type FieldError struct {
	Field  Field
	Reason Reason
}

// Message is the inline text shown next to the offending input.
func (e FieldError) Message() string {
	switch e.Reason {
	case ReasonRequired:
		return fmt.Sprintf("%s is required", e.Field.Label())
	case ReasonInvalid:
		return fmt.Sprintf("%s is not valid", e.Field.Label())
	}
	return fmt.Sprintf("%s: %s", e.Field.Label(), e.Reason)
}

// ValidationError lists the fields that blocked a submission, in form order.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field.String()+" "+string(f.Reason))
	}
	return "contact: validation failed: " + strings.Join(parts, ", ")
}

// Has reports whether f is one of the offending fields.
func (e *ValidationError) Has(f Field) bool {
	for _, fe := range e.Fields {
		if fe.Field == f {
			return true
		}
	}
	return false
}

// ByField indexes the field messages by form input name, for templates.
func (e *ValidationError) ByField() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, fe := range e.Fields {
		out[fe.Field.String()] = fe.Message()
	}
	return out
}

// DispatchErrorMessage is the notice shown to the visitor after a failed send.
const DispatchErrorMessage = "Something went wrong. Please try again later."

// DispatchError reports that the outbound call failed. The entered message
// is left intact so the visitor can resubmit.
type DispatchError struct {
	Err error
}

func (e *DispatchError) Error() string {
	return "contact: dispatch failed: " + e.Err.Error()
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// UserMessage is the text surfaced to the visitor.
func (e *DispatchError) UserMessage() string {
	return DispatchErrorMessage
}

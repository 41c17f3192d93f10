package parser

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMisuse is returned when the caller hands the parser something that is
// neither an object nor a list of objects.
var ErrMisuse = errors.New("parser: input must be an object or a list of objects")

// FieldErrorKind classifies a single field failure.
type FieldErrorKind string

const (
	KindMissing FieldErrorKind = "missing" // required field absent
	KindType    FieldErrorKind = "type"    // present but of the wrong type (or null)
	KindValue   FieldErrorKind = "value"   // right type, unusable value
)

// FieldError describes one failed field. Field is the canonical snake_case
// path, e.g. "start" or "managers[1].manager_user_id"; it is empty when the
// record itself is not an object.
type FieldError struct {
	Field string         `json:"field"`
	Kind  FieldErrorKind `json:"kind"`
	Msg   string         `json:"msg"`
}

func (e FieldError) String() string {
	if e.Field == "" {
		return fmt.Sprintf("%s (%s)", e.Msg, e.Kind)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Msg, e.Kind)
}

// ParseError is returned (or collected) for a record that failed validation.
// Index is the position of the record in its list, or -1 when a single
// object was parsed. Raw is the record as received.
type ParseError struct {
	Model  string
	Index  int
	Raw    any
	Fields []FieldError
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parse ")
	b.WriteString(e.Model)
	if e.Index >= 0 {
		fmt.Fprintf(&b, " at index %d", e.Index)
	}
	fmt.Fprintf(&b, ": %d validation error(s)", len(e.Fields))
	for i, f := range e.Fields {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(f.String())
	}
	return b.String()
}

// Has reports whether the error carries a failure of the given kind for field.
func (e *ParseError) Has(field string, kind FieldErrorKind) bool {
	for _, f := range e.Fields {
		if f.Field == field && f.Kind == kind {
			return true
		}
	}
	return false
}

type coerceError struct {
	kind FieldErrorKind
	msg  string
}

func (e *coerceError) Error() string { return e.msg }

func typeErr(format string, args ...any) error {
	return &coerceError{kind: KindType, msg: fmt.Sprintf(format, args...)}
}

func valueErr(format string, args ...any) error {
	return &coerceError{kind: KindValue, msg: fmt.Sprintf(format, args...)}
}

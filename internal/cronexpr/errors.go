package cronexpr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds. Every error returned by the parsers is a
// *ParseError that unwraps to exactly one of these.
var (
	ErrEmptyField      = errors.New("empty field")
	ErrOutOfRange      = errors.New("value out of range")
	ErrUnknownName     = errors.New("unknown name")
	ErrMalformed       = errors.New("malformed field")
	ErrWrongFieldCount = errors.New("wrong number of fields")
)

// ParseError describes why an expression or a single field was rejected.
type ParseError struct {
	Err   error
	Field FieldKind
	Text  string
	Min   int
	Max   int
	Names []string
	Count int
}

func (e *ParseError) Error() string {
	switch e.Err {
	case ErrWrongFieldCount:
		return fmt.Sprintf("cron: expected 5 fields, got %d in %q", e.Count, e.Text)
	case ErrEmptyField:
		return fmt.Sprintf("cron: %s field is empty", e.Field)
	case ErrOutOfRange:
		return fmt.Sprintf("cron: %s field: %q is outside %d-%d", e.Field, e.Text, e.Min, e.Max)
	case ErrUnknownName:
		return fmt.Sprintf("cron: %s field: unknown name %q (valid: %s)", e.Field, e.Text, strings.Join(e.Names, ", "))
	default:
		return fmt.Sprintf("cron: %s field: malformed term %q", e.Field, e.Text)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

func fieldError(kind error, d Descriptor, text string) *ParseError {
	return &ParseError{
		Err:   kind,
		Field: d.Kind,
		Text:  text,
		Min:   d.Min,
		Max:   d.Max,
		Names: d.Names,
	}
}

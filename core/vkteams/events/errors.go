package events

import "fmt"

// DecodeError reports a payload that does not fit its declared kind.
type DecodeError struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("decode %s: field %s: %v", e.Kind, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("decode %s: missing required field %s", e.Kind, e.Field)
	case e.Err != nil:
		return fmt.Sprintf("decode %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("decode %s: invalid payload", e.Kind)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func missing(kind Kind, field string) error {
	return &DecodeError{Kind: kind, Field: field}
}

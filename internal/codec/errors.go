package codec

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField   = errors.New("missing field")
	ErrMalformedValue = errors.New("malformed value")
)

// FieldError reports which field made a record undecodable.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func missing(field string) error {
	return &FieldError{Field: field, Err: ErrMissingField}
}

func malformed(field string, cause error) error {
	if cause == nil {
		return &FieldError{Field: field, Err: ErrMalformedValue}
	}

	return &FieldError{Field: field, Err: fmt.Errorf("%w: %w", ErrMalformedValue, cause)}
}

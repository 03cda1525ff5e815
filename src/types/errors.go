package types

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrTransport  = errors.New("connection unavailable")
	ErrNotMember  = fmt.Errorf("%w: not a member of room", ErrValidation)
)

// Error codes carried in error frames.
const (
	CodeValidation = "validation"
	CodeNotFound   = "not_found"
	CodeTransport  = "transport"
	CodeInternal   = "internal"
)

// ErrorCode classifies err for the error frame and HTTP status mapping.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrTransport):
		return CodeTransport
	default:
		return CodeInternal
	}
}

// Required returns a validation error naming field when value is empty.
func Required(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	return nil
}

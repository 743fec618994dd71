package stocks

import (
	"errors"
	"fmt"
)

// Kind classifies store failures that callers are expected to handle.
type Kind string

const (
	// KindValidation marks bad or missing input fields.
	KindValidation Kind = "validation_error"
	// KindNotFound marks an unknown identifier or symbol.
	KindNotFound Kind = "not_found"
)

// Sentinels usable with errors.Is against any *Error of the same kind.
var (
	ErrValidation = errors.New("stocks: validation error")
	ErrNotFound   = errors.New("stocks: not found")
)

// Error is returned for validation and lookup failures. Any other error
// returned by the Store (persistence, context cancellation) is internal.
type Error struct {
	Kind    Kind
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches ErrValidation and ErrNotFound by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrNotFound:
		return e.Kind == KindNotFound
	}
	return false
}

func validationError(field, format string, args ...any) error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

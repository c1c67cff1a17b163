package sanitize

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is wrapped by every error the sanitizer returns.
var ErrInvalidConfig = errors.New("invalid config")

// InvalidFieldRelationshipError reports a relationship field whose relationTo
// names collections that do not exist.
type InvalidFieldRelationshipError struct {
	Path    string
	Invalid []string
}

func (e *InvalidFieldRelationshipError) Error() string {
	return fmt.Sprintf("field %s has invalid relationship %s", e.Path, strings.Join(e.Invalid, ", "))
}

func (e *InvalidFieldRelationshipError) Unwrap() error {
	return ErrInvalidConfig
}

// FieldError reports any other invalid field definition.
type FieldError struct {
	Path    string
	Message string
}

func (e *FieldError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("field %s: %s", e.Path, e.Message)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidConfig
}

func fieldErr(path, format string, args ...any) error {
	return &FieldError{Path: path, Message: fmt.Sprintf(format, args...)}
}

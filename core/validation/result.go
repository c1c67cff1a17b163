// Package validation provides the default validators for each field kind.
// Validators run during beforeChange; failures are collected per path.
package validation

import (
	"fmt"
	"strings"
)

// FieldError is one validation failure.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Result holds all validation errors for a document.
type Result struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// NewResult returns a valid, empty result.
func NewResult() *Result {
	return &Result{Valid: true}
}

// AddError adds a validation error.
func (r *Result) AddError(path string, value any, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, FieldError{
		Path:    path,
		Message: message,
		Value:   value,
	})
}

// Error returns a combined error message.
func (r Result) Error() string {
	if r.Valid {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Paths returns the paths of all failures in order.
func (r Result) Paths() []string {
	paths := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		paths = append(paths, e.Path)
	}
	return paths
}

package hooks

import (
	"fmt"
	"strings"

	"github.com/artpar/contentcore/core/validation"
)

// ValidationError is returned by BeforeChange when fields fail validation.
type ValidationError struct {
	Slug   string
	Errors []validation.FieldError
}

func (e *ValidationError) Error() string {
	paths := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		paths = append(paths, fe.Path)
	}
	if len(paths) == 1 {
		return fmt.Sprintf("the following field is invalid: %s", paths[0])
	}
	return fmt.Sprintf("the following fields are invalid: %s", strings.Join(paths, ", "))
}

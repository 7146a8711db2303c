// Package apperr holds the error types shared by the intake, analysis and
// HTTP layers.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is matched by every ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a user-correctable problem with a request field.
// It never changes server-side state.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validation builds a ValidationError.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// RequireText returns a ValidationError when value is empty or whitespace.
func RequireText(field, value, message string) error {
	if strings.TrimSpace(value) == "" {
		return Validation(field, message)
	}
	return nil
}

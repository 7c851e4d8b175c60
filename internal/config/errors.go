package config

import (
	"errors"
	"fmt"
	"strings"
)

// Issue is one invalid configuration value.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned for any configuration that must not start a
// run. It carries every issue found, not only the first.
type ValidationError struct {
	Issues []Issue `json:"issues"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.Field + ": " + is.Message
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Issues = append(e.Issues, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() error {
	if len(e.Issues) == 0 {
		return nil
	}
	return e
}

// Join merges validation errors so callers see all issues at once.
// Non-validation errors are returned as-is.
func Join(errs ...error) error {
	out := &ValidationError{}
	for _, err := range errs {
		if err == nil {
			continue
		}
		var v *ValidationError
		if !errors.As(err, &v) {
			return err
		}
		out.Issues = append(out.Issues, v.Issues...)
	}
	return out.orNil()
}

package errors

import (
	"fmt"
	"strings"
)

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// ValidationError collects every problem found while validating a
// configuration, so that they can all be fixed at once.
type ValidationError struct {
	Problems []string
}

func (err ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(err.Problems, "; "))
}

// FriendlyMessage lists the problems one per line.
func (err ValidationError) FriendlyMessage() string {
	var sb strings.Builder
	sb.WriteString("Configuration errors:")
	for _, problem := range err.Problems {
		sb.WriteString("\n  - ")
		sb.WriteString(problem)
	}
	return sb.String()
}

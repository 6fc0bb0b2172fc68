package domain

import "fmt"

// ValidationError marks a record that cannot be processed (missing email,
// missing scoring attributes). Callers skip the record and keep going.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: %s %s", e.Field, e.Reason)
}

func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

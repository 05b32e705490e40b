// Package repository defines the persistence boundary used by the auth chain
// and the account handlers, plus its MongoDB, MySQL and in-memory backends.
// The sentinel values here let higher layers distinguish failure scenarios
// without knowing which backend is in use.
package repository

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUserNotFound is returned when no user matches the lookup.  Handlers
// translate it into an HTTP 404 response.
var ErrUserNotFound = errors.New("user not found")

// ErrRoleNotFound is returned when a role name or ID is unknown.
var ErrRoleNotFound = errors.New("role not found")

// FieldError describes one rejected field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError reports store-level or input constraint violations keyed
// by field.  Its message follows "<Model> validation failed: <field>: <msg>".
type ValidationError struct {
	Model  string
	Fields []FieldError
}

// NewValidationError builds a single-field ValidationError.
func NewValidationError(model, field, message string) *ValidationError {
	return &ValidationError{Model: model, Fields: []FieldError{{Field: field, Message: message}}}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return fmt.Sprintf("%s validation failed: %s", e.Model, strings.Join(parts, ", "))
}

// duplicateError is the uniqueness violation shared by every backend.
func duplicateError(field, value string) *ValidationError {
	return NewValidationError("User", field, fmt.Sprintf("%s is already taken", value))
}

package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// PermissionError is returned when the caller is authenticated but may not perform an operation.
type PermissionError struct {
	Err error
}

func NewPermissionError(err error) error {
	return &PermissionError{Err: err}
}

func (err PermissionError) Error() string { return err.Err.Error() }
func (err PermissionError) Unwrap() error { return err.Err }

// NotFoundError is returned when the target entity does not exist or is not visible to the caller.
type NotFoundError struct {
	Err error
}

func NewNotFoundError(err error) error {
	return &NotFoundError{Err: err}
}

func (err NotFoundError) Error() string { return err.Err.Error() }
func (err NotFoundError) Unwrap() error { return err.Err }

// ConflictError is returned when an operation collides with the current state of an entity.
type ConflictError struct {
	Err error
}

func NewConflictError(err error) error {
	return &ConflictError{Err: err}
}

func (err ConflictError) Error() string { return err.Err.Error() }
func (err ConflictError) Unwrap() error { return err.Err }

// ExternalServiceError reports a failed call to a third-party service (e.g. the LLM provider).
type ExternalServiceError struct {
	Service    string
	StatusCode int // upstream HTTP status, 0 when no response was received
	Err        error
}

func NewExternalServiceError(service string, err error) error {
	return &ExternalServiceError{Service: service, Err: err}
}

func (err ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", err.Service, err.Err)
}

func (err ExternalServiceError) Unwrap() error { return err.Err }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

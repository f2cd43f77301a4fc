package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error with a code and message
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeValidation  = "VALIDATION_ERROR"
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeConflict    = "CONFLICT"
	ErrCodeInvalidDate = "INVALID_DATE"
	ErrCodeUnavailable = "UNAVAILABLE"
	ErrCodeInternal    = "INTERNAL_ERROR"
)

// NewValidationError creates a new validation error
func NewValidationError(msg string) error {
	return &DomainError{Code: ErrCodeValidation, Message: msg}
}

// NewMissingFieldError reports a required field that was not supplied
func NewMissingFieldError(field string) error {
	return &DomainError{Code: ErrCodeValidation, Message: fmt.Sprintf("%s is required", field)}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) error {
	return &DomainError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

// NewConflictError creates a new conflict error
func NewConflictError(msg string) error {
	return &DomainError{Code: ErrCodeConflict, Message: msg}
}

// NewAlreadyTerminalError reports a transition attempted on a completed or skipped step
func NewAlreadyTerminalError(status string) error {
	return &DomainError{Code: ErrCodeConflict, Message: fmt.Sprintf("step is already %s", status)}
}

// NewAlreadyEnrolledError reports a second active enrollment for the same pair
func NewAlreadyEnrolledError() error {
	return &DomainError{Code: ErrCodeConflict, Message: "contact is already active in this cadence"}
}

// NewInvalidDateError creates a new invalid date error
func NewInvalidDateError(msg string) error {
	return &DomainError{Code: ErrCodeInvalidDate, Message: msg}
}

// NewUnavailableError reports a collaborator that is not configured or reachable
func NewUnavailableError(msg string, err error) error {
	return &DomainError{Code: ErrCodeUnavailable, Message: msg, Err: err}
}

// NewInternalError creates a new internal error
func NewInternalError(err error) error {
	return &DomainError{Code: ErrCodeInternal, Message: "An internal error occurred", Err: err}
}

// CodeOf returns the code of a wrapped DomainError, or "" if there is none
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// MessageOf returns the client-facing message of a DomainError
func MessageOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool { return CodeOf(err) == ErrCodeValidation }

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsConflict checks if the error is a conflict error
func IsConflict(err error) bool { return CodeOf(err) == ErrCodeConflict }

// IsInvalidDate checks if the error is an invalid date error
func IsInvalidDate(err error) bool { return CodeOf(err) == ErrCodeInvalidDate }

// IsUnavailable checks if the error is an unavailable collaborator error
func IsUnavailable(err error) bool { return CodeOf(err) == ErrCodeUnavailable }

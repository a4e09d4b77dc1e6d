package util

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes shared by the workflow engine and the HTTP layer.
const (
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeInternal           = "INTERNAL_ERROR"
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodePreconditionFailed = "PRECONDITION_FAILED"
	CodePartialFailure     = "PARTIAL_FAILURE"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewPermissionDenied reports a guard failure. No mutation was attempted.
func NewPermissionDenied(message string, details map[string]any) error {
	return NewDomainError(CodePermissionDenied, message, http.StatusForbidden, details)
}

// NewPreconditionFailed reports a missing comment, attachment or illegal source status.
// No mutation was attempted.
func NewPreconditionFailed(message string, details map[string]any) error {
	return NewDomainError(CodePreconditionFailed, message, http.StatusUnprocessableEntity, details)
}

// NewPartialFailure reports that the authoritative ticket update was applied but a
// dependent append was not. Callers must not resubmit.
func NewPartialFailure(message string, err error, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["applied"] = true
	return &DomainError{
		Code:       CodePartialFailure,
		Message:    message,
		HTTPStatus: http.StatusMultiStatus,
		Details:    details,
		Err:        err,
	}
}

// NewStorageUnavailable reports an I/O failure before the authoritative update.
// The whole submission is safe to retry under the same idempotency key.
func NewStorageUnavailable(err error, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["retryable"] = true
	return &DomainError{
		Code:       CodeStorageUnavailable,
		Message:    "storage unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    details,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsCode reports whether err carries the given DomainError code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == code
}

// IsNotFound reports whether err is a missing-row error from any store.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) || IsCode(err, CodeNotFound)
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

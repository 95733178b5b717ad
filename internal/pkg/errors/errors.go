package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application error with additional context
type AppError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	StatusCode int         `json:"-"`
	Internal   error       `json:"-"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap returns the internal error for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Common error codes
const (
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodeBadRequest          = "BAD_REQUEST"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodePersistence         = "PERSISTENCE_ERROR"
	ErrCodePrecondition        = "PRECONDITION_FAILED"
	ErrCodeProbeExecution      = "PROBE_EXECUTION_ERROR"
	ErrCodeInsufficientHistory = "INSUFFICIENT_HISTORY"
)

// New creates a new AppError
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with an AppError
func Wrap(err error, code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Internal:   err,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// HasCode reports whether err is an AppError carrying the given code
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Common error constructors

// Internal creates an internal error
func Internal(message string, err error) *AppError {
	return Wrap(err, ErrCodeInternal, message, http.StatusInternalServerError)
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return New(ErrCodeBadRequest, message, http.StatusBadRequest)
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// ValidationError creates a validation error
func ValidationError(message string, details interface{}) *AppError {
	return New(ErrCodeValidation, message, http.StatusBadRequest).WithDetails(details)
}

// PersistenceError creates a ledger/snapshot persistence error. These are
// fatal for the enclosing operation and must never be silently swallowed.
func PersistenceError(message string, err error) *AppError {
	return Wrap(err, ErrCodePersistence, message, http.StatusInternalServerError)
}

// PreconditionError creates a rollback precondition error carrying the list
// of unmet conditions
func PreconditionError(message string, failed []string) *AppError {
	return New(ErrCodePrecondition, message, http.StatusPreconditionFailed).WithDetails(failed)
}

// ProbeExecutionError creates a probe execution error
func ProbeExecutionError(probe string, err error) *AppError {
	return Wrap(err, ErrCodeProbeExecution,
		fmt.Sprintf("probe %s failed", probe),
		http.StatusInternalServerError)
}

// InsufficientHistory creates an error for operations that need more
// committed versions than the ledger holds
func InsufficientHistory(message string) *AppError {
	return New(ErrCodeInsufficientHistory, message, http.StatusConflict)
}

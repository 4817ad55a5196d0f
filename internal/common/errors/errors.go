// Package errors provides custom error types for the AgentSocial application.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes as constants
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeValidationError    = "VALIDATION_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"

	ErrCodeWorkspace   = "WORKSPACE_ERROR"
	ErrCodeCredential  = "CREDENTIAL_ERROR"
	ErrCodeAgentSpawn  = "AGENT_SPAWN_FAILED"
	ErrCodeResumeMiss  = "RESUME_MISS"
	ErrCodeDuplicate   = "DUPLICATE_EVENT"
	ErrCodeNotAwaiting = "NOT_AWAITING_APPROVAL"
)

// AppError represents an application-specific error with additional context.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a new not found error for a resource.
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s with id '%s' not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// BadRequest creates a new bad request error.
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrCodeBadRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// InternalError creates a new internal server error with a wrapped underlying error.
func InternalError(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Conflict creates a new conflict error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:       ErrCodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// ValidationError creates a new validation error for a specific field.
func ValidationError(field string, message string) *AppError {
	return &AppError{
		Code:       ErrCodeValidationError,
		Message:    fmt.Sprintf("validation failed for field '%s': %s", field, message),
		HTTPStatus: http.StatusBadRequest,
	}
}

// ServiceUnavailable creates a new service unavailable error.
func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code:       ErrCodeServiceUnavailable,
		Message:    fmt.Sprintf("service '%s' is currently unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// WorkspaceError creates an error for workspace resolution or creation failures.
func WorkspaceError(path string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeWorkspace,
		Message:    fmt.Sprintf("workspace '%s' could not be prepared", path),
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// CredentialError creates an error for credential projection failures.
func CredentialError(artifact string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeCredential,
		Message:    fmt.Sprintf("credential artifact '%s' could not be projected", artifact),
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// SpawnError creates an error for agent process launch failures.
func SpawnError(executable string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeAgentSpawn,
		Message:    fmt.Sprintf("agent process '%s' failed to start", executable),
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ResumeMiss creates an error indicating the agent could not resume a prior
// session in the workspace. Callers retry once without session resumption.
func ResumeMiss(workspace string) *AppError {
	return &AppError{
		Code:       ErrCodeResumeMiss,
		Message:    fmt.Sprintf("no resumable session in workspace '%s'", workspace),
		HTTPStatus: http.StatusConflict,
	}
}

// Duplicate creates an error for an already-processed inbound event.
func Duplicate(eventID string) *AppError {
	return &AppError{
		Code:       ErrCodeDuplicate,
		Message:    fmt.Sprintf("event '%s' was already processed", eventID),
		HTTPStatus: http.StatusConflict,
	}
}

// NotAwaitingApproval creates an error for a decision on a command that has
// no pending plan.
func NotAwaitingApproval(correlationID string) *AppError {
	return &AppError{
		Code:       ErrCodeNotAwaiting,
		Message:    fmt.Sprintf("command '%s' is not awaiting approval", correlationID),
		HTTPStatus: http.StatusConflict,
	}
}

// Wrap wraps an existing error with additional context, returning an AppError.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	// If the error is already an AppError, preserve its code and status
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:       appErr.Code,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			Err:        err,
		}
	}

	// Otherwise, wrap as an internal error
	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeNotFound
	}
	return false
}

// IsResumeMiss checks if the error indicates a missed session resumption.
func IsResumeMiss(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeResumeMiss
	}
	return false
}

// IsDuplicate checks if the error indicates an already-processed event.
func IsDuplicate(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeDuplicate
	}
	return false
}

// GetHTTPStatus returns the HTTP status code for an error.
// Returns 500 Internal Server Error if the error is not an AppError.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// Authentication errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// Authorization errors
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrCodeNotInvited       ErrorCode = "NOT_INVITED"

	// Not found errors
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeCallNotFound ErrorCode = "CALL_NOT_FOUND"

	// Call state errors
	ErrCodeInvalidState      ErrorCode = "INVALID_STATE"
	ErrCodeAlreadyRecording  ErrorCode = "ALREADY_RECORDING"
	ErrCodeNoActiveRecording ErrorCode = "NO_ACTIVE_RECORDING"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeStorage  ErrorCode = "STORAGE_ERROR"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WrapWithStatus wraps an existing error with an AppError and specific status code
func WrapWithStatus(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// WithDetails adds additional details to an AppError for debugging
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Validation errors
func ValidationError(message string) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest)
}

func InvalidArgumentError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidArgument, message, http.StatusBadRequest)
}

// Authentication errors
func UnauthorizedError(message string) *AppError {
	return NewWithStatus(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidTokenError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidToken, message, http.StatusUnauthorized)
}

// Authorization errors
func PermissionDeniedError(message string) *AppError {
	return NewWithStatus(ErrCodePermissionDenied, message, http.StatusForbidden)
}

// NotInvitedError is returned when an identity that is neither the initiator
// nor an invited participant touches a call. Logged as a potential probe.
func NotInvitedError() *AppError {
	return NewWithStatus(ErrCodeNotInvited, "Identity is not part of this call", http.StatusForbidden)
}

// Not found errors
func NotFoundError(resource string) *AppError {
	return NewWithStatus(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func CallNotFoundError() *AppError {
	return NewWithStatus(ErrCodeCallNotFound, "Call not found", http.StatusNotFound)
}

// Call state errors
func InvalidStateError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidState, message, http.StatusConflict)
}

func AlreadyRecordingError() *AppError {
	return NewWithStatus(ErrCodeAlreadyRecording, "Call is already being recorded", http.StatusConflict)
}

func NoActiveRecordingError() *AppError {
	return NewWithStatus(ErrCodeNoActiveRecording, "No recording in progress", http.StatusConflict)
}

// Internal errors
func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

func StorageError(err error) *AppError {
	return WrapWithStatus(ErrCodeStorage, "Storage error", http.StatusInternalServerError, err)
}

// IsAppError checks if an error is an AppError type
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return InternalError(err.Error())
}

// HasCode reports whether err is an AppError carrying the given code
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

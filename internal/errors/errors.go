// Package errors defines the service error taxonomy shared by the HTTP layer.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure in API responses.
type ErrorCode string

const (
	CodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	CodeValidation       ErrorCode = "VALIDATION_ERROR"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
	CodeConfig           ErrorCode = "CONFIG_ERROR"
	CodeRateLimited      ErrorCode = "RATE_LIMITED"
)

// ServiceError is an error carrying the HTTP status and client-facing message
// it should be reported with.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of e with key set in its details.
func (e *ServiceError) WithDetails(key string, value any) *ServiceError {
	clone := *e
	clone.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		clone.Details[k] = v
	}
	clone.Details[key] = value
	return &clone
}

func newError(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Unauthorized reports a missing or rejected credential. The message is
// the same for every cause.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "Unauthorized"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// InvalidToken wraps a credential verification failure as Unauthorized.
func InvalidToken(err error) *ServiceError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, "Unauthorized", err)
}

// Validation reports malformed client input. field may be empty when the
// failure is not attributable to a single field.
func Validation(field, message string) *ServiceError {
	e := newError(CodeValidation, http.StatusBadRequest, message, nil)
	if field != "" {
		return e.WithDetails("field", field)
	}
	return e
}

// NotFound reports an absent resource.
func NotFound(message string) *ServiceError {
	if message == "" {
		message = "Not found"
	}
	return newError(CodeNotFound, http.StatusNotFound, message, nil)
}

// MethodNotAllowed reports an unsupported HTTP method.
func MethodNotAllowed(method string) *ServiceError {
	return newError(CodeMethodNotAllowed, http.StatusMethodNotAllowed, fmt.Sprintf("Method %s not allowed", method), nil)
}

// Store reports a failure returned by the persistent store. Rejections by the
// store (status < 500) are client errors carrying the store's message.
func Store(status int, message string, err error) *ServiceError {
	if message == "" {
		message = "Store request failed"
	}
	if status > 0 && status < http.StatusInternalServerError {
		return newError(CodeInternal, http.StatusBadRequest, message, err)
	}
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// Internal reports an unexpected failure.
func Internal(message string, err error) *ServiceError {
	if message == "" {
		message = "Internal server error"
	}
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// Config reports missing or invalid server configuration.
func Config(message string) *ServiceError {
	return newError(CodeConfig, http.StatusInternalServerError, message, nil)
}

// RateLimitExceeded reports that the caller exceeded its request budget.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests, "Too many requests", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// GetServiceError extracts a *ServiceError from err's chain.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}

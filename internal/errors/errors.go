// Package errors defines the service error taxonomy shared by the service
// layer and the HTTP API. Handlers map a ServiceError to its HTTP status;
// anything else is reported as an opaque internal error.
package errors

import (
	stderrors "errors"
	"net/http"
)

// Code identifies an error category.
type Code string

const (
	CodeNotFound           Code = "NOT_FOUND"
	CodeFailedPrecondition Code = "FAILED_PRECONDITION"
	CodeConflict           Code = "CONFLICT"
	CodeValidation         Code = "VALIDATION"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeInternal           Code = "INTERNAL"
)

// ServiceError is an error with a category, HTTP status and optional details.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}

	cause error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.cause }

// WithDetails attaches detail fields and returns the error for chaining.
func (e *ServiceError) WithDetails(details map[string]interface{}) *ServiceError {
	e.Details = details
	return e
}

// NotFound reports a missing resource. It is also used when the caller lacks
// access, so non-existence and non-ownership are indistinguishable.
func NotFound(message string) *ServiceError {
	return &ServiceError{Code: CodeNotFound, Message: message, HTTPStatus: http.StatusNotFound}
}

// FailedPrecondition reports a request that is well-formed but cannot proceed
// in the current state.
func FailedPrecondition(message string) *ServiceError {
	return &ServiceError{Code: CodeFailedPrecondition, Message: message, HTTPStatus: http.StatusPreconditionFailed}
}

// Conflict reports a uniqueness or concurrency conflict.
func Conflict(message string) *ServiceError {
	return &ServiceError{Code: CodeConflict, Message: message, HTTPStatus: http.StatusConflict}
}

// Validation reports invalid input with per-field violations.
func Validation(message string, violations []string) *ServiceError {
	err := &ServiceError{Code: CodeValidation, Message: message, HTTPStatus: http.StatusBadRequest}
	if len(violations) > 0 {
		err.Details = map[string]interface{}{"violations": violations}
	}
	return err
}

// Unauthorized reports missing or invalid credentials.
func Unauthorized(message string) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// RateLimited reports a throttled request.
func RateLimited(message string) *ServiceError {
	return &ServiceError{Code: CodeRateLimited, Message: message, HTTPStatus: http.StatusTooManyRequests}
}

// Internal wraps an unexpected failure. The cause is logged, never exposed.
func Internal(message string, cause error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, cause: cause}
}

// GetServiceError extracts a ServiceError from err, if any.
func GetServiceError(err error) (*ServiceError, bool) {
	var svcErr *ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}

package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// TransientService indicates the generation service is temporarily unable to serve
	TransientService ErrorCode = "TRANSIENT_SERVICE"
	// MalformedResponse indicates the tracker returned a body of unexpected shape
	MalformedResponse ErrorCode = "MALFORMED_RESPONSE"
	// UnknownHierarchyLevel indicates an issue type missing from the level table
	UnknownHierarchyLevel ErrorCode = "UNKNOWN_HIERARCHY_LEVEL"
	// RemoteError indicates the tracker or generation service answered with an error status
	RemoteError ErrorCode = "REMOTE_ERROR"
	// NotFound indicates the requested issue doesn't exist
	NotFound ErrorCode = "NOT_FOUND"
	// InvalidInput indicates a bad request parameter
	InvalidInput ErrorCode = "INVALID_INPUT"
	// Unauthorized indicates missing or invalid credentials
	Unauthorized ErrorCode = "UNAUTHORIZED"
	// RateLimited indicates too many requests from one API key
	RateLimited ErrorCode = "RATE_LIMITED"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// Error is an error with a stable code, a message and an optional cause
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new coded error
func New(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Newf creates a new coded error without a cause using a format string
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or InternalError
// when there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return InternalError
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.cause
	}
	return false
}

// IsMalformed reports whether err is a malformed tracker response
func IsMalformed(err error) bool {
	return HasCode(err, MalformedResponse)
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return HasCode(err, NotFound)
}

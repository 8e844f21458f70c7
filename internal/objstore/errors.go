package objstore

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is an S3 error code.
type ErrorCode string

const (
	ErrCodeNoSuchBucket ErrorCode = "NoSuchBucket"
	ErrCodeNoSuchKey    ErrorCode = "NoSuchKey"
	ErrCodeNotSupported ErrorCode = "NotSupported"
	ErrCodeInternal     ErrorCode = "InternalError"
	ErrCodeInvalidArg   ErrorCode = "InvalidArgument"
	ErrCodeSlowDown     ErrorCode = "SlowDown"
)

// Error is a protocol-level error. Every failed store operation returns
// one, so the front end can always answer with a well-formed response.
type Error struct {
	Code     ErrorCode
	Message  string
	Resource string // bucket or key the error refers to
}

func (e *Error) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Resource)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Status returns the HTTP status code of the error.
func (e *Error) Status() int {
	switch e.Code {
	case ErrCodeNoSuchBucket, ErrCodeNoSuchKey:
		return http.StatusNotFound
	case ErrCodeNotSupported:
		return http.StatusNotImplemented
	case ErrCodeInvalidArg:
		return http.StatusBadRequest
	case ErrCodeSlowDown:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsCode reports whether err is an *Error with code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// AsError converts any error into an *Error. Errors that are not already
// protocol errors become InternalError with a generic message.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: ErrCodeInternal, Message: "We encountered an internal error. Please try again."}
}

func noSuchBucket(bucket string) *Error {
	return &Error{Code: ErrCodeNoSuchBucket, Message: "The specified bucket does not exist", Resource: bucket}
}

func noSuchKey(key string) *Error {
	return &Error{Code: ErrCodeNoSuchKey, Message: "The specified key does not exist.", Resource: key}
}

// NotSupported is returned by every mutating operation.
func NotSupported(op string) *Error {
	return &Error{Code: ErrCodeNotSupported, Message: op + " is not supported by this read-only store"}
}

// InvalidArgument reports a malformed request parameter.
func InvalidArgument(name, value string) *Error {
	return &Error{Code: ErrCodeInvalidArg, Message: fmt.Sprintf("invalid value %q for %s", value, name), Resource: name}
}

// SlowDown is returned when the request rate limit is exceeded.
func SlowDown() *Error {
	return &Error{Code: ErrCodeSlowDown, Message: "Please reduce your request rate."}
}

package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while driving sinks.
//
// Evaluation failures are not wrapped; they surface as *ir.Error with the
// position of the failing expression.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Table names the affected table.
	Table string

	// RowNum is the row event being generated when the error occurred.
	RowNum int64

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeSink indicates a sink rejected a write.
	ErrCodeSink RuntimeErrorCode = "SINK_FAILED"

	// ErrCodeQuotaExceeded indicates a row event produced more occurrences
	// than the configured limit.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Table != "" {
		msg = fmt.Sprintf("%s (table=%s, row=%d)", msg, e.Table, e.RowNum)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsSinkError returns true if the error is a sink failure.
// Uses errors.As to handle wrapped errors.
func IsSinkError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeSink
	}
	return false
}

// IsQuotaError returns true if the error is a quota exceeded error.
// Uses errors.As to handle wrapped errors.
func IsQuotaError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeQuotaExceeded
	}
	return false
}

func newSinkError(op, table string, rowNum int64, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeSink,
		Message: op + " failed",
		Table:   table,
		RowNum:  rowNum,
		Err:     err,
	}
}

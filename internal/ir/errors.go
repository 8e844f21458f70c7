package ir

import (
	"errors"
	"fmt"
)

// Pos is a source position inside a template file.
// The zero value means the position is unknown.
type Pos struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// IsValid reports whether the position carries line information.
func (p Pos) IsValid() bool {
	return p.Line > 0
}

func (p Pos) String() string {
	if !p.IsValid() {
		return "-"
	}
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// ErrorCode categorizes evaluation and template errors.
type ErrorCode string

const (
	// ErrCodeType indicates an argument had the wrong kind of value.
	ErrCodeType ErrorCode = "EVAL_TYPE"

	// ErrCodeDomain indicates an argument was outside a builtin's domain.
	ErrCodeDomain ErrorCode = "EVAL_DOMAIN"

	// ErrCodeUndefined indicates a reference to an unknown function or table.
	ErrCodeUndefined ErrorCode = "UNDEFINED_REFERENCE"

	// ErrCodeInvalidCount indicates a fan-out count was not a non-negative integer.
	ErrCodeInvalidCount ErrorCode = "INVALID_COUNT"

	// ErrCodeCycle indicates the derived-table graph contains a cycle.
	ErrCodeCycle ErrorCode = "CYCLIC_DERIVATION"

	// ErrCodeArity indicates a schema and its row expression disagree in length.
	ErrCodeArity ErrorCode = "ARITY_MISMATCH"

	// ErrCodeTemplate indicates a structurally invalid template.
	ErrCodeTemplate ErrorCode = "INVALID_TEMPLATE"
)

// Error is the position-annotated error produced by template construction
// and expression evaluation.
type Error struct {
	Code    ErrorCode
	Message string
	Pos     Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s: %s", e.Pos, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf creates an Error at pos with a formatted message.
func Errorf(code ErrorCode, pos Pos, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Pos: pos}
}

// IsCode reports whether err (or any error it wraps) is an *Error with code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

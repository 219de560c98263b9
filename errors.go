package stonebed

import (
	"fmt"
)

// ErrorType classifies stonebed errors.
type ErrorType int

const (
	// ErrOperational is an engine failure not attributable to caller misuse.
	ErrOperational ErrorType = iota
	// ErrProgramming is caller-detectable misuse, such as an append batch
	// whose columns do not match the target table.
	ErrProgramming
	// ErrUnsupportedType is an unknown engine type tag or an array type
	// with no engine equivalent.
	ErrUnsupportedType
)

// Error is a stonebed-specific error type.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

// Error returns the error message.
func (e *Error) Error() string {
	return fmt.Sprintf("stonebed: %s", e.Message)
}

// NewError creates a new Error.
func NewError(typ ErrorType, message string) *Error {
	return &Error{
		Type:    typ,
		Message: message,
	}
}

// Errorf creates a new Error with a formatted message.
func Errorf(typ ErrorType, format string, args ...interface{}) *Error {
	return NewError(typ, fmt.Sprintf(format, args...))
}

// IsError checks if an error is of a specific type.
func IsError(err error, typ ErrorType) bool {
	sbErr, ok := err.(*Error)
	if !ok {
		return false
	}
	return sbErr.Type == typ
}

// Sentinel errors for lifecycle misuse.
var (
	ErrSessionClosed   = NewError(ErrOperational, "session is closed")
	ErrResultCleaned   = NewError(ErrOperational, "result has been cleaned up")
	ErrStatementClosed = NewError(ErrOperational, "statement is closed")
)

package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the module.
type ErrorCode string

// Record codec error codes
const (
	ErrFieldConversion   ErrorCode = "FIELD_CONVERSION"
	ErrMissingField      ErrorCode = "MISSING_FIELD"
	ErrMissingPrimaryKey ErrorCode = "MISSING_PRIMARY_KEY"
)

// Backend error codes
const (
	ErrBackendIO    ErrorCode = "BACKEND_IO"
	ErrRowDecode    ErrorCode = "ROW_DECODE"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithField records the field the error refers to.
func (e *Error) WithField(name string) *Error {
	e.Field = name
	return e
}

// GetErrorCode extracts the outermost error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether any error in the chain carries code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// MissingField reports a field absent from a field map.
func MissingField(name string) *Error {
	return NewError(ErrMissingField, "missing field "+name).WithField(name)
}

// FieldConversion reports a field whose stored value could not be converted.
func FieldConversion(name string, cause error) *Error {
	return NewError(ErrFieldConversion, "convert "+name).WithField(name).WithCause(cause)
}

// MissingPrimaryKey reports an operation that needs a key the record lacks.
func MissingPrimaryKey(op string) *Error {
	return NewError(ErrMissingPrimaryKey, op+": missing primary key")
}

// BackendIO wraps a storage failure.
func BackendIO(op string, cause error) *Error {
	return NewError(ErrBackendIO, op).WithCause(cause)
}

// RowDecode reports a stored row that could not be decoded.
func RowDecode(table string, cause error) *Error {
	return NewError(ErrRowDecode, "decode row of "+table).WithCause(cause)
}

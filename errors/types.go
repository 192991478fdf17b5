package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// Instance errors
	ErrCodeInstanceNotFound  ErrorCode = "INSTANCE_NOT_FOUND"
	ErrCodeInstanceInactive  ErrorCode = "INSTANCE_INACTIVE"
	ErrCodeInstanceDuplicate ErrorCode = "INSTANCE_DUPLICATE"

	// Remote execution errors
	ErrCodeTransport              ErrorCode = "TRANSPORT_ERROR"
	ErrCodeLaunchFailed           ErrorCode = "LAUNCH_FAILED"
	ErrCodeCommandFailed          ErrorCode = "COMMAND_FAILED"
	ErrCodeReconciliationMismatch ErrorCode = "RECONCILIATION_MISMATCH"

	// Session errors
	ErrCodeNoSession   ErrorCode = "NO_SESSION"
	ErrCodeStateLocked ErrorCode = "STATE_LOCKED"

	// General errors
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
)

// RexError represents a structured error with context
type RexError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *RexError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *RexError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *RexError) WithDetail(key string, value interface{}) *RexError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *RexError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new RexError
func New(code ErrorCode, message string) *RexError {
	return &RexError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a RexError
func Wrap(err error, code ErrorCode, message string) *RexError {
	return &RexError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific RexError code
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	rexErr, ok := err.(*RexError)
	if !ok {
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	return rexErr.Code == code
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	rexErr, ok := err.(*RexError)
	if !ok {
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return rexErr.Code
}

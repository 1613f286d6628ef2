// Package qgemm structured error types for dispatch and process-state failures
package qgemm

import (
	"fmt"

	"github.com/lowbit-labs/qgemm/kernel"
)

// ErrorType represents categories of errors
type ErrorType int

const (
	// Invalid argument errors (dimensions, strides, thread counts)
	ErrTypeInvalidArg ErrorType = iota
	// Malformed or unrecognized weight blobs
	ErrTypeInvalidWeightFormat
	// Kernel invocations that returned a non-success status
	ErrTypeKernelFailed
	// Operations called in the wrong state (e.g. stopping an idle stopwatch)
	ErrTypeInvalidState
)

// String returns the error type as a string
func (t ErrorType) String() string {
	switch t {
	case ErrTypeInvalidArg:
		return "InvalidArgument"
	case ErrTypeInvalidWeightFormat:
		return "InvalidWeightFormat"
	case ErrTypeKernelFailed:
		return "KernelExecutionFailed"
	case ErrTypeInvalidState:
		return "InvalidState"
	default:
		return "Unknown"
	}
}

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Op      string        // Operation that failed
	Message string        // Human-readable message
	Err     error         // Underlying error if any
	Status  kernel.Status // Kernel status for ErrTypeKernelFailed
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("qgemm %s error in %s: %s (caused by: %v)",
			e.Type.String(), e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("qgemm %s error in %s: %s", e.Type.String(), e.Op, e.Message)
}

// Unwrap allows error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Common error constructors

// NewInvalidArgError creates an invalid argument error
func NewInvalidArgError(op string, message string) error {
	return &Error{
		Type:    ErrTypeInvalidArg,
		Op:      op,
		Message: message,
	}
}

// NewInvalidWeightFormatError creates a malformed-blob error
func NewInvalidWeightFormatError(op string, message string, err error) error {
	return &Error{
		Type:    ErrTypeInvalidWeightFormat,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewKernelFailedError creates an error carrying a kernel status code
func NewKernelFailedError(op string, kernelName string, status kernel.Status) error {
	return &Error{
		Type:    ErrTypeKernelFailed,
		Op:      op,
		Message: fmt.Sprintf("kernel %s returned %s", kernelName, status),
		Status:  status,
	}
}

// NewInvalidStateError creates a wrong-state error
func NewInvalidStateError(op string, message string) error {
	return &Error{
		Type:    ErrTypeInvalidState,
		Op:      op,
		Message: message,
	}
}

// IsInvalidArgError checks if an error is an invalid argument error
func IsInvalidArgError(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == ErrTypeInvalidArg
	}
	return false
}

// IsInvalidWeightFormatError checks if an error is a weight format error
func IsInvalidWeightFormatError(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == ErrTypeInvalidWeightFormat
	}
	return false
}

// IsKernelFailedError checks if an error is a kernel execution error
func IsKernelFailedError(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == ErrTypeKernelFailed
	}
	return false
}

// IsInvalidStateError checks if an error is a wrong-state error
func IsInvalidStateError(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == ErrTypeInvalidState
	}
	return false
}

// Package errors defines the structured error type and sentinel errors used
// across the conversion pipeline, plus a categorizer that maps arbitrary
// errors to stable machine-readable codes for event payloads.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates that the input document could not be parsed
	ErrInvalidInput = errors.New("invalid input document")

	// ErrInvalidConfig indicates that a component was constructed with bad configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrOutputUnwritable indicates that the output file could not be created or written
	ErrOutputUnwritable = errors.New("output is not writable")

	// ErrLoadFailed indicates that the bulk load into the target table failed
	ErrLoadFailed = errors.New("bulk load failed")

	// ErrUploadFailed indicates that the artifact upload to blob storage failed
	ErrUploadFailed = errors.New("artifact upload failed")

	// ErrPublishFailed indicates that a run event could not be published
	ErrPublishFailed = errors.New("publish failed")
)

// Error represents a structured pipeline error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsInvalidInput checks if an error originated from input parsing
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsLoadFailure checks if an error originated from the bulk loader
func IsLoadFailure(err error) bool {
	return errors.Is(err, ErrLoadFailed)
}

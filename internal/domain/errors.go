// Package domain provides the advisor's core types, ports and error categories.
package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind represents the category of an advisor failure.
type ErrorKind string

const (
	// ErrorKindConfiguration indicates required settings are absent.
	ErrorKindConfiguration ErrorKind = "configuration"

	// ErrorKindConstruction indicates a client, embedder or index failed to initialise.
	ErrorKindConstruction ErrorKind = "construction"

	// ErrorKindRetrieval indicates embedding or evidence search failed.
	ErrorKindRetrieval ErrorKind = "retrieval"

	// ErrorKindGeneration indicates the generative backend failed.
	ErrorKindGeneration ErrorKind = "generation"

	// ErrorKindTimeout indicates the backend did not answer in time.
	ErrorKindTimeout ErrorKind = "timeout"

	// ErrorKindLogging indicates the interaction log could not be written.
	ErrorKindLogging ErrorKind = "logging"

	// ErrorKindInvalidInput indicates a malformed request at the HTTP edge.
	ErrorKindInvalidInput ErrorKind = "invalid_input"
)

// AdvisorError is a categorised failure. Message is human-readable and is the
// text surfaced in error-path answers.
type AdvisorError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AdvisorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying cause.
func (e *AdvisorError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the status an HTTP edge should use for this error.
func (e *AdvisorError) HTTPStatusCode() int {
	switch e.Kind {
	case ErrorKindInvalidInput:
		return http.StatusBadRequest
	case ErrorKindConfiguration, ErrorKindConstruction:
		return http.StatusServiceUnavailable
	case ErrorKindTimeout:
		return http.StatusGatewayTimeout
	case ErrorKindRetrieval, ErrorKindGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a categorised error.
func NewError(kind ErrorKind, message string, cause error) *AdvisorError {
	return &AdvisorError{Kind: kind, Message: message, Err: cause}
}

// ErrConfiguration creates a configuration error.
func ErrConfiguration(message string) *AdvisorError {
	return NewError(ErrorKindConfiguration, message, nil)
}

// ErrConstruction creates a construction error.
func ErrConstruction(message string, cause error) *AdvisorError {
	return NewError(ErrorKindConstruction, message, cause)
}

// ErrRetrieval creates a retrieval error.
func ErrRetrieval(message string, cause error) *AdvisorError {
	return NewError(ErrorKindRetrieval, message, cause)
}

// ErrGeneration creates a generation error. Context deadline expiry is
// reported as a timeout instead.
func ErrGeneration(message string, cause error) *AdvisorError {
	if errors.Is(cause, context.DeadlineExceeded) {
		return NewError(ErrorKindTimeout, message, cause)
	}
	return NewError(ErrorKindGeneration, message, cause)
}

// ErrLogging creates a logging error.
func ErrLogging(message string, cause error) *AdvisorError {
	return NewError(ErrorKindLogging, message, cause)
}

// ErrInvalidInput creates an invalid input error.
func ErrInvalidInput(message string) *AdvisorError {
	return NewError(ErrorKindInvalidInput, message, nil)
}

// KindOf reports the category of err, or "" when it carries none.
func KindOf(err error) ErrorKind {
	var ae *AdvisorError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	return ""
}

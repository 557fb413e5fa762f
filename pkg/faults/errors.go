// Package faults defines the classified error type shared by the OpenFleet core packages.
// Expected conditions (unknown ids, terminal workflows, malformed scoring input) and
// delegated worker failures are reported as *Error values so callers can branch on Kind
// with errors.As or the Is* helpers.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies an error for caller handling.
type Kind string

const (
	// KindNotFound indicates an unknown workflow, worker, or vehicle id.
	KindNotFound Kind = "not_found"

	// KindAlreadyTerminal indicates a mutation was attempted on a completed or failed workflow.
	KindAlreadyTerminal Kind = "already_terminal"

	// KindInvalidInput indicates malformed input, such as a missing sensor snapshot.
	KindInvalidInput Kind = "invalid_input"

	// KindWorkerFailure wraps an error surfaced by a delegated worker call.
	KindWorkerFailure Kind = "worker_failure"
)

// Error represents a classified error with context.
type Error struct {
	// Kind is the error classification.
	Kind Kind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the id of the workflow, worker, or vehicle involved, if any.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	switch {
	case e.Resource != "" && e.Operation != "":
		msg += fmt.Sprintf(" (resource=%s, operation=%s)", e.Resource, e.Operation)
	case e.Resource != "":
		msg += fmt.Sprintf(" (resource=%s)", e.Resource)
	case e.Operation != "":
		msg += fmt.Sprintf(" (operation=%s)", e.Operation)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind and code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// NewNotFoundError creates a new not-found error.
func NewNotFoundError(message string, err error) *Error {
	return &Error{Kind: KindNotFound, Message: message, Code: ErrCodeNotFound, Err: err}
}

// NewAlreadyTerminalError creates a new already-terminal error.
func NewAlreadyTerminalError(message string, err error) *Error {
	return &Error{Kind: KindAlreadyTerminal, Message: message, Code: ErrCodeAlreadyTerminal, Err: err}
}

// NewInvalidInputError creates a new invalid-input error.
func NewInvalidInputError(message string, err error) *Error {
	return &Error{Kind: KindInvalidInput, Message: message, Code: ErrCodeValidation, Err: err}
}

// NewWorkerFailure wraps an error returned by a worker.
func NewWorkerFailure(message string, err error) *Error {
	return &Error{Kind: KindWorkerFailure, Message: message, Code: ErrCodeWorkerFailed, Err: err}
}

// WithResource adds resource context to an error.
func (e *Error) WithResource(id string) *Error {
	e.Resource = id
	return e
}

// WithOperation adds operation context to an error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithCode overrides the error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HasKind reports whether any *Error in err's chain is classified as kind.
func HasKind(err error, kind Kind) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// IsNotFound returns true if any error in the chain is classified as not found.
func IsNotFound(err error) bool {
	return HasKind(err, KindNotFound)
}

// IsAlreadyTerminal returns true if any error in the chain is classified as already terminal.
func IsAlreadyTerminal(err error) bool {
	return HasKind(err, KindAlreadyTerminal)
}

// IsInvalidInput returns true if any error in the chain is classified as invalid input.
func IsInvalidInput(err error) bool {
	return HasKind(err, KindInvalidInput)
}

// IsWorkerFailure returns true if any error in the chain is classified as a worker failure.
func IsWorkerFailure(err error) bool {
	return HasKind(err, KindWorkerFailure)
}

// ResourceOf returns the resource id attached to the first *Error in err's chain.
func ResourceOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Resource
	}
	return ""
}

// Common error codes.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeAlreadyTerminal = "ALREADY_TERMINAL"
	ErrCodeWorkerFailed    = "WORKER_FAILED"
	ErrCodeWorkerMismatch  = "WORKER_MISMATCH"
)

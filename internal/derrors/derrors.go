// Package derrors defines the error taxonomy shared by the memory engine.
//
// Every error carries a stable Code so callers (MCP handlers, the CLI)
// can branch on the failure class without string matching. Storage
// faults keep the underlying driver error reachable through Unwrap.
package derrors

import (
	"errors"
	"fmt"
)

// Code identifies a failure class.
type Code string

const (
	// CodeNotInitialized: an operation ran before Initialize completed.
	CodeNotInitialized Code = "NOT_INITIALIZED"
	// CodeStorageFailure: I/O or constraint failure in the persistence layer.
	CodeStorageFailure Code = "STORAGE_FAILURE"
	// CodeNotFound: a referenced memory, member, rule or request does not exist.
	CodeNotFound Code = "NOT_FOUND"
	// CodePermissionDenied: the caller lacks the required capability.
	CodePermissionDenied Code = "PERMISSION_DENIED"
	// CodeInvalidTransition: an access request left the pending state already.
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	// CodeInvalidInput: the caller supplied a malformed argument.
	CodeInvalidInput Code = "INVALID_INPUT"
)

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Code    Code   `json:"code"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Code)
	if e.Op != "" {
		prefix += " " + e.Op
	}
	switch {
	case e.Message != "" && e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.cause)
	case e.cause != nil:
		return fmt.Sprintf("%s: %v", prefix, e.cause)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	default:
		return prefix
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code. This lets
// callers write errors.Is(err, derrors.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Op == "" && t.Message == ""
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotInitialized    = &Error{Code: CodeNotInitialized}
	ErrStorageFailure    = &Error{Code: CodeStorageFailure}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrPermissionDenied  = &Error{Code: CodePermissionDenied}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition}
	ErrInvalidInput      = &Error{Code: CodeInvalidInput}
)

// NotInitialized reports that op ran before the store was initialized.
func NotInitialized(op string) error {
	return &Error{Code: CodeNotInitialized, Op: op, Message: "store not initialized"}
}

// Storage wraps a persistence fault. A nil err yields nil, and an error
// that already carries a code is returned unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Code: CodeStorageFailure, Op: op, cause: err}
}

// NotFound reports a missing entity of the given kind.
func NotFound(kind, id string) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %q not found", kind, id)}
}

// PermissionDenied reports a refused action.
func PermissionDenied(actor, action, resource string) error {
	return &Error{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("%s may not %s %s", actor, action, resource),
	}
}

// InvalidTransition reports an illegal state change.
func InvalidTransition(kind, id, from, to string) error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("%s %q cannot move from %s to %s", kind, id, from, to),
	}
}

// InvalidInput reports a malformed argument.
func InvalidInput(format string, args ...any) error {
	return &Error{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code carried by err, or "" when err has none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

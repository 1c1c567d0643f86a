// Package errclass defines the stable, machine-readable error classes used
// across autobackup.
package errclass

import "fmt"

// Error is a stable error class with an optional message and cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Is reports whether target carries the same class code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithMessage returns a new Error with the same Code but a specific message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg}
}

// WithMessagef returns a new Error with a formatted message.
func (e *Error) WithMessagef(format string, args ...any) *Error {
	return &Error{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause to a copy of e.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Cause: cause}
}

// Stable error classes.
var (
	// Per-file errors. Reported and retried on the next poll cycle.
	ErrUnreadable  = &Error{Code: "E_UNREADABLE"}
	ErrWriteFailed = &Error{Code: "E_WRITE_FAILED"}

	// Persisted state.
	ErrStateCorrupt  = &Error{Code: "E_STATE_CORRUPT"}
	ErrStateNotFound = &Error{Code: "E_STATE_NOT_FOUND"}

	// Startup.
	ErrInvalidDirectory = &Error{Code: "E_INVALID_DIRECTORY"}
	ErrLockConflict     = &Error{Code: "E_LOCK_CONFLICT"}
	ErrLockNotHeld      = &Error{Code: "E_LOCK_NOT_HELD"}

	ErrNameInvalid      = &Error{Code: "E_NAME_INVALID"}
	ErrNotTracked       = &Error{Code: "E_NOT_TRACKED"}
	ErrArtifactMissing  = &Error{Code: "E_ARTIFACT_MISSING"}
	ErrArtifactMismatch = &Error{Code: "E_ARTIFACT_MISMATCH"}
	ErrAuditChainBroken = &Error{Code: "E_AUDIT_CHAIN_BROKEN"}
)

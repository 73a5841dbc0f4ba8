package errs

import (
	"errors"
	"fmt"
)

// Kind classifies control-plane errors
type Kind string

const (
	KindToolNotFound         Kind = "tool_not_found"
	KindAdapterApplyFailed   Kind = "adapter_apply_failed"
	KindInvalidIntentState   Kind = "invalid_intent_state"
	KindInvalidToken         Kind = "invalid_token"
	KindTokenExpired         Kind = "token_expired"
	KindQuotaExceeded        Kind = "quota_exceeded"
	KindBackupSnapshotFailed Kind = "backup_snapshot_failed"
	KindNotFound             Kind = "not_found"
	KindInvalidState         Kind = "invalid_state"
	KindInvalidArgument      Kind = "invalid_argument"
	KindAlreadyExists        Kind = "already_exists"
	KindTimedOut             Kind = "timed_out"
)

// Error is the typed error variant carried through the orchestration core.
// Details are structured and end up in audit rows and API responses.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail returns the error with one more detail attached
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an Error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around a cause
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// As returns the first *Error in the chain
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in the chain, or "" if none
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// DetailsOf returns the details of the first *Error in the chain
func DetailsOf(err error) map[string]any {
	if e, ok := As(err); ok {
		return e.Details
	}
	return nil
}

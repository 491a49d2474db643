package idb

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// DOM error names surfaced by the engine.
const (
	InvalidStateErr        = "InvalidStateError"
	NotFoundErr            = "NotFoundError"
	TransactionInactiveErr = "TransactionInactiveError"
	AbortErr               = "AbortError"
	ConstraintErr          = "ConstraintError"
	DataErr                = "DataError"
	DataCloneErr           = "DataCloneError"
	ReadOnlyErr            = "ReadOnlyError"
	InvalidAccessErr       = "InvalidAccessError"
	VersionErr             = "VersionError"
	UnknownErr             = "UnknownError"
)

// Error is a named failure in the style of a DOMException.
//
// Two Errors match under errors.Is when their names are equal and the
// target carries no message, so the package sentinels match any instance:
//
//	errors.Is(err, idb.ErrNotFound)
type Error struct {
	Name    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// Is implements errors.Is matching by name.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message != "" && t.Message != e.Message {
		return false
	}
	return t.Name == e.Name
}

// Sentinels for errors.Is.
var (
	ErrInvalidState        = &Error{Name: InvalidStateErr}
	ErrNotFound            = &Error{Name: NotFoundErr}
	ErrTransactionInactive = &Error{Name: TransactionInactiveErr}
	ErrAbort               = &Error{Name: AbortErr}
	ErrConstraint          = &Error{Name: ConstraintErr}
	ErrData                = &Error{Name: DataErr}
	ErrDataClone           = &Error{Name: DataCloneErr}
	ErrReadOnly            = &Error{Name: ReadOnlyErr}
	ErrInvalidAccess       = &Error{Name: InvalidAccessErr}
	ErrVersion             = &Error{Name: VersionErr}
	ErrUnknown             = &Error{Name: UnknownErr}
)

// NewError creates a named error. Operations supplied by collaborators
// return these to fail a request with a specific name.
func NewError(name, format string, args ...any) *Error {
	return &Error{Name: name, Message: fmt.Sprintf(format, args...)}
}

// NameOf returns the DOM name of err. Errors that carry no *Error in their
// chain are reported as UnknownError; nil yields "".
func NameOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Name
	}
	return UnknownErr
}

// IsName reports whether err carries an *Error with the given name.
func IsName(err error, name string) bool {
	return err != nil && NameOf(err) == name
}

// asDOMError converts an operation failure into the error recorded on an
// aborted transaction.
func asDOMError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Name: UnknownErr, Message: err.Error()}
}

package model

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the engine's failure classes.
type ErrorKind int

const (
	KindInvalidPosition ErrorKind = iota + 1
	KindInvalidRequirement
	KindNotFound
	KindStorageFailure
)

// Code is the machine readable name used in API error envelopes.
func (k ErrorKind) Code() string {
	switch k {
	case KindInvalidPosition:
		return "invalid_position"
	case KindInvalidRequirement:
		return "invalid_requirement"
	case KindNotFound:
		return "not_found"
	case KindStorageFailure:
		return "storage_failure"
	default:
		return "unknown"
	}
}

// Error is the closed error type returned by the domain packages.
// Maximal is set for KindInvalidPosition only.
type Error struct {
	Kind    ErrorKind
	Maximal int
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Code()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidPosition    = &Error{Kind: KindInvalidPosition}
	ErrInvalidRequirement = &Error{Kind: KindInvalidRequirement}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrStorageFailure     = &Error{Kind: KindStorageFailure}
)

// InvalidPosition reports a position outside [1, maximal].
func InvalidPosition(maximal int) error {
	return &Error{
		Kind:    KindInvalidPosition,
		Maximal: maximal,
		Msg:     fmt.Sprintf("position must be between 1 and %d", maximal),
	}
}

// InvalidRequirement reports a requirement outside [0, 100].
func InvalidRequirement(requirement int) error {
	return &Error{
		Kind: KindInvalidRequirement,
		Msg:  fmt.Sprintf("requirement %d is outside [0, 100]", requirement),
	}
}

// NotFound reports a missing entity.
func NotFound(what string, id any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("%s %v not found", what, id)}
}

// StorageFailure wraps an error from the storage collaborator.
// Errors that already carry a domain kind are returned unchanged.
func StorageFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: KindStorageFailure, Msg: op, Err: err}
}

// KindOf extracts the kind of err, or 0 when err is not a domain error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

// MaximalOf returns the valid upper bound carried by an InvalidPosition error.
func MaximalOf(err error) (int, bool) {
	var de *Error
	if errors.As(err, &de) && de.Kind == KindInvalidPosition {
		return de.Maximal, true
	}
	return 0, false
}

// Package verror implements the error taxonomy shared by every VoidMerge
// component: a fixed set of kinds plus an optional human-readable info
// string that each wrapping layer may append to, mirroring how the
// original implementation's ErrorExt::with_info chains context onto an
// error without discarding the cause.
package verror

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories a VoidMerge component may
// return. Callers branch on Kind, not on error strings.
type Kind int

const (
	// Internal covers anything that doesn't fit a more specific kind.
	Internal Kind = iota
	InvalidArgument
	PermissionDenied
	NotFound
	Timeout
	HeapExhausted
	GuestError
	StorageError
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case PermissionDenied:
		return "permission_denied"
	case NotFound:
		return "not_found"
	case Timeout:
		return "timeout"
	case HeapExhausted:
		return "heap_exhausted"
	case GuestError:
		return "guest_error"
	case StorageError:
		return "storage_error"
	default:
		return "internal"
	}
}

// Error is a VoidMerge error: a Kind, an optional wrapped cause, and an
// Info string describing what the component was doing when it failed.
// Info accumulates across wrapping layers instead of being replaced, so
// the outermost message reads like a call stack of intent.
type Error struct {
	Kind  Kind
	Info  string
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		if e.Info == "" {
			return e.Kind.String()
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Info)
	}
	if e.Info == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Info, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a bare Error of the given kind.
func New(kind Kind, info string) *Error {
	return &Error{Kind: kind, Info: info}
}

// Wrap attaches kind and info to an existing cause, preserving it for
// errors.Unwrap/errors.Is/errors.As chains.
func Wrap(kind Kind, info string, cause error) *Error {
	return &Error{Kind: kind, Info: info, cause: cause}
}

// WithInfo appends additional context to err. If err is already a *Error,
// the new info is prepended to the existing chain (innermost context
// stays innermost); otherwise a new Internal-kind Error wraps it.
func WithInfo(info string, err error) *Error {
	if err == nil {
		return nil
	}
	var ve *Error
	if errors.As(err, &ve) {
		return &Error{Kind: ve.Kind, Info: info, cause: ve}
	}
	return &Error{Kind: Internal, Info: info, cause: err}
}

// KindOf returns the Kind carried by err, or Internal if err is not (or
// does not wrap) a *Error.
func KindOf(err error) Kind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return Internal
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var ve *Error
	for errors.As(err, &ve) {
		if ve.Kind == kind {
			return true
		}
		err = ve.cause
		ve = nil
	}
	return false
}

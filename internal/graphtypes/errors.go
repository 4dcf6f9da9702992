package graphtypes

import (
	"errors"
	"fmt"
)

// Kind is the uniform error taxonomy carried through every layer of the core,
// per spec §7. Handlers switch on Kind rather than matching error strings.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidParameters
	KindNotFound
	KindConflict
	KindNotReady
	KindTimeout
	KindCircuitOpen
	KindRateLimited
	KindAuthDenied
	KindStorageTransient
	KindStorageCorruption
)

func (k Kind) String() string {
	switch k {
	case KindInvalidParameters:
		return "InvalidParameters"
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindNotReady:
		return "NotReady"
	case KindTimeout:
		return "Timeout"
	case KindCircuitOpen:
		return "CircuitOpen"
	case KindRateLimited:
		return "RateLimited"
	case KindAuthDenied:
		return "AuthDenied"
	case KindStorageTransient:
		return "StorageTransient"
	case KindStorageCorruption:
		return "StorageCorruption"
	default:
		return "Internal"
	}
}

// Error is the error type returned across component boundaries. Field is
// populated for KindInvalidParameters so callers can report which argument
// was at fault, per spec §7 ("Surface to caller with field name").
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %q)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, KindNotFound) style matching by comparing Kind
// against a sentinel *Error carrying only that Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given kind that wraps cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithField returns a copy of e with Field set, for InvalidParameters errors.
func (e *Error) WithField(field string) *Error {
	cp := *e
	cp.Field = field
	return &cp
}

// Sentinels usable with errors.Is(err, graphtypes.ErrNotFound) etc.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrNotReady          = &Error{Kind: KindNotReady}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrCircuitOpen       = &Error{Kind: KindCircuitOpen}
	ErrRateLimited       = &Error{Kind: KindRateLimited}
	ErrAuthDenied        = &Error{Kind: KindAuthDenied}
	ErrStorageTransient  = &Error{Kind: KindStorageTransient}
	ErrStorageCorruption = &Error{Kind: KindStorageCorruption}
	ErrInvalidParameters = &Error{Kind: KindInvalidParameters}
)

// KindOf extracts the Kind from err, defaulting to KindInternal when err is
// not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the HTTP layer can pick a status code
// without knowing which service produced it.
type Kind int

const (
	// Internal covers datastore outages, transaction conflicts and bugs.
	// Its message is never shown to clients.
	Internal Kind = iota
	Validation
	NotFound
	AuthorizationDenied
	Conflict
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case AuthorizationDenied:
		return "authorization_denied"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified failure with a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind and message, so a sentinel wrapped with
// extra context still satisfies errors.Is(err, ErrUnknownModule).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a sentinel, keeping the sentinel's kind and message.
func Wrap(sentinel *Error, err error) *Error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: err}
}

func Validationf(format string, args ...any) *Error {
	return New(Validation, format, args...)
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, format, args...)
}

func Conflictf(format string, args ...any) *Error {
	return New(Conflict, format, args...)
}

func Deniedf(format string, args ...any) *Error {
	return New(AuthorizationDenied, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Sentinels shared across services.
var (
	ErrUnknownModule         = New(NotFound, "unknown module")
	ErrInvalidClearance      = New(Validation, "invalid clearance level")
	ErrInvalidOrExpiredCode  = New(Validation, "invite code is invalid or expired")
	ErrInsufficientClearance = New(AuthorizationDenied, "insufficient clearance")
	ErrPermissionDenied      = New(AuthorizationDenied, "permission denied")
	ErrAlreadyMember         = New(Conflict, "user is already a member of this tenant")
	ErrNotMember             = New(AuthorizationDenied, "not a member of this tenant")
	ErrModuleInactive        = New(NotFound, "module is not active for this tenant")
)

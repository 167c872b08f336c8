package todo

import (
	"context"
	"errors"
)

// Kind classifies a failure so callers can react to it.
type Kind uint8

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindInvalid
	KindConflict
	KindTransport
)

var kindCodes = map[Kind]string{
	KindInternal:     "INTERNAL_SERVER_ERROR",
	KindUnauthorized: "UNAUTHORIZED",
	KindForbidden:    "FORBIDDEN",
	KindNotFound:     "NOT_FOUND",
	KindInvalid:      "BAD_REQUEST",
	KindConflict:     "CONFLICT",
	KindTransport:    "TRANSPORT_ERROR",
}

// String returns the wire code of the kind.
func (k Kind) String() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return kindCodes[KindInternal]
}

// ParseKind maps a wire code back to its Kind. Unknown codes are internal.
func ParseKind(code string) Kind {
	for k, c := range kindCodes {
		if c == code {
			return k
		}
	}
	return KindInternal
}

// Retryable reports whether repeating the same call may succeed.
func (k Kind) Retryable() bool {
	return k == KindTransport
}

// Error is a classified failure. Message is safe to show to a user; Err is
// the underlying cause and never leaves the process that produced it.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// NewError returns an *Error of the given kind.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same kind, so sentinel-style checks
// like errors.Is(err, &Error{Kind: KindNotFound}) work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// KindOf classifies err. Context cancellation and deadlines count as
// transport failures; anything unclassified is internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransport
	}
	return KindInternal
}

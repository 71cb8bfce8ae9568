package facetroute

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names the precondition a governance call failed. Every kind is
// a caller-side condition; nothing in this module retries on its own.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindRootZero: commit with the all-zero digest.
	KindRootZero
	// KindBadEpoch: commit epoch is not active epoch + 1.
	KindBadEpoch
	// KindNoPendingRoot: activate with nothing committed.
	KindNoPendingRoot
	// KindActivationNotReady: activate before the delay elapsed.
	KindActivationNotReady
	// KindInvalidProof: route/proof pair does not verify against the
	// active root.
	KindInvalidProof
	// KindFrozen: any mutating call after freeze. Permanent.
	KindFrozen
	// KindUnauthorized: the caller lacks the role for the operation.
	KindUnauthorized
)

var kindNames = [...]string{
	KindUnknown:            "Unknown",
	KindRootZero:           "RootZero",
	KindBadEpoch:           "BadEpoch",
	KindNoPendingRoot:      "NoPendingRoot",
	KindActivationNotReady: "ActivationNotReady",
	KindInvalidProof:       "InvalidProof",
	KindFrozen:             "FrozenError",
	KindUnauthorized:       "Unauthorized",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return Kind(k)
		}
	}
	return KindUnknown
}

// Error is a named, recoverable dispatcher outcome.
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	// Err is an optional cause, such as merkle.ErrMalformedProof.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("facetroute: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work
// with errors.Is regardless of Op and Reason.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrRootZero           = &Error{Kind: KindRootZero}
	ErrBadEpoch           = &Error{Kind: KindBadEpoch}
	ErrNoPendingRoot      = &Error{Kind: KindNoPendingRoot}
	ErrActivationNotReady = &Error{Kind: KindActivationNotReady}
	ErrInvalidProof       = &Error{Kind: KindInvalidProof}
	ErrFrozen             = &Error{Kind: KindFrozen}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
)

// NewError creates an *Error for op.
func NewError(kind Kind, op string, format string, args ...any) *Error {
	e := &Error{Kind: kind, Op: op}
	if format != "" {
		e.Reason = fmt.Sprintf(format, args...)
	}
	return e
}

// AsError checks whether err is (or wraps) an *Error and returns it.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindUnknown
}

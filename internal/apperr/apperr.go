// ABOUTME: Typed application errors shared by the store, services and transports
// ABOUTME: Classifies failures as validation, authorization, not-found or unavailable

package apperr

import (
	"errors"
	"fmt"
)

// Kind is the broad failure class. Transports map a Kind to a status code.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindUnavailable   Kind = "unavailable"
)

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Kind, and additionally on Code when the target carries one.
// This lets errors.Is(err, ErrValidation) hold for every validation failure
// while errors.Is(err, ErrEmptyMessage) only holds for that specific one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Kind sentinels
var (
	ErrValidation    = &Error{Kind: KindValidation, Message: "validation error"}
	ErrAuthorization = &Error{Kind: KindAuthorization, Message: "not authorized"}
	ErrNotFound      = &Error{Kind: KindNotFound, Message: "not found"}
	ErrUnavailable   = &Error{Kind: KindUnavailable, Message: "store unavailable"}
)

// Domain errors
var (
	ErrInvalidParticipants = &Error{Kind: KindValidation, Code: "invalid_participants", Message: "a conversation needs two distinct participants"}
	ErrEmptyMessage        = &Error{Kind: KindValidation, Code: "empty_message", Message: "message text is empty"}
	ErrInvalidCursor       = &Error{Kind: KindValidation, Code: "invalid_cursor", Message: "invalid cursor"}
	ErrInvalidPageSize     = &Error{Kind: KindValidation, Code: "invalid_page_size", Message: "page size out of range"}
	ErrNotAParticipant     = &Error{Kind: KindAuthorization, Code: "not_a_participant", Message: "sender is not a participant of the conversation"}
	ErrSenderMismatch      = &Error{Kind: KindAuthorization, Code: "sender_mismatch", Message: "sender does not match the acting identity"}
	ErrUnauthenticated     = &Error{Kind: KindAuthorization, Code: "unauthenticated", Message: "no acting identity"}
	ErrNotOwner            = &Error{Kind: KindAuthorization, Code: "not_owner", Message: "only the owner may modify this offer"}
	ErrIdentityMismatch    = &Error{Kind: KindAuthorization, Code: "identity_mismatch", Message: "request is for a different user"}
)

// New builds an error of the given kind.
func New(kind Kind, code, message string) error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, code, message string, cause error) error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

// Invalid reports a caller-fixable input problem.
func Invalid(format string, args ...any) error {
	return &Error{Kind: KindValidation, Code: "invalid_argument", Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing entity.
func NotFound(what string) error {
	return &Error{Kind: KindNotFound, Code: "not_found", Message: what + " not found"}
}

// Unavailable marks a transient backend failure. Only these are retried.
func Unavailable(message string, cause error) error {
	return &Error{Kind: KindUnavailable, Code: "unavailable", Message: message, Cause: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the Code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Code != "" {
			return e.Code
		}
		return string(e.Kind)
	}
	return ""
}

// MessageOf returns the user-facing message of the first *Error in err's
// chain, without any wrapped cause.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

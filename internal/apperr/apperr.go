// Package apperr defines the error taxonomy shared by the consistency engine
// and its transport adapters.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for boundary mapping.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// Codes narrow a Kind to a specific failure the caller can act on.
const (
	CodeEmptyInput          = "EmptyInput"
	CodeMalformedJSON       = "MalformedJSON"
	CodeNotAnArray          = "NotAnArray"
	CodeEmptyArray          = "EmptyArray"
	CodeSchemaViolation     = "SchemaViolation"
	CodeSourceNotAvailable  = "SourceNotAvailable"
	CodeActorProfileMissing = "ActorProfileMissing"
	CodeSlugExhausted       = "SlugExhausted"
	CodeCannotPinOwnComment = "CannotPinOwnComment"
	CodeNestedReply         = "NestedReply"
	CodeTooManyTags         = "TooManyTags"
	CodeEmptyBody           = "EmptyBody"
	CodeNoSteps             = "NoSteps"
)

// Error is a classified failure. Op names the operation that failed, Field
// carries the offending input path for validation failures.
type Error struct {
	Kind  Kind
	Op    string
	Code  string
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind and, when set on the target, by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t.Kind != "" || t.Code != ""
}

// WithCode sets the code on e and returns it.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// NotFound reports an absent or invisible entity.
func NotFound(op, msg string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: msg}
}

// Unauthorized reports a missing permission for op.
func Unauthorized(op, msg string) *Error {
	return &Error{Kind: KindUnauthorized, Op: op, Msg: msg}
}

// Validation reports malformed or out-of-contract input.
func Validation(op, code, field, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Code: code, Field: field, Msg: msg}
}

// Conflict reports an unresolvable collision.
func Conflict(op, code, msg string) *Error {
	return &Error{Kind: KindConflict, Op: op, Code: code, Msg: msg}
}

// Internal wraps a storage failure or invariant violation.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// Internalf builds an Internal error from a format string.
func Internalf(op, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code carried by err, if any.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// FieldOf returns the field path carried by err, if any.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

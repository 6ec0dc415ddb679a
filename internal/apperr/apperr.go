// Package apperr is the error taxonomy shared by services and handlers.
// Every error that reaches the HTTP layer is classified by Kind, which decides
// the status code and whether the message is safe to show to the client.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindCapacity
	KindAuthenticity
	KindNotFound
	KindConflict
	KindRateLimited
	KindUnauthorized
	KindForbidden
	KindUpstream
)

var kindCodes = map[Kind]string{
	KindInternal:     "INTERNAL_ERROR",
	KindValidation:   "VALIDATION_FAILED",
	KindCapacity:     "EVENT_FULL",
	KindAuthenticity: "SIGNATURE_MISMATCH",
	KindNotFound:     "NOT_FOUND",
	KindConflict:     "CONFLICT",
	KindRateLimited:  "RATE_LIMITED",
	KindUnauthorized: "UNAUTHORIZED",
	KindForbidden:    "FORBIDDEN",
	KindUpstream:     "SERVICE_UNAVAILABLE",
}

func (k Kind) String() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return kindCodes[KindInternal]
}

func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindCapacity, KindAuthenticity:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Msg is client-facing; Err carries the cause
// for logs and is never rendered.
type Error struct {
	Kind    Kind
	Code    string
	Msg     string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.CodeOrKind(), e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.CodeOrKind(), e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) CodeOrKind() string {
	if e.Code != "" {
		return e.Code
	}
	return e.Kind.String()
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// KindOf reports the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.CodeOrKind() == code
}

func Validation(format string, args ...any) *Error {
	return Newf(KindValidation, format, args...)
}

func Capacity(format string, args ...any) *Error {
	return Newf(KindCapacity, format, args...)
}

func Conflict(code, msg string) *Error {
	return New(KindConflict, msg).WithCode(code)
}

func NotFound(msg string) *Error {
	return New(KindNotFound, msg)
}

func Upstream(err error, msg string) *Error {
	return Wrap(KindUpstream, err, msg)
}

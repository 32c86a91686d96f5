// Package apperr defines the error type shared by the dispatch service and
// the HTTP layer.
//
// To report a missing record:
//
//	&apperr.Error{Code: apperr.ENotFound, Msg: "order not found"}
//
// To wrap an unexpected failure with the operation that hit it:
//
//	&apperr.Error{Code: apperr.EInternal, Op: "dispatch.AssignOrder", Err: err}
package apperr

import (
	"errors"
	"net/http"
	"strings"
)

const (
	EInternal        = "internal error"
	EInvalid         = "invalid"
	EUnauthorized    = "unauthorized"
	EForbidden       = "forbidden"
	ENotFound        = "not found"
	EConflict        = "conflict"
	ETooManyRequests = "too many requests"
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error carries a machine-readable code, a message safe to show to clients,
// the failing operation and the wrapped cause.
type Error struct {
	Code    string
	Msg     string
	Op      string
	Err     error
	Details []FieldError
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString("<" + e.Code + ">")
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the code of the outermost *Error in err's chain, or EInternal
// when there is none.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return EInternal
}

// Message returns the client-facing message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return http.StatusText(HTTPStatus(err))
}

// Details returns the field errors attached to err, if any.
func Details(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// HTTPStatus maps err's code to a response status.
func HTTPStatus(err error) int {
	switch Code(err) {
	case EInvalid:
		return http.StatusBadRequest
	case EUnauthorized:
		return http.StatusUnauthorized
	case EForbidden:
		return http.StatusForbidden
	case ENotFound:
		return http.StatusNotFound
	case EConflict:
		return http.StatusConflict
	case ETooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Invalid builds a validation error for a single field.
func Invalid(field, msg string) *Error {
	return &Error{
		Code:    EInvalid,
		Msg:     "Validation failed",
		Details: []FieldError{{Field: field, Message: msg}},
	}
}

// NotFound builds a not-found error naming the missing resource.
func NotFound(resource string) *Error {
	return &Error{Code: ENotFound, Msg: resource + " not found"}
}

// Conflict builds a conflict error.
func Conflict(msg string) *Error {
	return &Error{Code: EConflict, Msg: msg}
}

// Internal wraps an unexpected failure.
func Internal(op string, err error) *Error {
	return &Error{Code: EInternal, Op: op, Err: err}
}

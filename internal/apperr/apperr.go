// Package apperr defines the typed error taxonomy shared by every
// component. Components return these instead of bare errors so the HTTP
// boundary can map them to status codes without inspecting error strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error the way §7 of the specification does.
type Code string

const (
	CodeInvalidArgument Code = "invalid_argument"
	CodeUnauthenticated Code = "unauthenticated"
	CodePermissionDenied Code = "permission_denied"
	CodeNotFound         Code = "not_found"
	CodeConflict         Code = "conflict"
	CodePayloadTooLarge  Code = "payload_too_large"
	CodeTooManyRequests  Code = "too_many_requests"
	CodeInternal         Code = "internal"
)

var statusByCode = map[Code]int{
	CodeInvalidArgument:  http.StatusBadRequest,
	CodeUnauthenticated:  http.StatusUnauthorized,
	CodePermissionDenied: http.StatusForbidden,
	CodeNotFound:         http.StatusNotFound,
	CodeConflict:         http.StatusConflict,
	CodePayloadTooLarge:  http.StatusRequestEntityTooLarge,
	CodeTooManyRequests:  http.StatusTooManyRequests,
	CodeInternal:         http.StatusInternalServerError,
}

// Error is the typed error value every component boundary returns.
type Error struct {
	Code    Code
	Message string
	// Cause holds the underlying error for logging; it is never rendered
	// to the caller in production (§7: "message redacted in production").
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the status code §7 maps this code to.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func newErr(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

func InvalidArgument(msg string, args ...any) *Error {
	return newErr(CodeInvalidArgument, fmt.Sprintf(msg, args...), nil)
}

func Unauthenticated(msg string, args ...any) *Error {
	return newErr(CodeUnauthenticated, fmt.Sprintf(msg, args...), nil)
}

func PermissionDenied(msg string, args ...any) *Error {
	return newErr(CodePermissionDenied, fmt.Sprintf(msg, args...), nil)
}

func NotFound(msg string, args ...any) *Error {
	return newErr(CodeNotFound, fmt.Sprintf(msg, args...), nil)
}

func Conflict(msg string, args ...any) *Error {
	return newErr(CodeConflict, fmt.Sprintf(msg, args...), nil)
}

func PayloadTooLarge(msg string, args ...any) *Error {
	return newErr(CodePayloadTooLarge, fmt.Sprintf(msg, args...), nil)
}

func TooManyRequests(msg string, args ...any) *Error {
	return newErr(CodeTooManyRequests, fmt.Sprintf(msg, args...), nil)
}

// Internal wraps an unclassified error. Callers should not normally
// construct one directly from user input; cause carries the detail kept
// server-side.
func Internal(cause error) *Error {
	return newErr(CodeInternal, "internal error", cause)
}

// Is reports whether err is an *Error with the given code, unwrapping as
// needed.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

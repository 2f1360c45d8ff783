// Package errors is the typed error used across services. A Code decides the
// HTTP status, the public message and whether callers should retry.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeForbidden            Code = "FORBIDDEN"
	CodeNotFound             Code = "NOT_FOUND"
	CodeConflict             Code = "CONFLICT"
	CodeTransitionNotAllowed Code = "TRANSITION_NOT_ALLOWED"
	CodeMissingContext       Code = "MISSING_TRANSITION_CONTEXT"
	CodeUnroutable           Code = "UNROUTABLE_HANDOFF"
	CodeInternal             Code = "INTERNAL_ERROR"
	CodeDependency           Code = "DEPENDENCY_ERROR"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// Flags for the table below.
const (
	retry   = true
	details = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:           {http.StatusBadRequest, !retry, "validation failed", details},
	CodeUnauthorized:         {http.StatusUnauthorized, !retry, "authentication required", !details},
	CodeForbidden:            {http.StatusForbidden, !retry, "access denied", !details},
	CodeNotFound:             {http.StatusNotFound, !retry, "resource not found", !details},
	CodeConflict:             {http.StatusConflict, !retry, "conflict detected", details},
	CodeTransitionNotAllowed: {http.StatusConflict, !retry, "state transition disallowed", details},
	CodeMissingContext:       {http.StatusBadRequest, !retry, "transition context incomplete", details},
	CodeUnroutable:           {http.StatusServiceUnavailable, !retry, "no queue available for handoff", details},
	CodeInternal:             {http.StatusInternalServerError, retry, "internal server error", !details},
	CodeDependency:           {http.StatusServiceUnavailable, retry, "dependency unavailable", details},
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap keeps err reachable through errors.Is/As. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails attaches client-visible context. It is only rendered when the
// code's metadata allows details.
func (e *Error) WithDetails(d any) *Error {
	if e != nil {
		e.details = d
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// IsRetryable reports whether repeating the failed operation could succeed.
// Untyped errors are assumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	typed := As(err)
	if typed == nil {
		return true
	}
	return MetadataFor(typed.code).Retryable
}

// Package apperr defines the error taxonomy shared by every component.
// Errors carry a stable code so the API layer can map them to transport
// statuses without string matching.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION"
	CodeNotFound      Code = "NOT_FOUND"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeTransient     Code = "TRANSIENT"
	CodeRecallTooLate Code = "RECALL_TOO_LATE"
	CodeChatDeleted   Code = "CHAT_DELETED"
	CodeMessageGone   Code = "MESSAGE_GONE"
	CodeInternal      Code = "INTERNAL"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

func Validation(format string, args ...any) *Error {
	return New(CodeValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return New(CodeForbidden, format, args...)
}

// Transient marks a store/bus/cache failure as retryable at the caller's
// discretion. Only the bus publish path actually retries.
func Transient(err error, msg string) *Error {
	return Wrap(CodeTransient, err, msg)
}

// CodeOf extracts the stable code from an error chain. Unknown errors
// report CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

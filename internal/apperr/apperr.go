// Package apperr implements the tagged-result error convention used across
// the write and read services: expected failure modes are represented as a
// concrete Code rather than ad hoc string matching or exceptions, so callers
// can switch on them and the HTTP edge can map each one to a fixed status.
package apperr

import (
	"errors"
	"net/http"
)

// Code names one expected failure kind.
type Code string

const (
	CodeUserIDEmpty         Code = "USER_ID_EMPTY"
	CodeUserIDInvalidFormat Code = "USER_ID_INVALID_FORMAT"
	CodePostContentEmpty    Code = "POST_CONTENT_EMPTY"
	CodePostContentTooLong  Code = "POST_CONTENT_TOO_LONG"
	CodeSelfFollow          Code = "SELF_FOLLOW"
	CodeAlreadyFollowing    Code = "ALREADY_FOLLOWING"
	CodeNotFollowing        Code = "NOT_FOLLOWING"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodePostNotFound        Code = "POST_NOT_FOUND"
	CodeUserNotFound        Code = "USER_NOT_FOUND"
	CodeInvalidCursor       Code = "INVALID_CURSOR"
	CodeBadRequest          Code = "BAD_REQUEST"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// statusByCode maps each Code to the HTTP status the API layer returns.
var statusByCode = map[Code]int{
	CodeUserIDEmpty:         http.StatusBadRequest,
	CodeUserIDInvalidFormat: http.StatusBadRequest,
	CodePostContentEmpty:    http.StatusBadRequest,
	CodePostContentTooLong:  http.StatusBadRequest,
	CodeSelfFollow:          http.StatusBadRequest,
	CodeAlreadyFollowing:    http.StatusConflict,
	CodeNotFollowing:        http.StatusConflict,
	CodeUnauthorized:        http.StatusUnauthorized,
	CodeForbidden:           http.StatusForbidden,
	CodePostNotFound:        http.StatusNotFound,
	CodeUserNotFound:        http.StatusNotFound,
	CodeInvalidCursor:       http.StatusBadRequest,
	CodeBadRequest:          http.StatusBadRequest,
	CodeInternal:            http.StatusInternalServerError,
}

// Error is the concrete error type carrying a Code and a human message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// HTTPStatus returns the status code the API layer should respond with.
func (e *Error) HTTPStatus() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// New builds an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error that wraps an underlying cause, e.g. a driver error
// surfaced as CodeInternal.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Internal wraps an arbitrary error as an internal apperr.Error, the
// catch-all for failures the caller did not anticipate as a domain case.
func Internal(cause error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", cause: cause}
}

// As reports whether err is (or wraps) an *Error and returns it.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

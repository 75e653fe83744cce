// Package apperr classifies failures so handlers can map them to HTTP
// status codes and user-facing messages in one place.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the failure category.
type Kind string

const (
	KindValidation Kind = "validation" // bad input, caught before any backend call
	KindNotFound   Kind = "not_found"  // row gone, e.g. concurrent delete
	KindPermission Kind = "permission" // role/ownership rejection
	KindNetwork    Kind = "network"    // backend unreachable or timed out
	KindExternal   Kind = "external"   // AI gateway or other external service
	KindInternal   Kind = "internal"
)

// Error is a classified application error. Message is safe to show to
// the user; Err carries the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }
func NotFound(msg string) *Error   { return &Error{Kind: KindNotFound, Message: msg} }
func Permission(msg string) *Error { return &Error{Kind: KindPermission, Message: msg} }

func Network(msg string, err error) *Error {
	return &Error{Kind: KindNetwork, Message: msg, Err: err}
}

func External(msg string, err error) *Error {
	return &Error{Kind: KindExternal, Message: msg, Err: err}
}

func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the category of err, KindInternal for anything
// unclassified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// UserMessage returns the message safe to surface to the user.
func UserMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "something went wrong"
}

// HTTPStatus maps an error to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPermission:
		return http.StatusForbidden
	case KindNetwork:
		return http.StatusBadGateway
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

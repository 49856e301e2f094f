// Package apperr defines the error taxonomy shared across the node agent.
// every error that crosses a package boundary into the HTTP surface is, or
// wraps, an *Error so the router can translate it to a status code exactly
// once instead of re-deriving "is this a 404 or a 500" in every handler.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the seven error categories from the lifecycle/error design.
// each kind has a single, fixed propagation policy (see httpapi's
// writeError for where that policy is applied).
type Kind string

const (
	BadRequest    Kind = "bad_request"
	NotFound      Kind = "not_found"
	Conflict      Kind = "conflict"
	EngineError   Kind = "engine_error"
	InstallFailed Kind = "install_failed"
	Transient     Kind = "transient"
	Internal      Kind = "internal"
)

// Error is the concrete error type. Message is always a short, user-safe
// string (never a raw driver/engine error string, which may leak paths or
// internal identifiers). the wrapped Err is kept for logging via %w, never
// surfaced to callers directly.
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

func new(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NewBadRequest(message string, err error) *Error    { return new(BadRequest, message, err) }
func NewNotFound(message string, err error) *Error      { return new(NotFound, message, err) }
func NewConflict(message string, err error) *Error      { return new(Conflict, message, err) }
func NewEngineError(message string, err error) *Error   { return new(EngineError, message, err) }
func NewInstallFailed(message string, err error) *Error { return new(InstallFailed, message, err) }
func NewTransient(message string, err error) *Error     { return new(Transient, message, err) }
func NewInternal(message string, err error) *Error      { return new(Internal, message, err) }

// KindOf unwraps err looking for an *Error and returns its Kind, or Internal
// if err is not (and does not wrap) an *Error. Used by the HTTP layer so a
// handler can return a plain Go error from a deep call and still get a
// sane status code rather than panicking on a failed type assertion.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// MessageOf returns the user-safe message carried by err, or a generic
// fallback if err is not an *Error.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

// HTTPStatus maps a Kind to the HTTP status code the request surface
// returns for it. Transient and Internal both degrade to 500 from the
// caller's point of view; Transient is only meaningful to the panel
// notifier's own retry loop, it never reaches an HTTP response directly.
func HTTPStatus(kind Kind) int {
	switch kind {
	case BadRequest:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case EngineError, InstallFailed, Transient, Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

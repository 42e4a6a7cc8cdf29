// Package bridgeerr defines the bridge's error taxonomy and its mapping
// to HTTP status codes on the bridge's own control surface.
package bridgeerr

import (
	"fmt"
	"net/http"
)

// Kind classifies a bridge error for HTTP-status mapping and for
// distinguishing recoverable conditions (overlay submission failure,
// overlay timeout) from conditions the Dispatcher surfaces verbatim.
type Kind string

const (
	MatrixAPI       Kind = "MatrixApi"
	OverlayNetwork  Kind = "OverlayNetwork"
	OverlayAPI      Kind = "OverlayApi"
	Database        Kind = "Database"
	Config          Kind = "Config"
	Serde           Kind = "Serde"
	Auth            Kind = "Auth"
	Federation      Kind = "Federation"
	Timeout         Kind = "Timeout"
	NotFound        Kind = "NotFound"
	InvalidRequest  Kind = "InvalidRequest"
)

// Error is the bridge's concrete error type. Message carries
// human-readable detail; Kind drives HTTP-status mapping.
type Error struct {
	Kind    Kind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an *Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// HTTPStatus maps a Kind to the status code the bridge's own HTTP
// control surface returns for it.
func (k Kind) HTTPStatus() int {
	switch k {
	case MatrixAPI:
		return http.StatusBadGateway
	case OverlayNetwork:
		return http.StatusServiceUnavailable
	case OverlayAPI:
		return http.StatusBadGateway
	case Database:
		return http.StatusInternalServerError
	case Config:
		return http.StatusInternalServerError
	case Serde:
		return http.StatusBadRequest
	case Auth:
		return http.StatusUnauthorized
	case Federation:
		return http.StatusBadRequest
	case Timeout:
		return http.StatusRequestTimeout
	case NotFound:
		return http.StatusNotFound
	case InvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatus is a convenience accessor on *Error.
func (e *Error) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

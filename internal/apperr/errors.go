// Package apperr is the error taxonomy shared by the services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and status mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindInvalidSignature
	KindUnknownOrderCode
	KindConflict
	KindGateway
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindInvalidSignature:
		return "invalid_signature"
	case KindUnknownOrderCode:
		return "unknown_order_code"
	case KindConflict:
		return "conflict"
	case KindGateway:
		return "gateway"
	default:
		return "internal"
	}
}

// Error carries a kind, a stable machine code (also the message catalog key) and
// an optional cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an error without a cause.
func E(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Wrap builds an error around cause.
func Wrap(kind Kind, code string, cause error, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: cause}
}

func Validation(code, msg string) *Error { return E(KindValidation, code, msg) }
func NotFound(code, msg string) *Error   { return E(KindNotFound, code, msg) }
func Conflict(code, msg string) *Error   { return E(KindConflict, code, msg) }
func Forbidden(code, msg string) *Error  { return E(KindForbidden, code, msg) }

func Internal(cause error, msg string) *Error {
	return Wrap(KindInternal, CodeInternal, cause, msg)
}

func Gateway(cause error, msg string) *Error {
	return Wrap(KindGateway, CodeGateway, cause, msg)
}

// KindOf returns the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// CodeOf returns the machine code of the first *Error in err's chain.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind onto a response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated, KindInvalidSignature:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound, KindUnknownOrderCode:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON error envelope returned to API clients.
type Body struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Response renders err for a client preferring acceptLanguage.
func Response(err error, acceptLanguage string) (int, Body) {
	code := CodeOf(err)
	return HTTPStatus(KindOf(err)), Body{Error: code, Message: Localize(code, acceptLanguage)}
}

// Package api holds the JSON wire contract shared by the nymph server and SDK.
package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the numeric code carried in every error body.
//
// Codes the server does not know about are preserved as-is so a newer
// backend can add codes without breaking older clients.
type ErrorCode int

const (
	MalformedJson           ErrorCode = 4000
	InvalidData             ErrorCode = 4001
	UnsupportedContentType  ErrorCode = 4002
	NotFound                ErrorCode = 4003
	Unauthenticated         ErrorCode = 4004
	Forbidden               ErrorCode = 4005
	Hidden                  ErrorCode = 4006
	InsufficientPermissions ErrorCode = 4007
	InvalidTransfer         ErrorCode = 4008
	Unowned                 ErrorCode = 4009
	BadCredentials          ErrorCode = 4010
	InternalServerError     ErrorCode = 5000
)

// AlreadyOwned is the older name for InvalidTransfer. Inventory routes only
// emit the unified code.
const AlreadyOwned = InvalidTransfer

var codeNames = map[ErrorCode]string{
	MalformedJson:           "MalformedJson",
	InvalidData:             "InvalidData",
	UnsupportedContentType:  "UnsupportedContentType",
	NotFound:                "NotFound",
	Unauthenticated:         "Unauthenticated",
	Forbidden:               "Forbidden",
	Hidden:                  "Hidden",
	InsufficientPermissions: "InsufficientPermissions",
	InvalidTransfer:         "InvalidTransfer",
	Unowned:                 "Unowned",
	BadCredentials:          "BadCredentials",
	InternalServerError:     "InternalServerError",
}

// Known reports whether c is one of the enumerated codes.
func (c ErrorCode) Known() bool {
	_, ok := codeNames[c]
	return ok
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Other(%d)", int(c))
}

// Status returns the HTTP status a server responds with for c.
func (c ErrorCode) Status() int {
	switch c {
	case MalformedJson, InvalidData:
		return http.StatusBadRequest
	case UnsupportedContentType:
		return http.StatusUnsupportedMediaType
	case NotFound, Hidden:
		return http.StatusNotFound
	case Unauthenticated, BadCredentials:
		return http.StatusUnauthorized
	case Forbidden, InsufficientPermissions:
		return http.StatusForbidden
	case InvalidTransfer, Unowned:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is the structured error body returned by the server.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// NewError builds an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, int(e.Code), e.Message)
}

// Is matches another *Error with the same code, so callers can write
// errors.Is(err, &api.Error{Code: api.BadCredentials}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// HasCode reports whether err wraps an *Error carrying code.
func HasCode(err error, code ErrorCode) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == code
}

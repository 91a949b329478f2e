package iam

import (
	"errors"
	"fmt"

	"github.com/frostu8/nymph/pkg/api"
)

var (
	// ErrUnauthenticated is returned when no authenticator found a credential.
	ErrUnauthenticated = errors.New("no credentials presented")

	// ErrForbidden is returned when the caller lacks a service credential.
	ErrForbidden = errors.New("service credential required")
)

// AuthError is a rejected credential. Code is always a client error code,
// usually api.BadCredentials, and Message is safe to show to the caller.
type AuthError struct {
	Scheme  Scheme
	Code    api.ErrorCode
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s authentication failed: %s: %v", e.Scheme, e.Message, e.Err)
	}
	return fmt.Sprintf("%s authentication failed: %s", e.Scheme, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError converts the rejection into its wire form.
func (e *AuthError) APIError() *api.Error {
	return api.NewError(e.Code, e.Message)
}

func badCredentials(scheme Scheme, message string, cause error) *AuthError {
	return &AuthError{
		Scheme:  scheme,
		Code:    api.BadCredentials,
		Message: message,
		Err:     cause,
	}
}

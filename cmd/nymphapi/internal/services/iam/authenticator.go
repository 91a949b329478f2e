package iam

import (
	"context"
	"crypto/tls"
	"net/http"
)

// Authenticator validates one kind of credential and returns a Principal.
//
// Return values:
//   - (principal, nil): Authentication successful
//   - (nil, nil): Credentials not present (not an error, try next authenticator)
//   - (nil, error): Authentication failed (invalid credentials, terminal)
//
// Rejections of a presented credential are returned as *AuthError. Any other
// error is a backend failure and also ends the chain.
type Authenticator interface {
	Authenticate(ctx context.Context, req AuthRequest) (*Principal, error)

	// Scheme names the credential type for logs and metrics.
	Scheme() Scheme
}

// AuthRequest wraps the parts of an HTTP request authenticators may inspect.
type AuthRequest struct {
	// Headers contains HTTP headers (X-Api-Key, Authorization)
	Headers http.Header

	// TLS is the connection state, nil for plain HTTP
	TLS *tls.ConnectionState
}

// NewAuthRequest extracts the credential-bearing parts of r.
func NewAuthRequest(r *http.Request) AuthRequest {
	return AuthRequest{
		Headers: r.Header,
		TLS:     r.TLS,
	}
}

package iam

import (
	"github.com/frostu8/nymph/cmd/nymphapi/internal/db/models"
	"github.com/frostu8/nymph/pkg/api"
)

// Scheme names the credential type a principal was resolved through.
type Scheme string

const (
	SchemeAPIKey Scheme = "apikey"
	SchemeToken  Scheme = "token"
	SchemeMTLS   Scheme = "mtls"
)

// Principal is the authenticated caller of a request.
//
// Principal values are built by authenticators and never mutated afterwards,
// so the same pointer can be shared by every handler in a request.
type Principal struct {
	ID          int64
	DisplayName string
	Managed     bool

	// Scheme records how the principal authenticated.
	Scheme Scheme
}

// IsService reports whether the principal holds a service credential.
// Only a managed principal presenting an API key or a client certificate
// qualifies; a bearer token never does, even when its subject is managed.
func (p *Principal) IsService() bool {
	if p == nil || !p.Managed {
		return false
	}
	return p.Scheme == SchemeAPIKey || p.Scheme == SchemeMTLS
}

// User returns the wire representation of the principal.
func (p *Principal) User() api.User {
	return api.User{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Managed:     p.Managed,
	}
}

func newPrincipal(user *models.User, scheme Scheme) *Principal {
	return &Principal{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Managed:     user.Managed,
		Scheme:      scheme,
	}
}

package iam

import (
	"context"
	"errors"
	"strings"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/db/models"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/repository"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/telemetry"
)

// MTLSAuthenticator resolves a verified client certificate by its subject
// common name. A common name seen for the first time is provisioned as a new
// managed principal.
type MTLSAuthenticator struct {
	identities repository.IdentityRepository
	metrics    *telemetry.Metrics
}

// NewMTLSAuthenticator creates a client certificate authenticator.
func NewMTLSAuthenticator(identities repository.IdentityRepository, metrics *telemetry.Metrics) *MTLSAuthenticator {
	return &MTLSAuthenticator{identities: identities, metrics: metrics}
}

func (a *MTLSAuthenticator) Scheme() Scheme { return SchemeMTLS }

// Authenticate returns (nil, nil) on plain HTTP and when the client sent no
// certificate. A certificate that did not chain to the configured CA, or has
// no common name, is rejected.
func (a *MTLSAuthenticator) Authenticate(ctx context.Context, req AuthRequest) (*Principal, error) {
	if req.TLS == nil || len(req.TLS.PeerCertificates) == 0 {
		return nil, nil
	}
	if len(req.TLS.VerifiedChains) == 0 {
		return nil, badCredentials(SchemeMTLS, "Client certificate is not trusted.", errors.New("no verified chain"))
	}

	cn := strings.TrimSpace(req.TLS.PeerCertificates[0].Subject.CommonName)
	if cn == "" {
		return nil, badCredentials(SchemeMTLS, "Client certificate has no common name.", nil)
	}

	user, created, err := findOrCreateUser(ctx, a.identities, models.ProviderMTLS, cn, models.User{
		DisplayName: cn,
		Managed:     true,
	})
	if err != nil {
		return nil, err
	}
	if created {
		a.metrics.RecordPrincipalCreated(models.ProviderMTLS)
	}

	return newPrincipal(user, SchemeMTLS), nil
}

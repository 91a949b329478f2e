package iam

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/auth"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/db/models"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/logging"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/repository"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/telemetry"
)

// Issuer provisions Discord principals and signs delegated access tokens.
type Issuer struct {
	users      repository.UserRepository
	identities repository.IdentityRepository
	codec      *auth.Codec
	ttl        time.Duration
	metrics    *telemetry.Metrics
	logger     logging.Logger
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithTokenTTL overrides auth.DefaultTokenTTL.
func WithTokenTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithIssuerMetrics attaches Prometheus instruments.
func WithIssuerMetrics(m *telemetry.Metrics) IssuerOption {
	return func(i *Issuer) { i.metrics = m }
}

// WithIssuerLogger attaches a logger.
func WithIssuerLogger(l logging.Logger) IssuerOption {
	return func(i *Issuer) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewIssuer creates a token issuer.
func NewIssuer(
	users repository.UserRepository,
	identities repository.IdentityRepository,
	codec *auth.Codec,
	opts ...IssuerOption,
) *Issuer {
	i := &Issuer{
		users:      users,
		identities: identities,
		codec:      codec,
		ttl:        auth.DefaultTokenTTL,
		logger:     logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// UpsertDiscordPrincipal returns the principal linked to discordID.
//
// A known account whose display name changed is renamed. An unknown account
// is created together with its link in one transaction; if a concurrent
// request created it first, the existing principal is returned.
func (i *Issuer) UpsertDiscordPrincipal(ctx context.Context, discordID, displayName string) (*models.User, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.UpsertDiscordPrincipal",
		attribute.String(telemetry.AttrIdentityProvider, models.ProviderDiscord),
	)
	defer span.End()

	user, created, err := findOrCreateUser(ctx, i.identities, models.ProviderDiscord, discordID, models.User{
		DisplayName: displayName,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64(telemetry.AttrPrincipalID, user.ID),
		attribute.Bool(telemetry.AttrIdentityCreated, created),
	)

	if created {
		i.metrics.RecordPrincipalCreated(models.ProviderDiscord)
		i.logger.WithContext(ctx).Info("provisioned discord principal",
			logging.Int64("user_id", user.ID),
		)
		return user, nil
	}

	if user.DisplayName != displayName {
		if err := i.users.UpdateDisplayName(ctx, user.ID, displayName); err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("rename principal %d: %w", user.ID, err)
		}
		user.DisplayName = displayName
		telemetry.AddEvent(span, "principal.renamed")
	}

	return user, nil
}

// IssueToken signs a token for principalID. Nothing is recorded server side.
func (i *Issuer) IssueToken(ctx context.Context, principalID int64) (string, error) {
	_, span := telemetry.StartSpan(ctx, tracerName, "iam.IssueToken",
		attribute.Int64(telemetry.AttrPrincipalID, principalID),
	)
	defer span.End()

	token, err := i.codec.Encode(principalID, i.ttl)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", fmt.Errorf("issue token: %w", err)
	}
	i.metrics.RecordTokenIssued()
	return token, nil
}

// ProxyToken mints a token for the Discord account on behalf of caller,
// which must hold a service credential.
func (i *Issuer) ProxyToken(ctx context.Context, caller *Principal, discordID, displayName string) (string, error) {
	if err := RequireService(caller); err != nil {
		return "", err
	}

	user, err := i.UpsertDiscordPrincipal(ctx, discordID, displayName)
	if err != nil {
		return "", err
	}
	return i.IssueToken(ctx, user.ID)
}

// RegisterDiscordUser provisions the Discord account on behalf of caller and,
// when generateToken is set, also mints a token for it.
func (i *Issuer) RegisterDiscordUser(ctx context.Context, caller *Principal, discordID, displayName string, generateToken bool) (*models.User, *string, error) {
	if err := RequireService(caller); err != nil {
		return nil, nil, err
	}

	user, err := i.UpsertDiscordPrincipal(ctx, discordID, displayName)
	if err != nil {
		return nil, nil, err
	}
	if !generateToken {
		return user, nil, nil
	}

	token, err := i.IssueToken(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, &token, nil
}

// RequireService returns ErrUnauthenticated for a nil caller and
// ErrForbidden for a caller without a service credential.
func RequireService(caller *Principal) error {
	if caller == nil {
		return ErrUnauthenticated
	}
	if !caller.IsService() {
		return ErrForbidden
	}
	return nil
}

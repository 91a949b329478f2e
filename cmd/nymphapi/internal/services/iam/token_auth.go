package iam

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/auth"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/repository"
)

const (
	msgCredentialsExpired = "User credentials have expired."
	msgTokenVerification  = "Access token verification failed."
	msgUnsupportedScheme  = "Unsupported authorization scheme."
)

// TokenAuthenticator resolves "Authorization: Bearer <token>" headers
// minted by the Issuer.
//
// This authenticator is stateless and thread-safe.
type TokenAuthenticator struct {
	codec *auth.Codec
	users repository.UserRepository
}

// NewTokenAuthenticator creates a bearer token authenticator.
func NewTokenAuthenticator(codec *auth.Codec, users repository.UserRepository) *TokenAuthenticator {
	return &TokenAuthenticator{codec: codec, users: users}
}

func (a *TokenAuthenticator) Scheme() Scheme { return SchemeToken }

// Authenticate verifies the bearer token and loads its subject.
//
// Returns:
//   - (nil, nil) if no Authorization header is present
//   - (nil, *AuthError) for a non-Bearer scheme, a token that fails
//     verification, or a subject that no longer exists
//   - (*Principal, nil) if authentication succeeds
func (a *TokenAuthenticator) Authenticate(ctx context.Context, req AuthRequest) (*Principal, error) {
	header := strings.TrimSpace(req.Headers.Get("Authorization"))
	if header == "" {
		return nil, nil
	}

	scheme, token, _ := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !strings.EqualFold(scheme, "Bearer") || token == "" {
		return nil, badCredentials(SchemeToken, msgUnsupportedScheme, nil)
	}

	claims, err := a.codec.Decode(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSignature) || errors.Is(err, auth.ErrInvalidSignature) {
			return nil, badCredentials(SchemeToken, msgCredentialsExpired, err)
		}
		return nil, badCredentials(SchemeToken, msgTokenVerification, err)
	}

	user, err := a.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, badCredentials(SchemeToken, msgCredentialsExpired, err)
		}
		return nil, fmt.Errorf("load token subject: %w", err)
	}

	return newPrincipal(user, SchemeToken), nil
}

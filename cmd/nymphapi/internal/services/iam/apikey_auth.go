package iam

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/auth"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/repository"
)

// APIKeyAuthenticator resolves the X-Api-Key header against stored key hashes.
type APIKeyAuthenticator struct {
	keys repository.APIKeyRepository
}

// NewAPIKeyAuthenticator creates an API key authenticator.
func NewAPIKeyAuthenticator(keys repository.APIKeyRepository) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{keys: keys}
}

func (a *APIKeyAuthenticator) Scheme() Scheme { return SchemeAPIKey }

// Authenticate returns (nil, nil) when the header is missing or blank.
// A key that matches no stored hash is BadCredentials.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, req AuthRequest) (*Principal, error) {
	key := strings.TrimSpace(req.Headers.Get(auth.APIKeyHeader))
	if key == "" {
		return nil, nil
	}

	user, err := a.keys.GetUserByHash(ctx, auth.HashToken(key))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, badCredentials(SchemeAPIKey, "Invalid API key.", nil)
		}
		return nil, fmt.Errorf("lookup api key: %w", err)
	}

	return newPrincipal(user, SchemeAPIKey), nil
}

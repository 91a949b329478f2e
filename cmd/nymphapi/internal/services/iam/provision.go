package iam

import (
	"context"
	"errors"
	"fmt"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/db/models"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/repository"
)

// findOrCreateUser returns the user linked to (provider, externalID),
// creating it and the link together if none exists yet.
//
// Concurrent first contacts for the same identity race on the unique
// (provider, external_id) index. Exactly one insert commits; the losers get
// ErrAlreadyExists and read back the winner's row.
func findOrCreateUser(
	ctx context.Context,
	identities repository.IdentityRepository,
	provider, externalID string,
	template models.User,
) (user *models.User, created bool, err error) {
	user, err = identities.GetUser(ctx, provider, externalID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("lookup %s identity: %w", provider, err)
	}

	user = &template
	err = identities.CreateUserWithIdentity(ctx, user, provider, externalID)
	switch {
	case err == nil:
		return user, true, nil
	case errors.Is(err, repository.ErrAlreadyExists):
		user, err = identities.GetUser(ctx, provider, externalID)
		if err != nil {
			return nil, false, fmt.Errorf("re-read %s identity after conflict: %w", provider, err)
		}
		return user, false, nil
	default:
		return nil, false, fmt.Errorf("provision %s identity: %w", provider, err)
	}
}

package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/db/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when an insert violates a unique constraint.
	ErrAlreadyExists = errors.New("already exists")
)

// UserRepository exposes persistence operations for principals.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	// GetManagedByName finds a managed principal by display name.
	GetManagedByName(ctx context.Context, name string) (*models.User, error)
	UpdateDisplayName(ctx context.Context, id int64, displayName string) error
}

// APIKeyRepository exposes persistence operations for service API keys.
type APIKeyRepository interface {
	Create(ctx context.Context, key *models.APIKey) error
	// GetUserByHash resolves the owner of a key from its SHA256 hex hash.
	GetUserByHash(ctx context.Context, hash string) (*models.User, error)
}

// IdentityRepository links users to accounts in external systems.
type IdentityRepository interface {
	GetUser(ctx context.Context, provider, externalID string) (*models.User, error)
	// CreateUserWithIdentity inserts user and its identity link in one
	// transaction. It returns ErrAlreadyExists when another request linked
	// the same external id first; nothing is written in that case.
	CreateUserWithIdentity(ctx context.Context, user *models.User, provider, externalID string) error
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "unique constraint") || strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "23505")
}

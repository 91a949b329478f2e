package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/db/models"
	"github.com/uptrace/bun"
)

// BunAPIKeyRepository implements APIKeyRepository using Bun ORM
type BunAPIKeyRepository struct {
	db *bun.DB
}

// NewBunAPIKeyRepository creates a new Bun-based API key repository
func NewBunAPIKeyRepository(db *bun.DB) *BunAPIKeyRepository {
	return &BunAPIKeyRepository{db: db}
}

// Create stores a key hash for an existing user
func (r *BunAPIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.NewInsert().
		Model(key).
		Exec(ctx)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("create api key: %w", ErrAlreadyExists)
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// GetUserByHash joins the key to its owner
func (r *BunAPIKeyRepository) GetUserByHash(ctx context.Context, hash string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Join("JOIN api_keys AS ak ON ak.user_id = u.id").
		Where("ak.hash = ?", hash).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("api key: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get user by api key: %w", err)
	}
	return user, nil
}

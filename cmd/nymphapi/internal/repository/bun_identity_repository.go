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

// BunIdentityRepository implements IdentityRepository using Bun ORM
type BunIdentityRepository struct {
	db *bun.DB
}

// NewBunIdentityRepository creates a new Bun-based identity repository
func NewBunIdentityRepository(db *bun.DB) *BunIdentityRepository {
	return &BunIdentityRepository{db: db}
}

// GetUser resolves the user linked to an external account
func (r *BunIdentityRepository) GetUser(ctx context.Context, provider, externalID string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Join("JOIN user_identities AS ui ON ui.user_id = u.id").
		Where("ui.provider = ?", provider).
		Where("ui.external_id = ?", externalID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s identity %q: %w", provider, externalID, ErrNotFound)
		}
		return nil, fmt.Errorf("get user by %s identity: %w", provider, err)
	}
	return user, nil
}

// CreateUserWithIdentity inserts the user and the link atomically
func (r *BunIdentityRepository) CreateUserWithIdentity(ctx context.Context, user *models.User, provider, externalID string) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := insertUser(ctx, tx, user); err != nil {
			return err
		}

		identity := &models.Identity{
			UserID:     user.ID,
			Provider:   provider,
			ExternalID: externalID,
			CreatedAt:  time.Now().UTC(),
		}
		if _, err := tx.NewInsert().Model(identity).Exec(ctx); err != nil {
			return fmt.Errorf("link %s identity: %w", provider, err)
		}
		return nil
	})
	if err != nil {
		// The transaction rolled back; don't hand out an id that was never committed.
		user.ID = 0
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%s identity %q: %w", provider, externalID, ErrAlreadyExists)
		}
		return err
	}
	return nil
}

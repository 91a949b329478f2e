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

// BunUserRepository implements UserRepository using Bun ORM
type BunUserRepository struct {
	db *bun.DB
}

// NewBunUserRepository creates a new Bun-based user repository
func NewBunUserRepository(db *bun.DB) *BunUserRepository {
	return &BunUserRepository{db: db}
}

// Create inserts a new user into the database
func (r *BunUserRepository) Create(ctx context.Context, user *models.User) error {
	return insertUser(ctx, r.db, user)
}

// GetByID retrieves a user by their ID
func (r *BunUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get user by ID: %w", err)
	}
	return user, nil
}

// GetManagedByName retrieves the oldest managed user with the given display name
func (r *BunUserRepository) GetManagedByName(ctx context.Context, name string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("display_name = ?", name).
		Where("managed = ?", true).
		Order("id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("managed user %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("get managed user by name: %w", err)
	}
	return user, nil
}

// UpdateDisplayName overwrites a user's display name
func (r *BunUserRepository) UpdateDisplayName(ctx context.Context, id int64, displayName string) error {
	result, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("display_name = ?", displayName).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update user display name: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return nil
}

// insertUser inserts user with db or an open transaction and fills in its ID.
func insertUser(ctx context.Context, db bun.IDB, user *models.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	result, err := db.NewInsert().
		Model(user).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	// Dialects without RETURNING support leave the model untouched.
	if user.ID == 0 {
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("create user: read id: %w", err)
		}
		user.ID = id
	}
	return nil
}

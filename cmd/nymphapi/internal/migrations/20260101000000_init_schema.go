package migrations

import (
	"context"
	"fmt"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20260101000000, down_20260101000000)
}

// up_20260101000000 creates users and the credential tables that point at them
func up_20260101000000(ctx context.Context, db *bun.DB) error {
	// 1. users
	fmt.Print(" [up] creating users table...")
	_, err := db.NewCreateTable().
		Model((*models.User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	fmt.Println(" OK")

	// 2. api_keys
	fmt.Print(" [up] creating api_keys table...")
	_, err = db.NewCreateTable().
		Model((*models.APIKey)(nil)).
		IfNotExists().
		ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create api_keys table: %w", err)
	}
	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_api_keys_user_id ON api_keys(user_id)`)
	if err != nil {
		return fmt.Errorf("failed to create api_keys user_id index: %w", err)
	}
	fmt.Println(" OK")

	// 3. user_identities
	fmt.Print(" [up] creating user_identities table...")
	_, err = db.NewCreateTable().
		Model((*models.Identity)(nil)).
		IfNotExists().
		ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create user_identities table: %w", err)
	}

	// The external id index is the guard against duplicate users under
	// concurrent first contact; the user index keeps links 1:1 per provider.
	_, err = db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_user_identities_external ON user_identities(provider, external_id)`)
	if err != nil {
		return fmt.Errorf("failed to create user_identities external index: %w", err)
	}
	_, err = db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_user_identities_user ON user_identities(provider, user_id)`)
	if err != nil {
		return fmt.Errorf("failed to create user_identities user index: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20260101000000 drops the tables in reverse dependency order
func down_20260101000000(ctx context.Context, db *bun.DB) error {
	for _, model := range []any{
		(*models.Identity)(nil),
		(*models.APIKey)(nil),
		(*models.User)(nil),
	} {
		if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}
	fmt.Println(" [down] dropped users, api_keys and user_identities")
	return nil
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/db/bunx"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/logging"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/migrations"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the nymph schema",
	Long: `Inspect and apply schema migrations for the users, api_keys and
user_identities tables. serve applies pending migrations on its own unless
started with --skip-migrations.`,
}

// withMigrator opens the configured database and runs fn against a migrator.
// When locked is set the migration lock is held for the duration of fn.
func withMigrator(locked bool, fn func(ctx context.Context, migrator *migrate.Migrator) error) error {
	ctx := context.Background()

	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer bunx.Close(db)

	migrator := migrate.NewMigrator(db, migrations.Migrations)

	if locked {
		if err := migrator.Lock(ctx); err != nil {
			return fmt.Errorf("lock migrations: %w", err)
		}
		defer func() {
			if err := migrator.Unlock(ctx); err != nil {
				logger.Warn("migration lock not released, run `nymphapi db unlock`", logging.Error(err))
			}
		}()
	}

	return fn(ctx, migrator)
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the bun migration bookkeeping tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(false, func(ctx context.Context, migrator *migrate.Migrator) error {
			if err := migrator.Init(ctx); err != nil {
				return fmt.Errorf("init migrations: %w", err)
			}
			logger.Info("migration bookkeeping ready")
			return nil
		})
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(true, func(ctx context.Context, migrator *migrate.Migrator) error {
			group, err := migrator.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if group.IsZero() {
				logger.Info("schema is up to date")
				return nil
			}
			logger.Info("migrated",
				logging.Int64("group", group.ID),
				logging.Int("migrations", len(group.Migrations)),
			)
			return nil
		})
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(false, func(ctx context.Context, migrator *migrate.Migrator) error {
			ms, err := migrator.MigrationsWithStatus(ctx)
			if err != nil {
				return fmt.Errorf("read migration status: %w", err)
			}

			for _, m := range ms {
				if m.IsApplied() {
					fmt.Printf("%s\tgroup %d\t%s\n", m.Name, m.GroupID, m.MigratedAt.Format("2006-01-02 15:04:05"))
					continue
				}
				fmt.Printf("%s\tpending\n", m.Name)
			}
			if unapplied := ms.Unapplied(); len(unapplied) > 0 {
				logger.Info("pending migrations", logging.Int("count", len(unapplied)))
			}
			return nil
		})
	},
}

var dbRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back the last applied migration group",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(true, func(ctx context.Context, migrator *migrate.Migrator) error {
			group, err := migrator.Rollback(ctx)
			if err != nil {
				return fmt.Errorf("rollback: %w", err)
			}
			if group.IsZero() {
				logger.Info("nothing to roll back")
				return nil
			}
			logger.Info("rolled back",
				logging.Int64("group", group.ID),
				logging.Int("migrations", len(group.Migrations)),
			)
			return nil
		})
	},
}

var dbUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Release a migration lock left behind by a crashed run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(false, func(ctx context.Context, migrator *migrate.Migrator) error {
			if err := migrator.Unlock(ctx); err != nil {
				return fmt.Errorf("unlock migrations: %w", err)
			}
			logger.Info("migration lock released")
			return nil
		})
	},
}

// openDB is shared by commands that need repositories rather than a migrator.
func openDB(ctx context.Context) (*bun.DB, error) {
	db, err := bunx.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

func init() {
	dbCmd.AddCommand(dbInitCmd, dbMigrateCmd, dbStatusCmd, dbRollbackCmd, dbUnlockCmd)
	rootCmd.AddCommand(dbCmd)
}

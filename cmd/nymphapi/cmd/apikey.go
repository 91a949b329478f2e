package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/auth"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/db/bunx"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/db/models"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/migrations"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/repository"
)

var apiKeyName string

var createAPIKeyCmd = &cobra.Command{
	Use:   "create-api-key",
	Short: "Create an API key for a managed principal",
	Long: `Finds or creates the managed principal with the given name and issues a new
API key for it. Only a hash of the key is stored; the key is printed once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if apiKeyName == "" {
			return fmt.Errorf("--name is required")
		}

		ctx := context.Background()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		if _, err := migrations.Apply(ctx, db); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}

		users := repository.NewBunUserRepository(db)
		keys := repository.NewBunAPIKeyRepository(db)

		user, err := users.GetManagedByName(ctx, apiKeyName)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			user = &models.User{DisplayName: apiKeyName, Managed: true}
			if err := users.Create(ctx, user); err != nil {
				return fmt.Errorf("failed to create managed principal: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to look up managed principal: %w", err)
		}

		key, hash, err := auth.GenerateAPIKey()
		if err != nil {
			return err
		}
		if err := keys.Create(ctx, &models.APIKey{UserID: user.ID, Hash: hash}); err != nil {
			return fmt.Errorf("failed to store api key: %w", err)
		}

		fmt.Println("API key created successfully!")
		fmt.Println("----------------------------------------")
		fmt.Printf("Principal: %s (id %d)\n", user.DisplayName, user.ID)
		fmt.Printf("API Key: %s\n", key)
		fmt.Println("----------------------------------------")
		fmt.Println("Save the API key securely. It will not be shown again.")

		return nil
	},
}

func init() {
	createAPIKeyCmd.Flags().StringVar(&apiKeyName, "name", "nymph", "Display name of the managed principal")
	rootCmd.AddCommand(createAPIKeyCmd)
}

package users

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/frostu8/nymph/cmd/nymphctl/internal/config"
	"github.com/frostu8/nymph/pkg/sdk"
)

// UsersCmd is the parent command for user operations
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage Discord-linked users",
}

func init() {
	UsersCmd.AddCommand(upsertCmd)
}

func sdkClient(ctx context.Context) (*sdk.Client, error) {
	cfg := config.MustFromContext(ctx)
	return cfg.ClientProvider.SDKClient()
}

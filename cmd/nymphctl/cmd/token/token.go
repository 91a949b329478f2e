package token

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/frostu8/nymph/cmd/nymphctl/internal/config"
	"github.com/frostu8/nymph/pkg/sdk"
)

// TokenCmd is the parent command for delegated token operations
var TokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint delegated access tokens",
	Long:  `Commands for minting short-lived tokens that act on behalf of a Discord user.`,
}

func init() {
	TokenCmd.AddCommand(mintCmd)
}

func sdkClient(ctx context.Context) (*sdk.Client, error) {
	cfg := config.MustFromContext(ctx)
	return cfg.ClientProvider.SDKClient()
}

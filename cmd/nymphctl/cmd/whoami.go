package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/frostu8/nymph/cmd/nymphctl/internal/config"
)

var (
	whoamiAs   string
	whoamiName string
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the principal the CLI authenticates as",
	Long: `Calls GET /users/me. With --as the call is made on behalf of the Discord
user, minting and refreshing a delegated token as needed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustFromContext(cmd.Context())
		client, err := cfg.ClientProvider.SDKClient()
		if err != nil {
			return err
		}
		if whoamiAs != "" {
			name := whoamiName
			if name == "" {
				name = whoamiAs
			}
			client = client.As(whoamiAs, name)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		me, err := client.WhoAmI(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve principal: %w", err)
		}

		pterm.DefaultSection.Println("Principal")
		pterm.Info.Printf("ID: %d\n", me.User.ID)
		pterm.Info.Printf("Display name: %s\n", me.User.DisplayName)
		pterm.Info.Printf("Managed: %t\n", me.User.Managed)
		pterm.Info.Printf("Scheme: %s\n", me.Scheme)
		return nil
	},
}

func init() {
	whoamiCmd.Flags().StringVar(&whoamiAs, "as", "", "Act on behalf of this Discord user ID")
	whoamiCmd.Flags().StringVar(&whoamiName, "name", "", "Display name used if the --as user is provisioned")
}

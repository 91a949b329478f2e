package token

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	mintDiscordID string
	mintName      string
	mintQuiet     bool
)

var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint a token for a Discord user",
	Long: `Provisions the Discord user if needed and prints a bearer token that
authenticates as them. Requires a service API key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := sdkClient(cmd.Context())
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		token, err := client.ProxyToken(ctx, mintDiscordID, mintName)
		if err != nil {
			return fmt.Errorf("failed to mint token: %w", err)
		}

		if mintQuiet {
			fmt.Println(token)
			return nil
		}

		pterm.Success.Printf("Minted token for %s (discord %s)\n", mintName, mintDiscordID)
		fmt.Println(token)
		return nil
	},
}

func init() {
	mintCmd.Flags().StringVar(&mintDiscordID, "discord-id", "", "Discord snowflake of the user")
	mintCmd.Flags().StringVar(&mintName, "name", "", "Display name used if the user is provisioned")
	mintCmd.Flags().BoolVarP(&mintQuiet, "quiet", "q", false, "Print only the token")
	_ = mintCmd.MarkFlagRequired("discord-id")
	_ = mintCmd.MarkFlagRequired("name")
}

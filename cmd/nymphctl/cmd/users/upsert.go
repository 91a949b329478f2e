package users

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/frostu8/nymph/pkg/api"
)

var (
	upsertDiscordID string
	upsertName      string
	upsertToken     bool
)

var upsertCmd = &cobra.Command{
	Use:   "upsert",
	Short: "Create or rename the user linked to a Discord account",
	Long: `Creates the user linked to the Discord account, or updates its display
name when it already exists. With --token a delegated token is also issued.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := sdkClient(cmd.Context())
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		resp, err := client.UpsertDiscordUser(ctx, api.DiscordUserRequest{
			DiscordID:     upsertDiscordID,
			DisplayName:   upsertName,
			GenerateToken: upsertToken,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert user: %w", err)
		}

		pterm.Success.Printf("User %d linked to discord %s\n", resp.User.ID, resp.DiscordID)
		_ = pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
			{"ID", "DISPLAY NAME", "MANAGED"},
			{fmt.Sprint(resp.User.ID), resp.User.DisplayName, fmt.Sprint(resp.User.Managed)},
		}).Render()

		if resp.AccessToken != nil {
			pterm.Info.Println("Access token:")
			fmt.Println(*resp.AccessToken)
		}
		return nil
	},
}

func init() {
	upsertCmd.Flags().StringVar(&upsertDiscordID, "discord-id", "", "Discord snowflake of the user")
	upsertCmd.Flags().StringVar(&upsertName, "name", "", "Display name to store")
	upsertCmd.Flags().BoolVar(&upsertToken, "token", false, "Also issue a delegated token")
	_ = upsertCmd.MarkFlagRequired("discord-id")
	_ = upsertCmd.MarkFlagRequired("name")
}

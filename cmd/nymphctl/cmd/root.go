package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frostu8/nymph/cmd/nymphctl/cmd/token"
	"github.com/frostu8/nymph/cmd/nymphctl/cmd/users"
	"github.com/frostu8/nymph/cmd/nymphctl/internal/client"
	"github.com/frostu8/nymph/cmd/nymphctl/internal/config"
)

var settings = viper.New()

var rootCmd = &cobra.Command{
	Use:   "nymphctl",
	Short: "nymph CLI - service client for the nymph API",
	Long: `nymphctl talks to the nymph API with a service API key. It can mint
delegated tokens, register Discord users and make calls on their behalf.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(settings)
		if err != nil {
			return err
		}
		cfg.ClientProvider = client.NewProvider(cfg.ClientOptions())

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(config.InjectConfig(ctx, cfg))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cfg, ok := config.FromContext(cmd.Context()); ok {
			_ = cfg.ClientProvider.Close()
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("server", "", "nymph API server URL (env: NYMPH_SERVER_URL, API_URL)")
	flags.String("api-key", "", "Service API key (env: NYMPH_API_KEY, API_KEY)")
	flags.Int("refresh-retries", 0, "Delegated attempts before giving up (env: NYMPH_TOKEN_REFRESH_RETRIES)")
	flags.String("cache-backend", "", "Token cache backend: memory or redis (env: NYMPH_CACHE_BACKEND)")
	flags.Int("cache-size", 0, "Maximum tokens kept by the memory cache (env: NYMPH_CACHE_SIZE)")
	flags.String("redis-url", "", "Redis URL for the redis cache backend (env: NYMPH_CACHE_REDIS_URL)")
	flags.BoolP("verbose", "v", false, "Log retry diagnostics to stderr")

	_ = settings.BindPFlag("server_url", flags.Lookup("server"))
	_ = settings.BindPFlag("api_key", flags.Lookup("api-key"))
	_ = settings.BindPFlag("token_refresh_retries", flags.Lookup("refresh-retries"))
	_ = settings.BindPFlag("cache.backend", flags.Lookup("cache-backend"))
	_ = settings.BindPFlag("cache.size", flags.Lookup("cache-size"))
	_ = settings.BindPFlag("cache.redis_url", flags.Lookup("redis-url"))
	_ = settings.BindPFlag("verbose", flags.Lookup("verbose"))

	rootCmd.AddCommand(token.TokenCmd)
	rootCmd.AddCommand(users.UsersCmd)
	rootCmd.AddCommand(whoamiCmd)
}

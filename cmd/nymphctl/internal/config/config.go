package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/frostu8/nymph/cmd/nymphctl/internal/client"
	"github.com/frostu8/nymph/pkg/sdk"
)

// EnvPrefix is prepended to every setting when read from the environment.
const EnvPrefix = "NYMPH"

type contextKey string

const configKey contextKey = "nymphctl-config"

// GlobalConfig holds shared configuration for all nymphctl commands.
// This is injected into the cobra command context by the root command's
// PersistentPreRunE hook and consumed by all subcommands.
type GlobalConfig struct {
	ServerURL      string
	APIKey         string
	RefreshRetries int
	Cache          CacheConfig
	Verbose        bool
	ClientProvider *client.Provider
}

// CacheConfig selects where delegated tokens are kept between calls.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend  string
	Size     int
	RedisURL string
	TTL      time.Duration
}

// Load reads settings from v: flags bound by the caller, then NYMPH_
// prefixed environment variables, then defaults. The unprefixed API_URL and
// API_KEY variables are also accepted.
func Load(v *viper.Viper) (*GlobalConfig, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("server_url", "http://localhost:4000")
	v.SetDefault("token_refresh_retries", sdk.DefaultRefreshRetries)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.size", sdk.DefaultCacheSize)
	v.SetDefault("cache.ttl", 10*time.Minute)

	_ = v.BindEnv("server_url", EnvPrefix+"_SERVER_URL", "API_URL")
	_ = v.BindEnv("api_key", EnvPrefix+"_API_KEY", "API_KEY")

	cfg := &GlobalConfig{
		ServerURL:      v.GetString("server_url"),
		APIKey:         v.GetString("api_key"),
		RefreshRetries: v.GetInt("token_refresh_retries"),
		Verbose:        v.GetBool("verbose"),
		Cache: CacheConfig{
			Backend:  strings.ToLower(v.GetString("cache.backend")),
			Size:     v.GetInt("cache.size"),
			RedisURL: v.GetString("cache.redis_url"),
			TTL:      v.GetDuration("cache.ttl"),
		},
	}

	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server URL is required (--server or NYMPH_SERVER_URL)")
	}
	if cfg.RefreshRetries < 1 {
		return nil, fmt.Errorf("token_refresh_retries must be at least 1, got %d", cfg.RefreshRetries)
	}
	switch cfg.Cache.Backend {
	case "memory":
	case "redis":
		if cfg.Cache.RedisURL == "" {
			return nil, fmt.Errorf("cache.redis_url is required when cache.backend is redis")
		}
	default:
		return nil, fmt.Errorf("unknown cache backend %q (want memory or redis)", cfg.Cache.Backend)
	}

	return cfg, nil
}

// ClientOptions converts the loaded settings for client.NewProvider.
func (c *GlobalConfig) ClientOptions() client.Options {
	return client.Options{
		ServerURL:      c.ServerURL,
		APIKey:         c.APIKey,
		RefreshRetries: c.RefreshRetries,
		CacheBackend:   c.Cache.Backend,
		CacheSize:      c.Cache.Size,
		RedisURL:       c.Cache.RedisURL,
		CacheTTL:       c.Cache.TTL,
		Verbose:        c.Verbose,
	}
}

// InjectConfig adds config to the cobra command context.
// This should be called in the root command's PersistentPreRunE.
func InjectConfig(ctx context.Context, cfg *GlobalConfig) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from the cobra command context.
// Returns (nil, false) if config is not present.
func FromContext(ctx context.Context) (*GlobalConfig, bool) {
	cfg, ok := ctx.Value(configKey).(*GlobalConfig)
	return cfg, ok
}

// MustFromContext retrieves config from context or panics.
// This should only be used in command RunE functions where we know
// the config has been injected by the root command.
func MustFromContext(ctx context.Context) *GlobalConfig {
	cfg, ok := FromContext(ctx)
	if !ok {
		panic("nymphctl: config not found in context - this is a bug in nymphctl")
	}
	return cfg
}

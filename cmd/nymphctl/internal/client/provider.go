package client

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/frostu8/nymph/pkg/sdk"
)

// Options configures a Provider.
type Options struct {
	ServerURL      string
	APIKey         string
	RefreshRetries int
	CacheBackend   string
	CacheSize      int
	RedisURL       string
	CacheTTL       time.Duration
	Verbose        bool
}

// Provider lazily builds the SDK client and its credential cache. Every
// accessor is safe to call repeatedly; construction happens once.
type Provider struct {
	opts Options

	loggerOnce sync.Once
	logger     *zap.Logger

	cacheOnce sync.Once
	cache     sdk.CredentialCache
	redis     *redis.Client
	cacheErr  error

	sdkOnce   sync.Once
	sdkClient *sdk.Client
	sdkErr    error
}

// NewProvider constructs a new Provider from opts.
func NewProvider(opts Options) *Provider {
	return &Provider{opts: opts}
}

// Logger returns a development logger when verbose output was requested.
func (p *Provider) Logger() *zap.Logger {
	p.loggerOnce.Do(func() {
		p.logger = zap.NewNop()
		if !p.opts.Verbose {
			return
		}
		if logger, err := zap.NewDevelopment(); err == nil {
			p.logger = logger
		}
	})
	return p.logger
}

// Cache returns the configured credential cache.
func (p *Provider) Cache() (sdk.CredentialCache, error) {
	p.cacheOnce.Do(func() {
		switch p.opts.CacheBackend {
		case "", "memory":
			p.cache = sdk.NewMemoryCache(p.opts.CacheSize)
		case "redis":
			redisOpts, err := redis.ParseURL(p.opts.RedisURL)
			if err != nil {
				p.cacheErr = fmt.Errorf("invalid redis URL: %w", err)
				return
			}
			p.redis = redis.NewClient(redisOpts)
			p.cache = sdk.NewRedisCache(p.redis, p.opts.CacheTTL, sdk.WithRedisLogger(p.Logger()))
		default:
			p.cacheErr = fmt.Errorf("unknown cache backend %q", p.opts.CacheBackend)
		}
	})

	if p.cacheErr != nil {
		return nil, p.cacheErr
	}
	return p.cache, nil
}

// SDKClient returns a service-mode SDK client. Commands that act for a
// Discord user derive one with As.
func (p *Provider) SDKClient() (*sdk.Client, error) {
	p.sdkOnce.Do(func() {
		if p.opts.APIKey == "" {
			p.sdkErr = errors.New("no API key configured; set NYMPH_API_KEY or pass --api-key")
			return
		}

		cache, err := p.Cache()
		if err != nil {
			p.sdkErr = err
			return
		}

		p.sdkClient = sdk.NewClient(p.opts.ServerURL, p.opts.APIKey,
			sdk.WithCredentialCache(cache),
			sdk.WithRefreshRetries(p.opts.RefreshRetries),
			sdk.WithLogger(p.Logger()),
		)
	})

	if p.sdkErr != nil {
		return nil, p.sdkErr
	}
	return p.sdkClient, nil
}

// Close releases the Redis connection, if one was opened.
func (p *Provider) Close() error {
	if p.logger != nil {
		_ = p.logger.Sync()
	}
	if p.redis != nil {
		return p.redis.Close()
	}
	return nil
}

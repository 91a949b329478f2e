package sdk

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRedisPrefix namespaces credential keys in a shared Redis.
const DefaultRedisPrefix = "nymph:token:"

// RedisCache shares delegated tokens between processes through Redis.
//
// Redis failures are logged and treated as misses, so an outage costs an
// extra mint per request instead of failing it.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// RedisCacheOption configures a RedisCache.
type RedisCacheOption func(*RedisCache)

// WithRedisPrefix overrides DefaultRedisPrefix.
func WithRedisPrefix(prefix string) RedisCacheOption {
	return func(c *RedisCache) {
		c.prefix = prefix
	}
}

// WithRedisLogger sets the logger used to report backend failures.
func WithRedisLogger(logger *zap.Logger) RedisCacheOption {
	return func(c *RedisCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewRedisCache stores tokens for ttl. Use a ttl no longer than the server's
// token lifetime; zero keeps entries until they are invalidated.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		client: client,
		prefix: DefaultRedisPrefix,
		ttl:    ttl,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	token, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("credential cache read failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return token, true
}

func (c *RedisCache) Put(ctx context.Context, key, token string) {
	if err := c.client.Set(ctx, c.prefix+key, token, c.ttl).Err(); err != nil {
		c.logger.Warn("credential cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		c.logger.Warn("credential cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}

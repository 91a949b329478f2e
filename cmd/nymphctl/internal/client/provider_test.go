package client

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostu8/nymph/pkg/sdk"
)

func TestProvider_MemoryCache(t *testing.T) {
	p := NewProvider(Options{ServerURL: "http://localhost", APIKey: "k", CacheSize: 4})
	t.Cleanup(func() { _ = p.Close() })

	cache, err := p.Cache()
	require.NoError(t, err)
	assert.IsType(t, &sdk.MemoryCache{}, cache)

	again, err := p.Cache()
	require.NoError(t, err)
	assert.Same(t, cache, again)
}

func TestProvider_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	p := NewProvider(Options{
		ServerURL:    "http://localhost",
		APIKey:       "k",
		CacheBackend: "redis",
		RedisURL:     "redis://" + mr.Addr(),
	})
	t.Cleanup(func() { _ = p.Close() })

	cache, err := p.Cache()
	require.NoError(t, err)

	cache.Put(context.Background(), "discord:1", "tok")
	got, ok := cache.Get(context.Background(), "discord:1")
	require.True(t, ok)
	assert.Equal(t, "tok", got)
}

func TestProvider_Errors(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		p := NewProvider(Options{ServerURL: "http://localhost"})
		_, err := p.SDKClient()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NYMPH_API_KEY")
	})

	t.Run("bad redis url", func(t *testing.T) {
		p := NewProvider(Options{ServerURL: "http://localhost", APIKey: "k", CacheBackend: "redis", RedisURL: "::bogus"})
		_, err := p.SDKClient()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid redis URL")
	})
}

func TestProvider_SDKClientIsShared(t *testing.T) {
	p := NewProvider(Options{ServerURL: "http://localhost", APIKey: "k", RefreshRetries: 2})

	first, err := p.SDKClient()
	require.NoError(t, err)
	second, err := p.SDKClient()
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.IsType(t, sdk.ServiceAuth{}, first.Mode())
}

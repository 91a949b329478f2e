package iam

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/auth"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/db/bunx"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/db/models"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/logging"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/migrations"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/repository"
	"github.com/frostu8/nymph/pkg/api"
)

type fixture struct {
	db         *bun.DB
	users      *repository.BunUserRepository
	keys       *repository.BunAPIKeyRepository
	identities *repository.BunIdentityRepository
	codec      *auth.Codec
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	db, err := bunx.NewDB(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { bunx.Close(db) })

	_, err = migrations.Apply(ctx, db)
	require.NoError(t, err)

	key, err := auth.NewSigningKey(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", auth.MinSigningKeyBytes))))
	require.NoError(t, err)

	return &fixture{
		db:         db,
		users:      repository.NewBunUserRepository(db),
		keys:       repository.NewBunAPIKeyRepository(db),
		identities: repository.NewBunIdentityRepository(db),
		codec:      auth.NewCodec(key),
	}
}

func (f *fixture) resolver() *Resolver {
	return NewResolver(logging.NopLogger(), nil,
		NewAPIKeyAuthenticator(f.keys),
		NewTokenAuthenticator(f.codec, f.users),
		NewMTLSAuthenticator(f.identities, nil),
	)
}

// serviceKey creates a managed principal with an API key and returns the key.
func (f *fixture) serviceKey(t *testing.T) (string, *models.User) {
	t.Helper()
	ctx := context.Background()

	bot := &models.User{DisplayName: "nymph", Managed: true}
	require.NoError(t, f.users.Create(ctx, bot))

	key, hash, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	require.NoError(t, f.keys.Create(ctx, &models.APIKey{UserID: bot.ID, Hash: hash}))
	return key, bot
}

func requireBadCredentials(t *testing.T, err error, message string) {
	t.Helper()
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr), "expected *AuthError, got %v", err)
	assert.Equal(t, api.BadCredentials, authErr.Code)
	if message != "" {
		assert.Equal(t, message, authErr.Message)
	}
}

func clientCert(cn string) *x509.Certificate {
	return &x509.Certificate{Subject: pkix.Name{CommonName: cn}}
}

func TestAuthenticators_APIKeyWinsOverInvalidToken(t *testing.T) {
	f := setupFixture(t)
	key, bot := f.serviceKey(t)

	headers := http.Header{}
	headers.Set(auth.APIKeyHeader, key)
	headers.Set("Authorization", "Bearer not-a-token")

	principal, err := f.resolver().Resolve(context.Background(), AuthRequest{Headers: headers})
	require.NoError(t, err)
	assert.Equal(t, bot.ID, principal.ID)
	assert.Equal(t, SchemeAPIKey, principal.Scheme)
	assert.True(t, principal.IsService())
}

func TestAuthenticators_UnknownKeyDoesNotFallThrough(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	user := &models.User{DisplayName: "alice"}
	require.NoError(t, f.users.Create(ctx, user))
	token, err := f.codec.Encode(user.ID, time.Minute)
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set(auth.APIKeyHeader, "definitely-not-a-key")
	headers.Set("Authorization", "Bearer "+token)

	_, err = f.resolver().Resolve(ctx, AuthRequest{Headers: headers})
	requireBadCredentials(t, err, "Invalid API key.")
}

func TestAuthenticators_BearerToken(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	user := &models.User{DisplayName: "alice"}
	require.NoError(t, f.users.Create(ctx, user))

	t.Run("valid", func(t *testing.T) {
		token, err := f.codec.Encode(user.ID, time.Minute)
		require.NoError(t, err)

		headers := http.Header{}
		headers.Set("Authorization", "Bearer "+token)

		principal, err := f.resolver().Resolve(ctx, AuthRequest{Headers: headers})
		require.NoError(t, err)
		assert.Equal(t, user.ID, principal.ID)
		assert.Equal(t, "alice", principal.DisplayName)
		assert.Equal(t, SchemeToken, principal.Scheme)
		assert.False(t, principal.IsService())
	})

	t.Run("expired", func(t *testing.T) {
		past := f.codec.WithClock(func() time.Time { return time.Now().Add(-time.Hour) })
		token, err := past.Encode(user.ID, time.Minute)
		require.NoError(t, err)

		headers := http.Header{}
		headers.Set("Authorization", "Bearer "+token)

		_, err = f.resolver().Resolve(ctx, AuthRequest{Headers: headers})
		requireBadCredentials(t, err, "User credentials have expired.")
	})

	t.Run("malformed", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("Authorization", "Bearer garbage")

		_, err := f.resolver().Resolve(ctx, AuthRequest{Headers: headers})
		requireBadCredentials(t, err, "Access token verification failed.")
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("Authorization", "Basic YWxpY2U6c2VjcmV0")

		_, err := f.resolver().Resolve(ctx, AuthRequest{Headers: headers})
		requireBadCredentials(t, err, "")
	})

	t.Run("deleted subject", func(t *testing.T) {
		token, err := f.codec.Encode(user.ID+1000, time.Minute)
		require.NoError(t, err)

		headers := http.Header{}
		headers.Set("Authorization", "Bearer "+token)

		_, err = f.resolver().Resolve(ctx, AuthRequest{Headers: headers})
		requireBadCredentials(t, err, "")
	})
}

func TestAuthenticators_NoCredentials(t *testing.T) {
	f := setupFixture(t)

	_, err := f.resolver().Resolve(context.Background(), AuthRequest{Headers: http.Header{}})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.resolver().Resolve(context.Background(), AuthRequest{
		Headers: http.Header{},
		TLS:     &tls.ConnectionState{},
	})
	assert.ErrorIs(t, err, ErrUnauthenticated, "TLS without a client certificate is not a credential")
}

func TestAuthenticators_MTLSProvisionsManagedPrincipal(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	cert := clientCert("cardbot")
	req := AuthRequest{
		Headers: http.Header{},
		TLS: &tls.ConnectionState{
			PeerCertificates: []*x509.Certificate{cert},
			VerifiedChains:   [][]*x509.Certificate{{cert}},
		},
	}

	first, err := f.resolver().Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "cardbot", first.DisplayName)
	assert.True(t, first.Managed)
	assert.Equal(t, SchemeMTLS, first.Scheme)
	assert.True(t, first.IsService())

	second, err := f.resolver().Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "a known common name maps to the same principal")
}

func TestAuthenticators_MTLSUnverifiedCertificate(t *testing.T) {
	f := setupFixture(t)

	req := AuthRequest{
		Headers: http.Header{},
		TLS: &tls.ConnectionState{
			PeerCertificates: []*x509.Certificate{clientCert("intruder")},
		},
	}

	_, err := f.resolver().Resolve(context.Background(), req)
	requireBadCredentials(t, err, "")

	_, err = f.identities.GetUser(context.Background(), models.ProviderMTLS, "intruder")
	assert.ErrorIs(t, err, repository.ErrNotFound, "untrusted certificates must not provision principals")
}

func TestAuthenticators_MTLSOnlyWhenOthersAbsent(t *testing.T) {
	f := setupFixture(t)
	key, bot := f.serviceKey(t)

	cert := clientCert("cardbot")
	headers := http.Header{}
	headers.Set(auth.APIKeyHeader, key)

	principal, err := f.resolver().Resolve(context.Background(), AuthRequest{
		Headers: headers,
		TLS: &tls.ConnectionState{
			PeerCertificates: []*x509.Certificate{cert},
			VerifiedChains:   [][]*x509.Certificate{{cert}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, bot.ID, principal.ID)
	assert.Equal(t, SchemeAPIKey, principal.Scheme)

	_, err = f.identities.GetUser(context.Background(), models.ProviderMTLS, "cardbot")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/auth"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/db/bunx"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/db/models"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/logging"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/migrations"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/repository"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/services/iam"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/telemetry"
	"github.com/frostu8/nymph/pkg/api"
)

type testServer struct {
	handler http.Handler
	users   repository.UserRepository
	codec   *auth.Codec
	apiKey  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := bunx.NewDB(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { bunx.Close(db) })
	_, err = migrations.Apply(ctx, db)
	require.NoError(t, err)

	secret := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("s", auth.MinSigningKeyBytes)))
	key, err := auth.NewSigningKey(secret)
	require.NoError(t, err)
	codec := auth.NewCodec(key)

	users := repository.NewBunUserRepository(db)
	keys := repository.NewBunAPIKeyRepository(db)
	identities := repository.NewBunIdentityRepository(db)

	bot := &models.User{DisplayName: "nymph", Managed: true}
	require.NoError(t, users.Create(ctx, bot))
	apiKey, hash, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	require.NoError(t, keys.Create(ctx, &models.APIKey{UserID: bot.ID, Hash: hash}))

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetricsWithRegisterer("test", reg)
	logger := logging.NopLogger()

	resolver := iam.NewResolver(logger, metrics,
		iam.NewAPIKeyAuthenticator(keys),
		iam.NewTokenAuthenticator(codec, users),
		iam.NewMTLSAuthenticator(identities, metrics),
	)
	issuer := iam.NewIssuer(users, identities, codec, iam.WithIssuerMetrics(metrics))

	router, err := NewRouter(RouterOptions{
		Resolver: resolver,
		Issuer:   issuer,
		Logger:   logger,
		Metrics:  metrics,
		Gatherer: reg,
	})
	require.NoError(t, err)

	return &testServer{handler: router, users: users, codec: codec, apiKey: apiKey}
}

type call struct {
	method  string
	path    string
	body    string
	headers map[string]string
}

func (s *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) api.Error {
	t.Helper()
	var body api.Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func (s *testServer) withKey() map[string]string {
	return map[string]string{auth.APIKeyHeader: s.apiKey}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestProxyToken_ServiceCaller(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, call{
		method:  http.MethodPost,
		path:    "/users/proxy",
		body:    `{"discord_id":"80351110224678912","display_name":"alice"}`,
		headers: s.withKey(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var resp api.ProxyTokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	// The minted token authenticates as the new principal.
	me := s.do(t, call{method: http.MethodGet, path: "/users/me", headers: bearer(resp.Token)})
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())

	var who api.WhoAmIResponse
	require.NoError(t, json.Unmarshal(me.Body.Bytes(), &who))
	assert.Equal(t, "alice", who.User.DisplayName)
	assert.False(t, who.User.Managed)
	assert.Equal(t, "token", who.Scheme)
}

func TestProxyToken_Unauthenticated(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, call{
		method: http.MethodPost,
		path:   "/users/proxy",
		body:   `{"discord_id":"1","display_name":"alice"}`,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, api.Unauthenticated, decodeAPIError(t, rec).Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestProxyToken_BearerCallerForbidden(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	// Even a managed principal is not a service when it presents a token.
	bot, err := s.users.GetManagedByName(ctx, "nymph")
	require.NoError(t, err)
	token, err := s.codec.Encode(bot.ID, auth.DefaultTokenTTL)
	require.NoError(t, err)

	rec := s.do(t, call{
		method:  http.MethodPost,
		path:    "/users/proxy",
		body:    `{"discord_id":"1","display_name":"alice"}`,
		headers: bearer(token),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, api.Forbidden, decodeAPIError(t, rec).Code)
}

func TestProxyToken_BadCredentials(t *testing.T) {
	s := newTestServer(t)

	t.Run("unknown api key", func(t *testing.T) {
		rec := s.do(t, call{
			method:  http.MethodPost,
			path:    "/users/proxy",
			body:    `{"discord_id":"1","display_name":"alice"}`,
			headers: map[string]string{auth.APIKeyHeader: "nope"},
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decodeAPIError(t, rec)
		assert.Equal(t, api.BadCredentials, body.Code)
		assert.Equal(t, "Invalid API key.", body.Message)
	})

	t.Run("invalid bearer is not downgraded", func(t *testing.T) {
		rec := s.do(t, call{method: http.MethodGet, path: "/users/me", headers: bearer("a.b.c")})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, api.BadCredentials, decodeAPIError(t, rec).Code)
	})
}

func TestProxyToken_PayloadErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name        string
		body        string
		contentType string
		status      int
		code        api.ErrorCode
	}{
		{"not json", `{"discord_id":`, "application/json", http.StatusBadRequest, api.MalformedJson},
		{"missing field", `{"discord_id":"1"}`, "application/json", http.StatusBadRequest, api.InvalidData},
		{"non numeric id", `{"discord_id":"abc","display_name":"a"}`, "application/json", http.StatusBadRequest, api.InvalidData},
		{"wrong content type", `discord_id=1`, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType, api.UnsupportedContentType},
		{"charset is fine", `{"discord_id":"1","display_name":"a"}`, "application/json; charset=utf-8", http.StatusOK, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := s.withKey()
			headers["Content-Type"] = tt.contentType

			rec := s.do(t, call{method: http.MethodPost, path: "/users/proxy", body: tt.body, headers: headers})
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.code != 0 {
				assert.Equal(t, tt.code, decodeAPIError(t, rec).Code)
			}
		})
	}
}

func TestDiscordUser(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, call{
		method:  http.MethodPost,
		path:    "/users/discord",
		body:    `{"discord_id":"42","display_name":"bob"}`,
		headers: s.withKey(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var first api.DiscordUserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, "42", first.DiscordID)
	assert.Equal(t, "bob", first.User.DisplayName)
	assert.Nil(t, first.AccessToken)
	assert.NotContains(t, rec.Body.String(), "access_token")

	rec = s.do(t, call{
		method:  http.MethodPost,
		path:    "/users/discord",
		body:    `{"discord_id":"42","display_name":"bobby","generate_token":true}`,
		headers: s.withKey(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var second api.DiscordUserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Equal(t, "bobby", second.User.DisplayName)
	require.NotNil(t, second.AccessToken)

	claims, err := s.codec.Decode(*second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, claims.Subject)
}

func TestWhoAmI_APIKey(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, call{method: http.MethodGet, path: "/users/me", headers: s.withKey()})
	require.Equal(t, http.StatusOK, rec.Code)

	var who api.WhoAmIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &who))
	assert.Equal(t, "nymph", who.User.DisplayName)
	assert.True(t, who.User.Managed)
	assert.Equal(t, "apikey", who.Scheme)
}

func TestRouter_PublicRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	// Populate at least one series before scraping.
	s.do(t, call{method: http.MethodGet, path: "/users/me", headers: s.withKey()})
	rec = s.do(t, call{method: http.MethodGet, path: "/metrics"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_auth_resolutions_total")

	rec = s.do(t, call{method: http.MethodGet, path: "/nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, api.NotFound, decodeAPIError(t, rec).Code)
}

func TestRouter_WrongMethodIsNotFound(t *testing.T) {
	s := newTestServer(t)

	for _, c := range []call{
		{method: http.MethodDelete, path: "/health"},
		{method: http.MethodGet, path: "/users/proxy", headers: s.withKey()},
	} {
		rec := s.do(t, c)
		assert.Equal(t, http.StatusNotFound, rec.Code, c.method+" "+c.path)
		assert.Equal(t, api.NotFound, decodeAPIError(t, rec).Code, c.method+" "+c.path)
	}
}

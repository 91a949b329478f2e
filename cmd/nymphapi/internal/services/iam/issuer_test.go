package iam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/auth"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/db/models"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/repository"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/telemetry"
)

func (f *fixture) issuer(opts ...IssuerOption) *Issuer {
	return NewIssuer(f.users, f.identities, f.codec, opts...)
}

var service = &Principal{ID: 1, DisplayName: "nymph", Managed: true, Scheme: SchemeAPIKey}

func TestIssuer_UpsertDiscordPrincipal(t *testing.T) {
	f := setupFixture(t)
	issuer := f.issuer()
	ctx := context.Background()

	created, err := issuer.UpsertDiscordPrincipal(ctx, "80351110224678912", "alice")
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	assert.False(t, created.Managed, "discord principals are end users")

	t.Run("same name is a lookup", func(t *testing.T) {
		got, err := issuer.UpsertDiscordPrincipal(ctx, "80351110224678912", "alice")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("new name is written through", func(t *testing.T) {
		got, err := issuer.UpsertDiscordPrincipal(ctx, "80351110224678912", "alice2")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "alice2", got.DisplayName)

		stored, err := f.users.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice2", stored.DisplayName)
	})
}

func TestIssuer_ConcurrentFirstContact(t *testing.T) {
	f := setupFixture(t)
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetricsWithRegisterer("test", reg)
	issuer := f.issuer(WithIssuerMetrics(metrics))
	ctx := context.Background()

	const racers = 8
	var wg sync.WaitGroup
	ids := make([]int64, racers)
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user, err := issuer.UpsertDiscordPrincipal(ctx, "4242", "racer")
			errs[i] = err
			if err == nil {
				ids[i] = user.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i], "every racer must observe the same principal")
	}
	expected := `
# HELP test_principals_created_total Principals provisioned on first contact
# TYPE test_principals_created_total counter
test_principals_created_total{provider="discord"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_principals_created_total"))

	n, err := f.db.NewSelect().Model((*models.User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// lateWinnerIdentities reports the first lookups as misses even though the
// row exists, as a lookup does when another request commits right after it.
type lateWinnerIdentities struct {
	repository.IdentityRepository
	misses    int
	lookups   int
	conflicts int
}

func (l *lateWinnerIdentities) GetUser(ctx context.Context, provider, externalID string) (*models.User, error) {
	l.lookups++
	if l.misses > 0 {
		l.misses--
		return nil, fmt.Errorf("identity %s/%s: %w", provider, externalID, repository.ErrNotFound)
	}
	return l.IdentityRepository.GetUser(ctx, provider, externalID)
}

func (l *lateWinnerIdentities) CreateUserWithIdentity(ctx context.Context, user *models.User, provider, externalID string) error {
	err := l.IdentityRepository.CreateUserWithIdentity(ctx, user, provider, externalID)
	if errors.Is(err, repository.ErrAlreadyExists) {
		l.conflicts++
	}
	return err
}

func TestIssuer_UpsertReadsBackWinnerOnConflict(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	winner, err := f.issuer().UpsertDiscordPrincipal(ctx, "4242", "old")
	require.NoError(t, err)

	identities := &lateWinnerIdentities{IdentityRepository: f.identities, misses: 1}
	reg := prometheus.NewRegistry()
	issuer := NewIssuer(f.users, identities, f.codec,
		WithIssuerMetrics(telemetry.NewMetricsWithRegisterer("test", reg)))

	got, err := issuer.UpsertDiscordPrincipal(ctx, "4242", "new")
	require.NoError(t, err)

	assert.Equal(t, winner.ID, got.ID)
	assert.Equal(t, "new", got.DisplayName)
	assert.Equal(t, 1, identities.conflicts, "insert must hit the unique index")
	assert.Equal(t, 2, identities.lookups, "conflict must be followed by a re-read")

	stored, err := f.users.GetByID(ctx, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", stored.DisplayName)

	n, err := f.db.NewSelect().Model((*models.User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the losing insert must roll back its user row")

	created, err := testutil.GatherAndCount(reg, "test_principals_created_total")
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestIssuer_UpsertConflictWithoutWinnerFails(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	_, err := f.issuer().UpsertDiscordPrincipal(ctx, "4242", "old")
	require.NoError(t, err)

	// Every lookup misses, so the re-read after the conflict cannot find the row.
	identities := &lateWinnerIdentities{IdentityRepository: f.identities, misses: 2}
	_, err = NewIssuer(f.users, identities, f.codec).UpsertDiscordPrincipal(ctx, "4242", "new")
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Contains(t, err.Error(), "after conflict")
}

func TestIssuer_IssueToken(t *testing.T) {
	f := setupFixture(t)
	issuer := f.issuer(WithTokenTTL(5 * time.Minute))

	token, err := issuer.IssueToken(context.Background(), 77)
	require.NoError(t, err)

	claims, err := f.codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, int64(77), claims.Subject)
	assert.WithinDuration(t, claims.IssuedAt.Add(5*time.Minute), claims.ExpiresAt, time.Second)
}

func TestIssuer_DefaultTTL(t *testing.T) {
	f := setupFixture(t)

	token, err := f.issuer().IssueToken(context.Background(), 1)
	require.NoError(t, err)

	claims, err := f.codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultTokenTTL, claims.ExpiresAt.Sub(claims.IssuedAt))
}

func TestIssuer_ProxyToken(t *testing.T) {
	f := setupFixture(t)
	issuer := f.issuer()
	ctx := context.Background()

	t.Run("service caller", func(t *testing.T) {
		token, err := issuer.ProxyToken(ctx, service, "1001", "bob")
		require.NoError(t, err)

		claims, err := f.codec.Decode(token)
		require.NoError(t, err)

		user, err := f.identities.GetUser(ctx, models.ProviderDiscord, "1001")
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.Subject)
	})

	t.Run("no caller", func(t *testing.T) {
		_, err := issuer.ProxyToken(ctx, nil, "1002", "carol")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("delegated caller", func(t *testing.T) {
		delegated := &Principal{ID: 5, Managed: true, Scheme: SchemeToken}
		_, err := issuer.ProxyToken(ctx, delegated, "1003", "dave")
		assert.ErrorIs(t, err, ErrForbidden)

		_, err = f.identities.GetUser(ctx, models.ProviderDiscord, "1003")
		assert.Error(t, err, "a forbidden call must not provision anything")
	})
}

func TestIssuer_RegisterDiscordUser(t *testing.T) {
	f := setupFixture(t)
	issuer := f.issuer()
	ctx := context.Background()

	user, token, err := issuer.RegisterDiscordUser(ctx, service, "2001", "erin", false)
	require.NoError(t, err)
	assert.Equal(t, "erin", user.DisplayName)
	assert.Nil(t, token)

	again, token, err := issuer.RegisterDiscordUser(ctx, service, "2001", "erin", true)
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
	require.NotNil(t, token)

	claims, err := f.codec.Decode(*token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)

	_, _, err = issuer.RegisterDiscordUser(ctx, &Principal{ID: 9, Scheme: SchemeAPIKey}, "2002", "frank", false)
	assert.ErrorIs(t, err, ErrForbidden, "unmanaged key holders are not services")
}

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/batisseur/intranet/internal/auth"
	_ "github.com/batisseur/intranet/testing"
)

func newTokenStore(t *testing.T) (*auth.TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return auth.NewTokenStore(client, time.Hour), mr
}

func TestTokenStoreIssueAndLookup(t *testing.T) {
	store, mr := newTokenStore(t)
	ctx := context.Background()

	token, expiresAt, err := store.Issue(ctx, 42)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)
	require.True(t, mr.Exists("token:"+token))

	id, err := store.Lookup(ctx, token)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
}

func TestTokenStoreRejectsMalformedToken(t *testing.T) {
	store, _ := newTokenStore(t)
	_, err := store.Lookup(context.Background(), "not-a-token")
	require.ErrorIs(t, err, auth.ErrMalformedToken)
}

func TestTokenStoreExpiry(t *testing.T) {
	store, mr := newTokenStore(t)
	ctx := context.Background()

	token, _, err := store.Issue(ctx, 7)
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)

	_, err = store.Lookup(ctx, token)
	require.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestTokenStoreRevoke(t *testing.T) {
	store, _ := newTokenStore(t)
	ctx := context.Background()

	token, _, err := store.Issue(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, store.Revoke(ctx, token))
	require.NoError(t, store.Revoke(ctx, token))
	require.NoError(t, store.Revoke(ctx, "garbage"))

	_, err = store.Lookup(ctx, token)
	require.ErrorIs(t, err, auth.ErrTokenExpired)
}

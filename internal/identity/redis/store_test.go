//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/submanage/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RevokeAndExpire(t *testing.T) {
	ctx := context.Background()
	redisURL, cleanup := testutil.StartRedis(ctx, t)
	defer cleanup()

	client, err := Connect(ctx, redisURL)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	store := NewStore(client)

	revoked, err := store.IsRevoked(ctx, "token-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "token-1", time.Now().Add(time.Second)))

	revoked, err = store.IsRevoked(ctx, "token-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	require.Eventually(t, func() bool {
		revoked, err := store.IsRevoked(ctx, "token-1")
		return err == nil && !revoked
	}, 5*time.Second, 100*time.Millisecond)
}

func TestStore_RevokeAlreadyExpired(t *testing.T) {
	ctx := context.Background()
	redisURL, cleanup := testutil.StartRedis(ctx, t)
	defer cleanup()

	client, err := Connect(ctx, redisURL)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	store := NewStore(client)
	require.NoError(t, store.Revoke(ctx, "old", time.Now().Add(-time.Minute)))

	revoked, err := store.IsRevoked(ctx, "old")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestConnect_BadURL(t *testing.T) {
	_, err := Connect(context.Background(), "not-a-url")
	assert.Error(t, err)
}

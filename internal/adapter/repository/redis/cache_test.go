package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTripUsesNamespace(t *testing.T) {
	client, srv := startRedis(t)
	cache := NewCache(client)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "ledger-account:facility-f1", []byte("acct-1"), 0))

	got, err := cache.Get(ctx, "ledger-account:facility-f1")
	require.NoError(t, err)
	assert.Equal(t, []byte("acct-1"), got)
	assert.True(t, srv.Exists("gocredit:cache:ledger-account:facility-f1"))
}

func TestCacheMissAndExpiry(t *testing.T) {
	client, srv := startRedis(t)
	cache := NewCache(client)
	ctx := context.Background()

	got, err := cache.Get(ctx, "never-set")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, cache.Set(ctx, "short", []byte("v"), time.Second))
	srv.FastForward(2 * time.Second)

	got, err = cache.Get(ctx, "short")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheDelete(t *testing.T) {
	client, _ := startRedis(t)
	cache := NewCache(client)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, cache.Delete(ctx, "k"))

	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheWrapsConnectionErrors(t *testing.T) {
	client, srv := startRedis(t)
	srv.Close()

	_, err := NewCache(client).Get(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache get k")
}

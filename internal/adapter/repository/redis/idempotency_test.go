package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStoreClaimThenSeeMarker(t *testing.T) {
	client, _ := startRedis(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	exists, held, err := store.CheckAndSet(ctx, "alice|POST|/api/v1/facilities|k1", nil, time.Minute)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Nil(t, held)

	exists, held, err = store.CheckAndSet(ctx, "alice|POST|/api/v1/facilities|k1", nil, time.Minute)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, inFlight, string(held))
}

func TestIdempotencyStoreClaimWithResponse(t *testing.T) {
	client, srv := startRedis(t)
	store := NewIdempotencyStore(client)

	exists, _, err := store.CheckAndSet(context.Background(), "k2", []byte(`{"id":"f-1"}`), time.Minute)
	require.NoError(t, err)
	assert.False(t, exists)

	stored, err := srv.Get("gocredit:idempotency:k2")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"f-1"}`, stored)
	assert.Equal(t, time.Minute, srv.TTL("gocredit:idempotency:k2"))
}

func TestIdempotencyStoreUpdateReplacesMarker(t *testing.T) {
	client, _ := startRedis(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	_, _, err := store.CheckAndSet(ctx, "k3", nil, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, "k3", []byte(`{"status":201}`), time.Hour))

	exists, held, err := store.CheckAndSet(ctx, "k3", nil, time.Minute)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.JSONEq(t, `{"status":201}`, string(held))
}

func TestIdempotencyStoreReleaseAllowsRetry(t *testing.T) {
	client, _ := startRedis(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	_, _, err := store.CheckAndSet(ctx, "k4", nil, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "k4"))

	exists, _, err := store.CheckAndSet(ctx, "k4", nil, time.Minute)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIdempotencyStoreExpiredClaimIsReclaimable(t *testing.T) {
	client, srv := startRedis(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	_, _, err := store.CheckAndSet(ctx, "k5", nil, time.Second)
	require.NoError(t, err)
	srv.FastForward(2 * time.Second)

	exists, _, err := store.CheckAndSet(ctx, "k5", nil, time.Second)
	require.NoError(t, err)
	assert.False(t, exists)
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// inFlight is stored while the request that claimed a key is still running.
const inFlight = "processing"

// IdempotencyStore implements usecase.IdempotencyStore for the HTTP
// Idempotency-Key middleware.
type IdempotencyStore struct {
	client redis.Cmdable
}

func NewIdempotencyStore(client redis.Cmdable) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

// CheckAndSet claims key with SET NX, storing response or the in-flight
// marker. When someone else holds the key it reports exists with their value.
func (s *IdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	k := idempotencyKeys.key(key)

	var claim any = inFlight
	if response != nil {
		claim = response
	}
	won, err := s.client.SetNX(ctx, k, claim, ttl).Result()
	if err != nil {
		return false, nil, fmt.Errorf("claim idempotency key: %w", err)
	}
	if won {
		return false, nil, nil
	}

	held, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; treat as still held.
		return true, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("read idempotency key: %w", err)
	}
	return true, held, nil
}

// Update stores the final response, keeping it for ttl.
func (s *IdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, idempotencyKeys.key(key), response, ttl).Err(); err != nil {
		return fmt.Errorf("store idempotent response: %w", err)
	}
	return nil
}

// Release drops the claim so the request can be retried with the same key.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, idempotencyKeys.key(key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

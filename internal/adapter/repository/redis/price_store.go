package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/iho/gocredit/internal/domain"
)

var priceKey = collateralKeys.key("price")

// PriceStore implements usecase.PriceProvider. The price is kept as a
// decimal string; until one is set the configured fallback is returned.
type PriceStore struct {
	client   redis.Cmdable
	fallback decimal.Decimal
}

// NewPriceStore creates a new PriceStore.
func NewPriceStore(client redis.Cmdable, fallback decimal.Decimal) *PriceStore {
	return &PriceStore{client: client, fallback: fallback}
}

// CurrentPrice returns the stored price or the fallback.
func (s *PriceStore) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	raw, err := s.client.Get(ctx, priceKey).Result()
	if errors.Is(err, redis.Nil) {
		if !s.fallback.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: no collateral price set", domain.ErrInvalidAmount)
		}
		return s.fallback, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read collateral price: %w", err)
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("stored collateral price %q: %w", raw, err)
	}
	return price, nil
}

// SetPrice stores a new price.
func (s *PriceStore) SetPrice(ctx context.Context, price decimal.Decimal) error {
	if !price.IsPositive() {
		return domain.ErrInvalidAmount
	}
	return s.client.Set(ctx, priceKey, price.String(), 0).Err()
}

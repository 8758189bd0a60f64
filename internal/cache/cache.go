package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/backend/internal/domain"
)

// PricingCache stores resolved pricing records keyed by customer, item, level and unit.
type PricingCache interface {
	Get(ctx context.Context, key string) (*domain.PricingRecord, bool, error)
	Set(ctx context.Context, key string, value *domain.PricingRecord, ttl time.Duration) error
}

type NoopPricingCache struct{}

func (NoopPricingCache) Get(_ context.Context, _ string) (*domain.PricingRecord, bool, error) {
	return nil, false, nil
}

func (NoopPricingCache) Set(_ context.Context, _ string, _ *domain.PricingRecord, _ time.Duration) error {
	return nil
}

// PricingKey builds the cache key for one pricing lookup.
func PricingKey(customer domain.CustomerKey, itemCode string, priceLevel string, unitOfMeasure string) string {
	return fmt.Sprintf("pricing:%s:%s:%s:%s",
		customer.AccountKey(),
		strings.ToUpper(itemCode),
		strings.ToUpper(priceLevel),
		strings.ToUpper(unitOfMeasure),
	)
}

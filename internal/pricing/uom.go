package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/store"
)

// ResolveUnitOfMeasure returns the sales unit matching requested (or the item's
// default sales unit), falling back to the standard unit with factor 1.
func (r *Resolver) ResolveUnitOfMeasure(ctx context.Context, itemCode string, requested string) (domain.UnitOfMeasure, error) {
	item, err := r.source.GetItem(ctx, strings.ToUpper(strings.TrimSpace(itemCode)))
	if errors.Is(err, store.ErrNotFound) {
		return domain.UnitOfMeasure{}, ErrUnitOfMeasureNotFound
	}
	if err != nil {
		return domain.UnitOfMeasure{}, fmt.Errorf("load item: %w", err)
	}
	return unitOfMeasureFor(*item, requested)
}

func unitOfMeasureFor(item domain.Item, requested string) (domain.UnitOfMeasure, error) {
	if !item.Sellable() {
		return domain.UnitOfMeasure{}, ErrUnitOfMeasureNotFound
	}

	want := strings.ToUpper(strings.TrimSpace(requested))
	if want == "" {
		want = item.SalesUnitOfMeasure
	}
	if want != "" {
		if want == item.SalesUnitOfMeasure {
			return domain.UnitOfMeasure{UnitOfMeasure: want, ConvFactor: orOne(item.SalesUMConvFactor)}, nil
		}
		for _, unit := range item.Units {
			if strings.EqualFold(unit.UnitOfMeasure, want) {
				return domain.UnitOfMeasure{UnitOfMeasure: unit.UnitOfMeasure, ConvFactor: orOne(unit.ConvFactor)}, nil
			}
		}
	}
	if item.StandardUnitOfMeasure == "" {
		return domain.UnitOfMeasure{}, ErrUnitOfMeasureNotFound
	}
	return domain.UnitOfMeasure{UnitOfMeasure: item.StandardUnitOfMeasure, ConvFactor: decimal.NewFromInt(1)}, nil
}

func orOne(d decimal.Decimal) decimal.Decimal {
	if !d.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return d
}

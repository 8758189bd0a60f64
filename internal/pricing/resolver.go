package pricing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/backend/internal/cache"
	"storefront/backend/internal/domain"
	"storefront/backend/internal/store"
)

var (
	ErrPriceNotFound         = &domain.ValidationError{Field: "itemCode", Message: "no pricing applies to this item"}
	ErrUnitOfMeasureNotFound = &domain.ValidationError{Field: "unitOfMeasure", Message: "unit of measure not available for this item"}
)

// Source is the catalog slice the resolver reads from.
type Source interface {
	GetCustomer(ctx context.Context, key domain.CustomerKey) (*domain.Customer, error)
	GetItem(ctx context.Context, itemCode string) (*domain.Item, error)
	ListPriceRules(ctx context.Context, itemCode string, customer domain.CustomerKey, priceLevel string) ([]domain.PriceRule, error)
}

type Resolver struct {
	source Source
	cache  cache.PricingCache
	ttl    time.Duration
	logger *zap.Logger
}

func NewResolver(source Source, pricingCache cache.PricingCache, ttl time.Duration, logger *zap.Logger) *Resolver {
	if pricingCache == nil {
		pricingCache = cache.NoopPricingCache{}
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{source: source, cache: pricingCache, ttl: ttl, logger: logger}
}

type PriceRequest struct {
	Customer      domain.CustomerKey
	ItemCode      string
	PriceLevel    string
	UnitOfMeasure string
}

// ResolvePrice picks the single applicable pricing record for the request and
// computes its unit price in the resolved unit of measure.
func (r *Resolver) ResolvePrice(ctx context.Context, req PriceRequest) (*domain.PricingRecord, error) {
	itemCode := strings.ToUpper(strings.TrimSpace(req.ItemCode))
	if itemCode == "" {
		return nil, domain.Invalid("itemCode", "item code is required")
	}
	if req.Customer.IsZero() {
		return nil, domain.ErrInvalidCustomerKey
	}

	priceLevel := strings.ToUpper(strings.TrimSpace(req.PriceLevel))
	if priceLevel == "" {
		customer, err := r.source.GetCustomer(ctx, req.Customer)
		switch {
		case err == nil:
			priceLevel = customer.PriceLevel
		case errors.Is(err, store.ErrNotFound):
			r.logger.Debug("customer not found for price level lookup", zap.String("customer", req.Customer.AccountKey()))
		default:
			return nil, fmt.Errorf("load customer: %w", err)
		}
	}

	key := cache.PricingKey(req.Customer, itemCode, priceLevel, req.UnitOfMeasure)
	if cached, ok, err := r.cache.Get(ctx, key); err != nil {
		r.logger.Warn("pricing cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	item, err := r.source.GetItem(ctx, itemCode)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPriceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load item: %w", err)
	}

	var candidates []domain.PriceRule
	// Without a price level only the item's standard price can apply.
	if priceLevel != "" {
		candidates, err = r.source.ListPriceRules(ctx, itemCode, req.Customer, priceLevel)
		if err != nil {
			return nil, fmt.Errorf("list price rules: %w", err)
		}
	}
	rule, ok := SelectRule(candidates, *item)
	if !ok {
		return nil, ErrPriceNotFound
	}

	// A rule may still price an item that no longer resolves a sales unit
	// (inactive or discontinued). Such prices apply per standard unit, factor 1.
	uom, err := unitOfMeasureFor(*item, req.UnitOfMeasure)
	if errors.Is(err, ErrUnitOfMeasureNotFound) {
		r.logger.Debug("no sales unit for priced item, using standard unit",
			zap.String("itemCode", item.ItemCode), zap.String("requested", req.UnitOfMeasure))
		uom = domain.UnitOfMeasure{UnitOfMeasure: item.StandardUnitOfMeasure, ConvFactor: decimal.NewFromInt(1)}
	} else if err != nil {
		return nil, err
	}

	record := &domain.PricingRecord{
		ItemCode:          item.ItemCode,
		ARDivisionNo:      req.Customer.ARDivisionNo,
		CustomerNo:        req.Customer.CustomerNo,
		PriceLevel:        priceLevel,
		Kind:              rule.Kind,
		PricingMethod:     rule.PricingMethod,
		Markup:            rule.Markup,
		StandardUnitPrice: item.StandardUnitPrice,
		StandardUnitCost:  item.StandardUnitCost,
		UnitOfMeasure:     uom.UnitOfMeasure,
		ConvFactor:        uom.ConvFactor,
	}
	if base, ok := BasePrice(rule.PricingMethod, rule.Markup, item.StandardUnitPrice, item.StandardUnitCost); ok {
		record.BasePrice = decimal.NewNullDecimal(base.Round(2))
		record.UnitPrice = decimal.NewNullDecimal(ConvertPrice(base, uom.ConvFactor))
	}

	if err := r.cache.Set(ctx, key, record, r.ttl); err != nil {
		r.logger.Warn("pricing cache write failed", zap.String("key", key), zap.Error(err))
	}
	return record, nil
}

// tierRank orders pricing record kinds from most to least specific.
var tierRank = map[string]int{
	domain.PriceRuleCustomerLevel: 0,
	domain.PriceRuleItemLevel:     1,
	domain.PriceRuleCustomerItem:  2,
	domain.PriceRuleStandard:      3,
}

// SelectRule ranks the candidate rules by tier and returns the most specific.
// The result does not depend on candidate order. The standard price tier is
// only available for sellable items.
func SelectRule(candidates []domain.PriceRule, item domain.Item) (domain.PriceRule, bool) {
	ranked := make([]domain.PriceRule, 0, len(candidates)+1)
	for _, rule := range candidates {
		if _, known := tierRank[rule.Kind]; known && rule.Kind != domain.PriceRuleStandard {
			ranked = append(ranked, rule)
		}
	}
	if item.Sellable() {
		ranked = append(ranked, domain.PriceRule{Kind: domain.PriceRuleStandard, ItemCode: item.ItemCode})
	}
	if len(ranked) == 0 {
		return domain.PriceRule{}, false
	}
	slices.SortFunc(ranked, compareRules)
	return ranked[0], true
}

func compareRules(a, b domain.PriceRule) int {
	if d := tierRank[a.Kind] - tierRank[b.Kind]; d != 0 {
		return d
	}
	for _, pair := range [][2]string{
		{a.ARDivisionNo, b.ARDivisionNo},
		{a.CustomerNo, b.CustomerNo},
		{a.PriceLevel, b.PriceLevel},
		{a.PricingMethod, b.PricingMethod},
	} {
		if c := strings.Compare(pair[0], pair[1]); c != 0 {
			return c
		}
	}
	return a.Markup.Cmp(b.Markup)
}

var hundred = decimal.NewFromInt(100)

// BasePrice applies a pricing method before unit-of-measure conversion.
// ok is false when no price can be computed and the line needs manual pricing.
func BasePrice(method string, markup, standardPrice, standardCost decimal.Decimal) (decimal.Decimal, bool) {
	switch method {
	case domain.PricingMethodOverride:
		return markup, true
	case domain.PricingMethodPriceDiscount:
		return standardPrice.Sub(markup), true
	case domain.PricingMethodCostPlus:
		return standardCost.Add(markup), true
	case domain.PricingMethodDiscountPct:
		return standardPrice.Mul(hundred.Sub(markup)).Div(hundred), true
	case domain.PricingMethodMarkupPct:
		return standardCost.Mul(hundred.Add(markup)).Div(hundred), true
	}
	if standardPrice.IsZero() {
		return decimal.Decimal{}, false
	}
	return standardPrice, true
}

// ConvertPrice scales a base-unit price to the sales unit and rounds to cents.
func ConvertPrice(base decimal.Decimal, convFactor decimal.Decimal) decimal.Decimal {
	if convFactor.IsZero() {
		convFactor = decimal.NewFromInt(1)
	}
	return base.Mul(convFactor).Round(2)
}

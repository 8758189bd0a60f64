package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/store/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newFixture(t *testing.T) (*memory.Store, *Resolver) {
	t.Helper()
	repo := memory.New()
	repo.AddCustomer(domain.Customer{ARDivisionNo: "01", CustomerNo: "12345", CustomerName: "Acme", PriceLevel: "A"})
	repo.AddCustomer(domain.Customer{ARDivisionNo: "01", CustomerNo: "NOLEVEL", CustomerName: "Plain"})
	repo.AddItem(domain.Item{
		ItemCode: "ABC123", ItemType: domain.ItemTypeStock,
		StandardUnitPrice: dec("25.00"), StandardUnitCost: dec("14.00"),
		StandardUnitOfMeasure: "EA", SalesUnitOfMeasure: "EA",
		Units: []domain.ItemUnit{{UnitOfMeasure: "CS", ConvFactor: dec("12")}},
	})
	return repo, NewResolver(repo, nil, time.Minute, zap.NewNop())
}

func customer(t *testing.T, raw string) domain.CustomerKey {
	t.Helper()
	key, err := domain.ParseCustomerKey(raw)
	if err != nil {
		t.Fatalf("parse customer key %q: %v", raw, err)
	}
	return key
}

func TestResolvePriceFallsBackToStandardPrice(t *testing.T) {
	_, resolver := newFixture(t)

	record, err := resolver.ResolvePrice(context.Background(), PriceRequest{Customer: customer(t, "01-12345"), ItemCode: "abc123"})
	if err != nil {
		t.Fatalf("resolve price: %v", err)
	}
	if record.Kind != domain.PriceRuleStandard {
		t.Fatalf("expected standard tier, got %q", record.Kind)
	}
	if record.PriceLevel != "A" {
		t.Fatalf("expected price level from customer record, got %q", record.PriceLevel)
	}
	if !record.UnitPrice.Valid || !record.UnitPrice.Decimal.Equal(dec("25.00")) {
		t.Fatalf("expected unit price 25.00, got %+v", record.UnitPrice)
	}
	if record.UnitOfMeasure != "EA" || !record.ConvFactor.Equal(dec("1")) {
		t.Fatalf("expected EA x1, got %s x%s", record.UnitOfMeasure, record.ConvFactor)
	}
}

func TestSelectRulePrecedenceIsIndependentOfRowOrder(t *testing.T) {
	item := domain.Item{ItemCode: "ABC123", StandardUnitPrice: dec("25")}
	customerLevel := domain.PriceRule{Kind: domain.PriceRuleCustomerLevel, ItemCode: "ABC123", PriceLevel: "A", ARDivisionNo: "01", CustomerNo: "12345", PricingMethod: "O", Markup: dec("10")}
	itemLevel := domain.PriceRule{Kind: domain.PriceRuleItemLevel, ItemCode: "ABC123", PriceLevel: "A", PricingMethod: "O", Markup: dec("11")}
	customerItem := domain.PriceRule{Kind: domain.PriceRuleCustomerItem, ItemCode: "ABC123", ARDivisionNo: "01", CustomerNo: "12345", PricingMethod: "O", Markup: dec("12")}

	orderings := [][]domain.PriceRule{
		{customerLevel, itemLevel, customerItem},
		{customerItem, itemLevel, customerLevel},
		{itemLevel, customerItem, customerLevel},
		{customerItem, customerLevel, itemLevel},
	}
	for i, rules := range orderings {
		got, ok := SelectRule(rules, item)
		if !ok || got.Kind != domain.PriceRuleCustomerLevel {
			t.Fatalf("ordering %d: expected customer-level tier, got %+v", i, got)
		}
	}

	cases := []struct {
		name  string
		rules []domain.PriceRule
		want  string
	}{
		{"item level over customer item", []domain.PriceRule{customerItem, itemLevel}, domain.PriceRuleItemLevel},
		{"customer item over standard", []domain.PriceRule{customerItem}, domain.PriceRuleCustomerItem},
		{"standard when nothing else", nil, domain.PriceRuleStandard},
	}
	for _, tc := range cases {
		got, ok := SelectRule(tc.rules, item)
		if !ok || got.Kind != tc.want {
			t.Fatalf("%s: expected %q, got %+v", tc.name, tc.want, got)
		}
	}
}

func TestSelectRuleRejectsUnsellableItemWithoutRules(t *testing.T) {
	inactive := domain.Item{ItemCode: "OLD", InactiveItem: true, StandardUnitPrice: dec("5")}
	if _, ok := SelectRule(nil, inactive); ok {
		t.Fatalf("expected no rule for inactive item")
	}
	discontinued := domain.Item{ItemCode: "OLD", ProductType: domain.ProductTypeDiscontinued, StandardUnitPrice: dec("5")}
	if _, ok := SelectRule(nil, discontinued); ok {
		t.Fatalf("expected no rule for discontinued item")
	}
}

func TestBasePriceMethods(t *testing.T) {
	cases := []struct {
		method string
		markup string
		price  string
		cost   string
		want   string
	}{
		{domain.PricingMethodOverride, "12.34", "100", "50", "12.34"},
		{domain.PricingMethodPriceDiscount, "15", "100", "50", "85.00"},
		{domain.PricingMethodCostPlus, "7.5", "100", "50", "57.50"},
		{domain.PricingMethodDiscountPct, "20", "100", "50", "80.00"},
		{domain.PricingMethodMarkupPct, "10", "100", "50", "55.00"},
		{"", "0", "19.99", "5", "19.99"},
	}
	for _, tc := range cases {
		got, ok := BasePrice(tc.method, dec(tc.markup), dec(tc.price), dec(tc.cost))
		if !ok {
			t.Fatalf("method %q: expected a price", tc.method)
		}
		if !got.Round(2).Equal(dec(tc.want)) {
			t.Fatalf("method %q: expected %s, got %s", tc.method, tc.want, got)
		}
	}

	if _, ok := BasePrice("", dec("0"), decimal.Zero, dec("5")); ok {
		t.Fatalf("expected zero standard price without a method to require manual pricing")
	}
}

func TestConvertPriceAppliesConversionFactor(t *testing.T) {
	got := ConvertPrice(dec("10.00"), dec("12"))
	if got.StringFixed(2) != "120.00" {
		t.Fatalf("expected 120.00, got %s", got.StringFixed(2))
	}
	if got := ConvertPrice(dec("3.333"), decimal.Zero); got.StringFixed(2) != "3.33" {
		t.Fatalf("expected zero factor to act as 1, got %s", got)
	}
}

func TestResolvePriceWithUnitOfMeasureConversion(t *testing.T) {
	repo, resolver := newFixture(t)
	repo.AddPriceRule(domain.PriceRule{Kind: domain.PriceRuleItemLevel, ItemCode: "ABC123", PriceLevel: "A", PricingMethod: domain.PricingMethodOverride, Markup: dec("10.00")})

	record, err := resolver.ResolvePrice(context.Background(), PriceRequest{Customer: customer(t, "01-12345"), ItemCode: "ABC123", UnitOfMeasure: "cs"})
	if err != nil {
		t.Fatalf("resolve price: %v", err)
	}
	if !record.BasePrice.Decimal.Equal(dec("10.00")) {
		t.Fatalf("expected base price 10.00, got %s", record.BasePrice.Decimal)
	}
	if record.UnitOfMeasure != "CS" || !record.UnitPrice.Decimal.Equal(dec("120.00")) {
		t.Fatalf("expected CS at 120.00, got %s at %s", record.UnitOfMeasure, record.UnitPrice.Decimal)
	}
}

func TestResolvePriceForUnsellableItemUsesStandardUnit(t *testing.T) {
	repo, resolver := newFixture(t)
	repo.AddItem(domain.Item{
		ItemCode: "OLDKIT", ItemType: domain.ItemTypeStock, InactiveItem: true,
		StandardUnitPrice: dec("40.00"), StandardUnitOfMeasure: "EA", SalesUnitOfMeasure: "EA",
		Units: []domain.ItemUnit{{UnitOfMeasure: "CS", ConvFactor: dec("6")}},
	})
	repo.AddPriceRule(domain.PriceRule{Kind: domain.PriceRuleItemLevel, ItemCode: "OLDKIT", PriceLevel: "A", PricingMethod: domain.PricingMethodOverride, Markup: dec("30.00")})

	record, err := resolver.ResolvePrice(context.Background(), PriceRequest{Customer: customer(t, "01-12345"), ItemCode: "OLDKIT", UnitOfMeasure: "CS"})
	if err != nil {
		t.Fatalf("resolve price: %v", err)
	}
	if record.Kind != domain.PriceRuleItemLevel {
		t.Fatalf("expected item level tier, got %q", record.Kind)
	}
	if record.UnitOfMeasure != "EA" || !record.ConvFactor.Equal(dec("1")) || !record.UnitPrice.Decimal.Equal(dec("30.00")) {
		t.Fatalf("expected 30.00 per EA x1, got %s per %s x%s", record.UnitPrice.Decimal, record.UnitOfMeasure, record.ConvFactor)
	}
}

func TestResolvePriceWithoutPriceLevelUsesStandardOnly(t *testing.T) {
	repo, resolver := newFixture(t)
	repo.AddPriceRule(domain.PriceRule{Kind: domain.PriceRuleCustomerItem, ItemCode: "ABC123", ARDivisionNo: "01", CustomerNo: "NOLEVEL", PricingMethod: domain.PricingMethodOverride, Markup: dec("1")})

	record, err := resolver.ResolvePrice(context.Background(), PriceRequest{Customer: customer(t, "01-NOLEVEL"), ItemCode: "ABC123"})
	if err != nil {
		t.Fatalf("resolve price: %v", err)
	}
	if record.Kind != domain.PriceRuleStandard {
		t.Fatalf("expected standard tier without a price level, got %q", record.Kind)
	}

	record, err = resolver.ResolvePrice(context.Background(), PriceRequest{Customer: customer(t, "01-NOLEVEL"), ItemCode: "ABC123", PriceLevel: "B"})
	if err != nil {
		t.Fatalf("resolve price with override: %v", err)
	}
	if record.Kind != domain.PriceRuleCustomerItem || !record.UnitPrice.Decimal.Equal(dec("1")) {
		t.Fatalf("expected customer item override with explicit level, got %+v", record)
	}
}

func TestResolvePriceZeroStandardPriceIsNull(t *testing.T) {
	repo, resolver := newFixture(t)
	repo.AddItem(domain.Item{ItemCode: "FREE", ItemType: domain.ItemTypeStock, StandardUnitOfMeasure: "EA"})

	record, err := resolver.ResolvePrice(context.Background(), PriceRequest{Customer: customer(t, "01-12345"), ItemCode: "FREE"})
	if err != nil {
		t.Fatalf("resolve price: %v", err)
	}
	if !record.RequiresManualPrice() {
		t.Fatalf("expected null price, got %+v", record.UnitPrice)
	}
}

func TestResolvePriceNotFound(t *testing.T) {
	repo, resolver := newFixture(t)
	repo.AddItem(domain.Item{ItemCode: "GONE", InactiveItem: true, StandardUnitPrice: dec("3")})

	for _, code := range []string{"GONE", "MISSING"} {
		_, err := resolver.ResolvePrice(context.Background(), PriceRequest{Customer: customer(t, "01-12345"), ItemCode: code})
		if !errors.Is(err, ErrPriceNotFound) {
			t.Fatalf("%s: expected ErrPriceNotFound, got %v", code, err)
		}
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: expected a validation error", code)
		}
	}
}

type recordingCache struct {
	values map[string]*domain.PricingRecord
	sets   int
}

func (c *recordingCache) Get(_ context.Context, key string) (*domain.PricingRecord, bool, error) {
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *recordingCache) Set(_ context.Context, key string, value *domain.PricingRecord, _ time.Duration) error {
	c.values[key] = value
	c.sets++
	return nil
}

func TestResolvePriceUsesCache(t *testing.T) {
	repo, _ := newFixture(t)
	c := &recordingCache{values: map[string]*domain.PricingRecord{}}
	resolver := NewResolver(repo, c, time.Minute, zap.NewNop())
	req := PriceRequest{Customer: customer(t, "01-12345"), ItemCode: "ABC123"}

	if _, err := resolver.ResolvePrice(context.Background(), req); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := resolver.ResolvePrice(context.Background(), req); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if c.sets != 1 {
		t.Fatalf("expected one cache write, got %d", c.sets)
	}
}

func TestResolveUnitOfMeasure(t *testing.T) {
	repo, resolver := newFixture(t)
	repo.AddItem(domain.Item{ItemCode: "DISC", ProductType: domain.ProductTypeDiscontinued, StandardUnitOfMeasure: "EA"})
	ctx := context.Background()

	cases := []struct {
		requested string
		unit      string
		factor    string
	}{
		{"", "EA", "1"},
		{"CS", "CS", "12"},
		{"PALLET", "EA", "1"},
	}
	for _, tc := range cases {
		got, err := resolver.ResolveUnitOfMeasure(ctx, "ABC123", tc.requested)
		if err != nil {
			t.Fatalf("requested %q: %v", tc.requested, err)
		}
		if got.UnitOfMeasure != tc.unit || !got.ConvFactor.Equal(dec(tc.factor)) {
			t.Fatalf("requested %q: expected %s x%s, got %s x%s", tc.requested, tc.unit, tc.factor, got.UnitOfMeasure, got.ConvFactor)
		}
	}

	if _, err := resolver.ResolveUnitOfMeasure(ctx, "DISC", ""); !errors.Is(err, ErrUnitOfMeasureNotFound) {
		t.Fatalf("expected discontinued item to have no unit, got %v", err)
	}
	if _, err := resolver.ResolveUnitOfMeasure(ctx, "NOPE", ""); !errors.Is(err, ErrUnitOfMeasureNotFound) {
		t.Fatalf("expected unknown item to have no unit, got %v", err)
	}
}

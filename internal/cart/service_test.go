package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/pricing"
	"storefront/backend/internal/store"
	"storefront/backend/internal/store/memory"
)

const (
	salesUser int64 = 7
	otherUser int64 = 8
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newFixture(t *testing.T) (*memory.Store, *Service) {
	t.Helper()
	repo := memory.New()
	repo.AddGrant(domain.AccessGrant{UserID: salesUser, Kind: domain.AccessKindCustomer, Pattern: "01-%"})
	repo.AddCustomer(domain.Customer{ARDivisionNo: "01", CustomerNo: "12345", CustomerName: "Acme", PriceLevel: "A", TaxSchedule: "CA"})
	repo.AddCustomer(domain.Customer{ARDivisionNo: "01", CustomerNo: "EXEMPT", CustomerName: "Exempt Co", TaxSchedule: domain.TaxScheduleNonTaxable})
	repo.AddCustomer(domain.Customer{ARDivisionNo: "01", CustomerNo: "CLOSED", CustomerName: "Closed Co", CustomerStatus: domain.CustomerStatusInactive})
	repo.AddShipTo(domain.ShipToAddress{ARDivisionNo: "01", CustomerNo: "12345", ShipToCode: "MAIN"})
	repo.AddItem(domain.Item{
		ItemCode: "ABC123", ItemCodeDesc: "Hex Bolt", ItemType: domain.ItemTypeStock,
		StandardUnitPrice: dec("25.00"), StandardUnitOfMeasure: "EA", SalesUnitOfMeasure: "EA", TaxClass: "TX",
		Units: []domain.ItemUnit{{UnitOfMeasure: "CS", ConvFactor: dec("12")}},
	})
	repo.AddItem(domain.Item{
		ItemCode: "LABEL", ItemType: domain.ItemTypeStock,
		StandardUnitPrice: dec("4.10"), StandardUnitOfMeasure: "EA", TaxClass: domain.TaxClassNonTaxable,
	})
	repo.AddItem(domain.Item{ItemCode: "ZERO", ItemType: domain.ItemTypeStock, StandardUnitOfMeasure: "EA"})
	repo.AddItem(domain.Item{ItemCode: "FREIGHT", ItemType: domain.ItemTypeMisc, StandardUnitOfMeasure: "EA"})
	repo.AddItem(domain.Item{ItemCode: "RETIRED", ItemType: domain.ItemTypeStock, InactiveItem: true, StandardUnitPrice: dec("9"), StandardUnitOfMeasure: "EA"})
	repo.AddProductRef(domain.ProductRef{ItemCode: "ABC123", ProductID: 101, ProductItemID: 1001})

	logger := zap.NewNop()
	resolver := pricing.NewResolver(repo, nil, time.Minute, logger)
	return repo, New(repo, resolver, logger)
}

func assertTotals(t *testing.T, cart *domain.Cart) {
	t.Helper()
	sum := decimal.Zero
	for _, line := range cart.Detail {
		sum = sum.Add(line.ExtensionAmt)
	}
	h := cart.Header
	if !h.SubTotalAmt.Equal(sum) {
		t.Fatalf("subtotal %s does not match line sum %s", h.SubTotalAmt, sum)
	}
	if !h.SubTotalAmt.Equal(h.TaxableAmt.Add(h.NonTaxableAmt)) {
		t.Fatalf("subtotal %s != taxable %s + nontaxable %s", h.SubTotalAmt, h.TaxableAmt, h.NonTaxableAmt)
	}
}

func TestAddToCartNewCartUsesCustomerPriceLevel(t *testing.T) {
	_, svc := newFixture(t)

	cart, err := svc.AddToCart(context.Background(), salesUser, domain.AddToCartRequest{
		CustomerKey: "01-12345",
		ItemCode:    "ABC123",
		Quantity:    dec("3"),
	})
	if err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	if cart.Header.OrderType != domain.OrderTypeDraft || cart.Header.OrderStatus != domain.OrderStatusOpen {
		t.Fatalf("expected open draft, got %s/%s", cart.Header.OrderType, cart.Header.OrderStatus)
	}
	if len(cart.Detail) != 1 {
		t.Fatalf("expected 1 line, got %d", len(cart.Detail))
	}
	line := cart.Detail[0]
	if line.PriceLevel != "A" {
		t.Fatalf("expected price level A from customer, got %q", line.PriceLevel)
	}
	if line.ExtensionAmt.StringFixed(2) != "75.00" {
		t.Fatalf("expected extension 75.00, got %s", line.ExtensionAmt.StringFixed(2))
	}
	if cart.Header.SubTotalAmt.StringFixed(2) != "75.00" {
		t.Fatalf("expected subtotal 75.00, got %s", cart.Header.SubTotalAmt.StringFixed(2))
	}
	if line.ProductID == nil || *line.ProductID != 101 {
		t.Fatalf("expected product cross-reference, got %v", line.ProductID)
	}
	if line.LineStatus != domain.LineStatusLocal {
		t.Fatalf("expected local line status, got %q", line.LineStatus)
	}
	assertTotals(t, cart)
}

func TestAddToCartAppliesUnitOfMeasure(t *testing.T) {
	_, svc := newFixture(t)

	cart, err := svc.AddToCart(context.Background(), salesUser, domain.AddToCartRequest{
		CustomerKey: "01-12345", ItemCode: "ABC123", Quantity: dec("2"), UnitOfMeasure: "CS",
	})
	if err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	line := cart.Detail[0]
	if line.UnitOfMeasure != "CS" || line.UnitPrice.StringFixed(2) != "300.00" {
		t.Fatalf("expected CS at 300.00, got %s at %s", line.UnitOfMeasure, line.UnitPrice)
	}
	if line.ExtensionAmt.StringFixed(2) != "600.00" {
		t.Fatalf("expected extension 600.00, got %s", line.ExtensionAmt)
	}
}

func TestAddToCartValidation(t *testing.T) {
	_, svc := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.AddToCartRequest
		want error
	}{
		{"malformed customer key", domain.AddToCartRequest{CustomerKey: "1-12345", ItemCode: "ABC123", Quantity: dec("1")}, domain.ErrInvalidCustomerKey},
		{"zero quantity", domain.AddToCartRequest{CustomerKey: "01-12345", ItemCode: "ABC123", Quantity: decimal.Zero}, domain.ErrValidation},
		{"inactive item", domain.AddToCartRequest{CustomerKey: "01-12345", ItemCode: "RETIRED", Quantity: dec("1")}, ErrItemUnavailable},
		{"unknown item", domain.AddToCartRequest{CustomerKey: "01-12345", ItemCode: "NOPE", Quantity: dec("1")}, ErrItemUnavailable},
		{"null price", domain.AddToCartRequest{CustomerKey: "01-12345", ItemCode: "ZERO", Quantity: dec("1")}, ErrPriceRequired},
		{"inactive customer", domain.AddToCartRequest{CustomerKey: "01-CLOSED", ItemCode: "ABC123", Quantity: dec("1")}, domain.ErrValidation},
	}
	for _, tc := range cases {
		_, err := svc.AddToCart(ctx, salesUser, tc.req)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestAddToCartAllowsNullPriceForMiscAndOverride(t *testing.T) {
	_, svc := newFixture(t)
	ctx := context.Background()

	cart, err := svc.AddToCart(ctx, salesUser, domain.AddToCartRequest{CustomerKey: "01-12345", ItemCode: "FREIGHT", Quantity: dec("1")})
	if err != nil {
		t.Fatalf("misc item should accept a null price: %v", err)
	}
	if !cart.Detail[0].UnitPrice.IsZero() {
		t.Fatalf("expected zero unit price, got %s", cart.Detail[0].UnitPrice)
	}

	cart, err = svc.AddToCart(ctx, salesUser, domain.AddToCartRequest{CartID: cart.Header.ID, ItemCode: "ZERO", Quantity: dec("1"), AllowZeroPrice: true})
	if err != nil {
		t.Fatalf("allowZeroPrice should accept a null price: %v", err)
	}
	if len(cart.Detail) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(cart.Detail))
	}
}

func TestLoadCartHiddenWithoutAccessGrant(t *testing.T) {
	_, svc := newFixture(t)
	ctx := context.Background()

	cart, err := svc.AddToCart(ctx, salesUser, domain.AddToCartRequest{CustomerKey: "01-12345", ItemCode: "ABC123", Quantity: dec("1")})
	if err != nil {
		t.Fatalf("add to cart: %v", err)
	}

	got, err := svc.LoadCart(ctx, cart.Header.ID, otherUser)
	if err != nil {
		t.Fatalf("load cart: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil cart for user without access")
	}
	if _, err := svc.AddToCart(ctx, otherUser, domain.AddToCartRequest{CartID: cart.Header.ID, ItemCode: "ABC123", Quantity: dec("1")}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for write without access, got %v", err)
	}
	if _, err := svc.AddToCart(ctx, otherUser, domain.AddToCartRequest{CustomerKey: "01-12345", ItemCode: "ABC123", Quantity: dec("1")}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found creating a cart without access, got %v", err)
	}
	headers, err := svc.LoadCartHeader(ctx, domain.CartHeaderQuery{UserID: otherUser, View: domain.CartViewCart})
	if err != nil {
		t.Fatalf("load headers: %v", err)
	}
	if len(headers) != 0 {
		t.Fatalf("expected no visible headers, got %d", len(headers))
	}
}

func TestTotalsFollowEveryMutation(t *testing.T) {
	_, svc := newFixture(t)
	ctx := context.Background()

	cart, err := svc.AddToCart(ctx, salesUser, domain.AddToCartRequest{CustomerKey: "01-12345", ItemCode: "ABC123", Quantity: dec("2")})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	cart, err = svc.AddToCart(ctx, salesUser, domain.AddToCartRequest{CartID: cart.Header.ID, ItemCode: "LABEL", Quantity: dec("5")})
	if err != nil {
		t.Fatalf("add label: %v", err)
	}
	assertTotals(t, cart)
	if cart.Header.TaxableAmt.StringFixed(2) != "50.00" || cart.Header.NonTaxableAmt.StringFixed(2) != "20.50" {
		t.Fatalf("unexpected split taxable=%s nontaxable=%s", cart.Header.TaxableAmt, cart.Header.NonTaxableAmt)
	}

	qty := dec("4")
	cart, err = svc.UpdateCartItem(ctx, salesUser, cart.Header.ID, cart.Detail[0].ID, domain.UpdateCartItemRequest{Quantity: &qty})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	assertTotals(t, cart)
	if cart.Header.SubTotalAmt.StringFixed(2) != "120.50" {
		t.Fatalf("expected subtotal 120.50, got %s", cart.Header.SubTotalAmt)
	}

	cart, err = svc.RemoveCartItem(ctx, salesUser, cart.Header.ID, cart.Detail[1].ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	assertTotals(t, cart)
	if len(cart.Detail) != 1 || cart.Header.SubTotalAmt.StringFixed(2) != "100.00" {
		t.Fatalf("expected one line at 100.00, got %d lines at %s", len(cart.Detail), cart.Header.SubTotalAmt)
	}
}

func TestNonTaxableScheduleCollapsesTotals(t *testing.T) {
	_, svc := newFixture(t)

	cart, err := svc.AddToCart(context.Background(), salesUser, domain.AddToCartRequest{CustomerKey: "01-EXEMPT", ItemCode: "ABC123", Quantity: dec("1")})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !cart.Header.TaxableAmt.IsZero() || cart.Header.NonTaxableAmt.StringFixed(2) != "25.00" {
		t.Fatalf("expected all amounts non-taxable, got taxable=%s nontaxable=%s", cart.Header.TaxableAmt, cart.Header.NonTaxableAmt)
	}
}

func seedLinkedQuote(t *testing.T, repo *memory.Store) (int64, int64) {
	t.Helper()
	ctx := context.Background()
	cartID, _, err := repo.UpsertHeaderFromERP(ctx, domain.CartHeader{
		SalesOrderNo: "0000900", OrderType: domain.OrderTypeQuote, OrderStatus: domain.OrderStatusOpen,
		ARDivisionNo: "01", CustomerNo: "12345", TaxSchedule: "CA",
	})
	if err != nil {
		t.Fatalf("upsert header: %v", err)
	}
	if _, err := repo.InsertERPLine(ctx, domain.CartLine{
		CartHeaderID: cartID, SalesOrderNo: "0000900", LineKey: "000001", LineSeqNo: 1,
		ItemCode: "ABC123", ItemType: domain.ItemTypeStock, UnitOfMeasure: "EA", UnitOfMeasureConvFactor: dec("1"),
		QuantityOrdered: dec("2"), UnitPrice: dec("25.00"), ExtensionAmt: dec("50.00"), TaxClass: "TX",
	}); err != nil {
		t.Fatalf("insert erp line: %v", err)
	}
	lines, err := repo.ListLinesForSync(ctx, cartID)
	if err != nil || len(lines) != 1 {
		t.Fatalf("list lines: %v (%d)", err, len(lines))
	}
	return cartID, lines[0].ID
}

func TestUpdateCartItemOnLinkedLineMarksUserEdit(t *testing.T) {
	repo, svc := newFixture(t)
	cartID, lineID := seedLinkedQuote(t, repo)

	qty := dec("6")
	cart, err := svc.UpdateCartItem(context.Background(), salesUser, cartID, lineID, domain.UpdateCartItemRequest{Quantity: &qty})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	line := cart.Detail[0]
	if line.LineStatus != domain.LineStatusUpdated {
		t.Fatalf("expected status U, got %q", line.LineStatus)
	}
	if len(line.History) != 1 || line.History[0].Changes["quantityOrdered"] != "6" {
		t.Fatalf("expected one update history entry, got %+v", line.History)
	}
	if line.ExtensionAmt.StringFixed(2) != "150.00" {
		t.Fatalf("expected recomputed extension 150.00, got %s", line.ExtensionAmt)
	}
}

func TestRemoveLinkedLineRetiresIt(t *testing.T) {
	repo, svc := newFixture(t)
	cartID, lineID := seedLinkedQuote(t, repo)

	cart, err := svc.RemoveCartItem(context.Background(), salesUser, cartID, lineID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(cart.Detail) != 0 || !cart.Header.SubTotalAmt.IsZero() {
		t.Fatalf("expected retired line excluded from detail and totals, got %d lines, subtotal %s", len(cart.Detail), cart.Header.SubTotalAmt)
	}
	lines, _ := repo.ListLinesForSync(context.Background(), cartID)
	if len(lines) != 1 || lines[0].LineStatus != domain.LineStatusRetired {
		t.Fatalf("expected line kept as retired, got %+v", lines)
	}
}

func TestCancelCart(t *testing.T) {
	repo, svc := newFixture(t)
	ctx := context.Background()

	cart, err := svc.CreateCart(ctx, salesUser, domain.CreateCartRequest{CustomerKey: "01-12345", CustomerPONo: "PO-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.CancelCart(ctx, salesUser, cart.Header.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got, _ := svc.LoadCart(ctx, cart.Header.ID, salesUser); got != nil {
		t.Fatalf("expected canceled cart to be hidden")
	}

	linkedID, _ := seedLinkedQuote(t, repo)
	if err := svc.CancelCart(ctx, salesUser, linkedID); !errors.Is(err, ErrERPOwned) {
		t.Fatalf("expected ErrERPOwned for linked cart, got %v", err)
	}
}

func TestUpdateCartHeader(t *testing.T) {
	_, svc := newFixture(t)
	ctx := context.Background()

	cart, err := svc.CreateCart(ctx, salesUser, domain.CreateCartRequest{CustomerKey: "01-12345"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	bogus := "NOWHERE"
	if _, err := svc.UpdateCartHeader(ctx, salesUser, cart.Header.ID, domain.UpdateCartHeaderRequest{ShipToCode: &bogus}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected unknown ship-to to be rejected, got %v", err)
	}

	shipTo, po, promo := "main", "PO-9", "spring"
	updated, err := svc.UpdateCartHeader(ctx, salesUser, cart.Header.ID, domain.UpdateCartHeaderRequest{ShipToCode: &shipTo, CustomerPONo: &po, PromoCode: &promo})
	if err != nil {
		t.Fatalf("update header: %v", err)
	}
	if updated.Header.ShipToCode != "MAIN" || updated.Header.CustomerPONo != "PO-9" || updated.Header.PromoCode != "SPRING" {
		t.Fatalf("unexpected header %+v", updated.Header)
	}
	if updated.Header.UpdatedAt == nil || updated.Header.UpdatedByUserID != salesUser {
		t.Fatalf("expected audit fields to be set")
	}
}

func TestOrderHeaderIsNotEditable(t *testing.T) {
	repo, svc := newFixture(t)
	cartID, _, err := repo.UpsertHeaderFromERP(context.Background(), domain.CartHeader{
		SalesOrderNo: "0000901", OrderType: domain.OrderTypeStandard, OrderStatus: domain.OrderStatusOpen,
		ARDivisionNo: "01", CustomerNo: "12345",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	_, err = svc.AddToCart(context.Background(), salesUser, domain.AddToCartRequest{CartID: cartID, ItemCode: "ABC123", Quantity: dec("1")})
	if !errors.Is(err, ErrCartNotEditable) {
		t.Fatalf("expected ErrCartNotEditable, got %v", err)
	}
}

func TestDuplicateOrderRepricesEligibleLines(t *testing.T) {
	repo, svc := newFixture(t)
	repo.PutERPOrder(domain.ERPOrder{
		SalesOrderNo: "0001234", OrderType: domain.OrderTypeStandard, OrderStatus: domain.OrderStatusOpen,
		ARDivisionNo: "01", CustomerNo: "12345", Comment: "repeat order",
		Detail: []domain.ERPLine{
			{LineKey: "1", ItemCode: "ABC123", ItemType: domain.ItemTypeStock, UnitOfMeasure: "EA", QuantityOrdered: dec("3"), UnitPrice: dec("19.00")},
			{LineKey: "2", ItemCode: "ABC123", ItemType: domain.ItemTypeStock, ExplodedKitItem: domain.ExplodedKitComponent, QuantityOrdered: dec("1")},
			{LineKey: "3", ItemCode: "LABEL", ItemType: domain.ItemTypeStock, QuantityOrdered: decimal.Zero},
			{LineKey: "4", ItemCode: "RETIRED", ItemType: domain.ItemTypeStock, QuantityOrdered: dec("2")},
			{LineKey: "5", ItemCode: "ZERO", ItemType: domain.ItemTypeStock, QuantityOrdered: dec("2")},
		},
	})

	resp, err := svc.DuplicateOrder(context.Background(), salesUser, domain.DuplicateOrderRequest{CustomerKey: "01-12345", SalesOrderNo: "0001234", CustomerPONo: "PO-NEW"})
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	cart := resp.Cart
	if cart.Header.OrderType != domain.OrderTypeDraft || cart.Header.SalesOrderNo != "" {
		t.Fatalf("expected unlinked draft, got %+v", cart.Header)
	}
	if cart.Header.CustomerPONo != "PO-NEW" || cart.Header.Comment != "repeat order" {
		t.Fatalf("expected copied header fields, got %+v", cart.Header)
	}
	if len(cart.Detail) != 1 {
		t.Fatalf("expected 1 duplicated line, got %d", len(cart.Detail))
	}
	if !cart.Detail[0].UnitPrice.Equal(dec("25.00")) {
		t.Fatalf("expected current price 25.00, got %s", cart.Detail[0].UnitPrice)
	}
	if len(resp.SkippedItems) != 1 || resp.SkippedItems[0] != "ZERO" {
		t.Fatalf("expected ZERO skipped for manual pricing, got %v", resp.SkippedItems)
	}
	assertTotals(t, cart)
}

func TestDuplicateOrderRejectsClosedOrderAndForeignUser(t *testing.T) {
	repo, svc := newFixture(t)
	repo.PutERPOrder(domain.ERPOrder{SalesOrderNo: "0000001", OrderType: domain.OrderTypeStandard, OrderStatus: domain.OrderStatusClosed, ARDivisionNo: "01", CustomerNo: "12345"})
	repo.PutERPOrder(domain.ERPOrder{SalesOrderNo: "0000002", OrderType: domain.OrderTypeStandard, OrderStatus: domain.OrderStatusOpen, ARDivisionNo: "01", CustomerNo: "12345"})
	ctx := context.Background()

	if _, err := svc.DuplicateOrder(ctx, salesUser, domain.DuplicateOrderRequest{CustomerKey: "01-12345", SalesOrderNo: "0000001"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected closed order to be rejected, got %v", err)
	}
	if _, err := svc.DuplicateOrder(ctx, otherUser, domain.DuplicateOrderRequest{CustomerKey: "01-12345", SalesOrderNo: "0000002"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for user without access, got %v", err)
	}
	if _, err := svc.DuplicateOrder(ctx, salesUser, domain.DuplicateOrderRequest{CustomerKey: "01-99999", SalesOrderNo: "0000002"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for mismatched customer, got %v", err)
	}
}

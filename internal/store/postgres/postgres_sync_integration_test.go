package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/reconcile"
)

func newIntegrationStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	databaseURL := os.Getenv("STOREFRONT_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set STOREFRONT_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	schema, err := os.ReadFile("../../../db/schema.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return s, ctx
}

func TestSyncMirrorsERPOrderIntoCart(t *testing.T) {
	s, ctx := newIntegrationStore(t)

	stamp := time.Now().UnixNano()
	customerNo := fmt.Sprintf("IT%d", stamp%1_000_000_000)
	orderNo := fmt.Sprintf("IT%d", stamp%10_000_000)
	email := fmt.Sprintf("sync-it-%d@example.com", stamp)

	var userID int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO app_users (email, name, password, role)
		VALUES ($1, 'Sync IT', 'x', 'sales')
		RETURNING id
	`, email).Scan(&userID); err != nil {
		t.Fatalf("insert user: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cart_headers WHERE sales_order_no = $1`, orderNo)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM erp_sales_orders WHERE sales_order_no = $1`, orderNo)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM app_users WHERE id = $1`, userID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO user_access_grants (user_id, kind, pattern) VALUES ($1, 'customer', $2)
	`, userID, "01-"+customerNo); err != nil {
		t.Fatalf("insert grant: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO erp_sales_orders (
			sales_order_no, order_type, order_status, ar_division_no, customer_no,
			tax_schedule, date_created, date_updated
		)
		VALUES ($1, 'S', 'N', '01', $2, 'CA', now() - interval '1 day', now() - interval '1 hour')
	`, orderNo, customerNo); err != nil {
		t.Fatalf("insert erp order: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO erp_sales_order_lines (
			sales_order_no, line_key, line_seq_no, item_code, unit_of_measure,
			quantity_ordered, unit_price, tax_class
		)
		VALUES
			($1, '000001', 1, 'IT-ITEM-A', 'EA', 3, 25.00, 'TX'),
			($1, '000002', 2, 'IT-ITEM-B', 'EA', 1, 18.50, 'NT')
	`, orderNo); err != nil {
		t.Fatalf("insert erp lines: %v", err)
	}

	engine := reconcile.NewEngine(s, nil, zap.NewNop())
	scope := domain.SyncScope{Customer: &domain.CustomerKey{ARDivisionNo: "01", CustomerNo: customerNo}}

	first, err := engine.Sync(ctx, userID, scope)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if first.Header != 1 || first.Detail != 2 || first.DeletedLines != 0 {
		t.Fatalf("unexpected first pass counts: %+v", first)
	}

	header, err := s.FindHeaderBySalesOrderNo(ctx, orderNo)
	if err != nil {
		t.Fatalf("find header: %v", err)
	}
	if !header.SubTotalAmt.Equal(decimal.RequireFromString("93.50")) || !header.NonTaxableAmt.Equal(decimal.RequireFromString("18.50")) {
		t.Fatalf("unexpected totals taxable=%s nonTaxable=%s subtotal=%s", header.TaxableAmt, header.NonTaxableAmt, header.SubTotalAmt)
	}

	second, err := engine.Sync(ctx, userID, scope)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if second != (domain.SyncResult{}) {
		t.Fatalf("expected idempotent second pass, got %+v", second)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM erp_sales_order_lines WHERE sales_order_no = $1 AND line_key = '000002'`, orderNo); err != nil {
		t.Fatalf("delete erp line: %v", err)
	}
	third, err := engine.Sync(ctx, userID, scope)
	if err != nil {
		t.Fatalf("third sync: %v", err)
	}
	if third.DeletedLines != 1 {
		t.Fatalf("expected one retired line, got %+v", third)
	}

	lines, err := s.ListCartLines(ctx, userID, header.ID)
	if err != nil {
		t.Fatalf("list lines: %v", err)
	}
	if len(lines) != 1 || lines[0].LineKey != "000001" {
		t.Fatalf("expected only the surviving line to be visible, got %+v", lines)
	}

	totals, err := s.UpdateCartTotals(ctx, header.ID)
	if err != nil {
		t.Fatalf("update totals: %v", err)
	}
	if !totals.SubTotalAmt.Equal(decimal.RequireFromString("75")) {
		t.Fatalf("expected retired line to drop out of totals, got %s", totals.SubTotalAmt)
	}
}

func TestCartLinesRespectAccessAndCancellation(t *testing.T) {
	s, ctx := newIntegrationStore(t)

	stamp := time.Now().UnixNano()
	customerNo := fmt.Sprintf("CT%d", stamp%1_000_000_000)
	email := fmt.Sprintf("cart-it-%d@example.com", stamp)

	var userID int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO app_users (email, name, password, role)
		VALUES ($1, 'Cart IT', 'x', 'sales')
		RETURNING id
	`, email).Scan(&userID); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cart_headers WHERE customer_no = $1`, customerNo)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM app_users WHERE id = $1`, userID)
	})

	header, err := s.CreateCartHeader(ctx, domain.CartHeader{
		OrderType:    domain.OrderTypeDraft,
		OrderStatus:  domain.OrderStatusOpen,
		ARDivisionNo: "01",
		CustomerNo:   customerNo,
		TaxSchedule:  domain.TaxScheduleNonTaxable,
	})
	if err != nil {
		t.Fatalf("create header: %v", err)
	}

	if _, err := s.GetCartHeader(ctx, userID, header.ID); err == nil {
		t.Fatalf("expected header to be hidden before a grant exists")
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO user_access_grants (user_id, kind, pattern) VALUES ($1, 'customer', '01-%')
	`, userID); err != nil {
		t.Fatalf("insert grant: %v", err)
	}

	line, err := s.InsertCartLine(ctx, domain.CartLine{
		CartHeaderID:            header.ID,
		ItemCode:                "IT-ITEM-A",
		ItemType:                domain.ItemTypeStock,
		UnitOfMeasure:           "EA",
		UnitOfMeasureConvFactor: decimal.NewFromInt(1),
		QuantityOrdered:         decimal.NewFromInt(2),
		UnitPrice:               decimal.RequireFromString("10.25"),
		ExtensionAmt:            decimal.RequireFromString("20.50"),
		TaxClass:                "TX",
	})
	if err != nil {
		t.Fatalf("insert line: %v", err)
	}
	if line.LineSeqNo != 1 {
		t.Fatalf("expected first line sequence 1, got %d", line.LineSeqNo)
	}

	totals, err := s.UpdateCartTotals(ctx, header.ID)
	if err != nil {
		t.Fatalf("update totals: %v", err)
	}
	if !totals.TaxableAmt.IsZero() || !totals.NonTaxableAmt.Equal(decimal.RequireFromString("20.50")) {
		t.Fatalf("expected NONTAX schedule to move everything to nonTaxableAmt, got %+v", totals)
	}

	if err := s.CancelCartHeader(ctx, header.ID, userID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	lines, err := s.ListCartLines(ctx, userID, header.ID)
	if err != nil {
		t.Fatalf("list lines: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected canceled cart lines to be hidden, got %d", len(lines))
	}
}

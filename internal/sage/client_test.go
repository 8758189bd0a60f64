package sage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", APIKey: "secret", Timeout: 2 * time.Second}, zap.NewNop())
}

func TestGetSalesOrderParsesPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/salesorder/0001234" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "secret" {
			t.Errorf("expected api key header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":[{
			"SalesOrderNo":"0001234","OrderType":"S","OrderStatus":"N",
			"ARDivisionNo":"01","CustomerNo":"12345","ShipToCode":"MAIN",
			"TaxSchedule":"CA","DiscountAmt":"0.00","SalesTaxAmt":4.5,
			"UserCreatedKey":"0000000002","DateCreated":"2026-01-05","DateUpdated":"2026-01-06 08:15:00",
			"detail":[
				{"LineKey":"000001","LineSeqNo":1,"ItemCode":"ABC123","ItemType":"1","UnitOfMeasure":"EA",
				 "UnitOfMeasureConvFactor":1,"QuantityOrdered":"3","UnitPrice":"25.00","LineDiscountPercent":0,"TaxClass":"TX"}
			]}]}`))
	})

	order, err := client.GetSalesOrder(context.Background(), "0001234")
	if err != nil {
		t.Fatalf("get sales order: %v", err)
	}
	if order.CustomerKey().String() != "01-12345-MAIN" {
		t.Fatalf("unexpected customer key %s", order.CustomerKey())
	}
	if order.DateUpdated == nil || order.DateUpdated.Format(time.DateTime) != "2026-01-06 08:15:00" {
		t.Fatalf("unexpected DateUpdated %v", order.DateUpdated)
	}
	if order.ShipExpireDate != nil {
		t.Fatalf("expected empty ship date to stay nil")
	}
	if len(order.Detail) != 1 || order.Detail[0].UnitPrice.StringFixed(2) != "25.00" {
		t.Fatalf("unexpected detail %+v", order.Detail)
	}
	if order.SalesTaxAmt.StringFixed(2) != "4.50" {
		t.Fatalf("expected numeric decimals to parse, got %s", order.SalesTaxAmt)
	}
}

func TestGetSalesOrderErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"empty result", http.StatusOK, `{"result":[]}`, ErrOrderNotFound},
		{"not found", http.StatusNotFound, `{"error":"NotFound","message":"no such order"}`, ErrOrderNotFound},
		{"server error", http.StatusBadGateway, `upstream down`, ErrUnavailable},
	}
	for _, tc := range cases {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		})
		_, err := client.GetSalesOrder(context.Background(), "0009999")
		if !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
		}
	}
}

func TestGetSalesOrderSurfacesAPIErrorMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"SessionExpired","message":"Sage session expired"}`))
	})

	_, err := client.GetSalesOrder(context.Background(), "0001234")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "Sage session expired" {
		t.Fatalf("expected message to be surfaced verbatim, got %q", apiErr.Message)
	}
}

func TestGetSalesOrderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := New(Config{BaseURL: srv.URL, Timeout: time.Second}, zap.NewNop())

	if _, err := client.GetSalesOrder(context.Background(), "0001234"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := New(Config{}, nil).GetSalesOrder(context.Background(), "0001234"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

package sage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/backend/internal/domain"
)

var (
	ErrOrderNotFound = errors.New("sage order not found")
	ErrUnavailable   = errors.New("sage api unavailable")
	ErrNotConfigured = errors.New("sage api is not configured")
)

// APIError is an error payload returned by the Sage API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("sage api error %d: %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("sage api error %d: %s", e.StatusCode, e.Message)
}

const userAgent = "storefront-backend/1.0"

// maxResponseBytes bounds a single order payload.
const maxResponseBytes = 8 << 20

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		logger:     logger,
	}
}

type orderResponse struct {
	Result  []orderPayload `json:"result"`
	Error   string         `json:"error"`
	Message string         `json:"message"`
}

// orderPayload is the wire shape of a sales order. Sage sends dates as
// strings in a few layouts, so they are parsed separately.
type orderPayload struct {
	SalesOrderNo          string           `json:"SalesOrderNo"`
	OrderType             string           `json:"OrderType"`
	OrderStatus           string           `json:"OrderStatus"`
	ARDivisionNo          string           `json:"ARDivisionNo"`
	CustomerNo            string           `json:"CustomerNo"`
	ShipToCode            string           `json:"ShipToCode"`
	BillToName            string           `json:"BillToName"`
	SalespersonDivisionNo string           `json:"SalespersonDivisionNo"`
	SalespersonNo         string           `json:"SalespersonNo"`
	CustomerPONo          string           `json:"CustomerPONo"`
	Comment               string           `json:"Comment"`
	ShipExpireDate        string           `json:"ShipExpireDate"`
	TaxSchedule           string           `json:"TaxSchedule"`
	TaxableAmt            decimal.Decimal  `json:"TaxableAmt"`
	NonTaxableAmt         decimal.Decimal  `json:"NonTaxableAmt"`
	DiscountAmt           decimal.Decimal  `json:"DiscountAmt"`
	SalesTaxAmt           decimal.Decimal  `json:"SalesTaxAmt"`
	UserCreatedKey        string           `json:"UserCreatedKey"`
	UserUpdatedKey        string           `json:"UserUpdatedKey"`
	DateCreated           string           `json:"DateCreated"`
	DateUpdated           string           `json:"DateUpdated"`
	Detail                []domain.ERPLine `json:"detail"`
}

// GetSalesOrder fetches one order with its detail lines.
func (c *Client) GetSalesOrder(ctx context.Context, salesOrderNo string) (*domain.ERPOrder, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}
	salesOrderNo = strings.TrimSpace(salesOrderNo)
	if salesOrderNo == "" {
		return nil, domain.Invalid("salesOrderNo", "sales order number is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/salesorder/"+url.PathEscape(salesOrderNo), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}
	c.logger.Debug("sage request",
		zap.String("salesOrderNo", salesOrderNo),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)

	var payload orderResponse
	decodeErr := json.Unmarshal(body, &payload)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrOrderNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, &APIError{StatusCode: resp.StatusCode, Code: payload.Error, Message: payload.Message}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("parsing response: %w", decodeErr)
	}
	if payload.Error != "" {
		return nil, &APIError{StatusCode: resp.StatusCode, Code: payload.Error, Message: payload.Message}
	}
	if len(payload.Result) == 0 {
		return nil, ErrOrderNotFound
	}

	order, err := payload.Result[0].toDomain()
	if err != nil {
		return nil, err
	}
	if order.SalesOrderNo != salesOrderNo {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (p orderPayload) toDomain() (*domain.ERPOrder, error) {
	shipExpire, err := parseDate(p.ShipExpireDate)
	if err != nil {
		return nil, fmt.Errorf("ShipExpireDate: %w", err)
	}
	created, err := parseDate(p.DateCreated)
	if err != nil {
		return nil, fmt.Errorf("DateCreated: %w", err)
	}
	updated, err := parseDate(p.DateUpdated)
	if err != nil {
		return nil, fmt.Errorf("DateUpdated: %w", err)
	}
	return &domain.ERPOrder{
		SalesOrderNo:          p.SalesOrderNo,
		OrderType:             p.OrderType,
		OrderStatus:           p.OrderStatus,
		ARDivisionNo:          p.ARDivisionNo,
		CustomerNo:            p.CustomerNo,
		ShipToCode:            p.ShipToCode,
		BillToName:            p.BillToName,
		SalespersonDivisionNo: p.SalespersonDivisionNo,
		SalespersonNo:         p.SalespersonNo,
		CustomerPONo:          p.CustomerPONo,
		Comment:               p.Comment,
		ShipExpireDate:        shipExpire,
		TaxSchedule:           p.TaxSchedule,
		TaxableAmt:            p.TaxableAmt,
		NonTaxableAmt:         p.NonTaxableAmt,
		DiscountAmt:           p.DiscountAmt,
		SalesTaxAmt:           p.SalesTaxAmt,
		UserCreatedKey:        p.UserCreatedKey,
		UserUpdatedKey:        p.UserUpdatedKey,
		DateCreated:           created,
		DateUpdated:           updated,
		Detail:                p.Detail,
	}, nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date %q", raw)
}

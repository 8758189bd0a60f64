package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderTypeDraft     = "_"
	OrderTypeQuote     = "Q"
	OrderTypeStandard  = "S"
	OrderTypeBackOrder = "B"
)

const (
	OrderStatusOpen      = "N"
	OrderStatusCanceled  = "X"
	OrderStatusCanceledZ = "Z"
	OrderStatusClosed    = "C"
)

// Line status values drive the reconciliation state machine.
const (
	LineStatusLocal    = ""
	LineStatusPending  = "_"
	LineStatusImported = "I"
	LineStatusUpdated  = "U"
	LineStatusRetired  = "X"
)

const (
	// ItemTypeMisc lines carry no price of their own.
	ItemTypeMisc  = "4"
	ItemTypeStock = "1"

	TaxClassNonTaxable    = "NT"
	TaxScheduleNonTaxable = "NONTAX"

	ProductTypeDiscontinued = "D"
)

type CartView string

const (
	CartViewCart  CartView = "cart"
	CartViewOrder CartView = "order"
	CartViewQuote CartView = "quote"
)

// IsTerminalStatus reports whether an order status closes the header for editing and sync.
func IsTerminalStatus(status string) bool {
	switch status {
	case OrderStatusCanceled, OrderStatusCanceledZ, OrderStatusClosed:
		return true
	}
	return false
}

func IsCanceledStatus(status string) bool {
	return status == OrderStatusCanceled || status == OrderStatusCanceledZ
}

type CartHeader struct {
	ID                    int64           `json:"id"`
	SalesOrderNo          string          `json:"salesOrderNo,omitempty"`
	OrderType             string          `json:"orderType"`
	OrderStatus           string          `json:"orderStatus"`
	ARDivisionNo          string          `json:"arDivisionNo"`
	CustomerNo            string          `json:"customerNo"`
	ShipToCode            string          `json:"shipToCode,omitempty"`
	CustomerName          string          `json:"customerName,omitempty"`
	SalespersonDivisionNo string          `json:"salespersonDivisionNo,omitempty"`
	SalespersonNo         string          `json:"salespersonNo,omitempty"`
	CustomerPONo          string          `json:"customerPONo,omitempty"`
	PromoCode             string          `json:"promoCode,omitempty"`
	Comment               string          `json:"comment,omitempty"`
	ShipExpireDate        *time.Time      `json:"shipExpireDate,omitempty"`
	TaxSchedule           string          `json:"taxSchedule,omitempty"`
	TaxableAmt            decimal.Decimal `json:"taxableAmt"`
	NonTaxableAmt         decimal.Decimal `json:"nonTaxableAmt"`
	DiscountAmt           decimal.Decimal `json:"discountAmt"`
	SubTotalAmt           decimal.Decimal `json:"subTotalAmt"`
	SalesTaxAmt           decimal.Decimal `json:"salesTaxAmt"`
	CreatedByUserID       int64           `json:"createdByUserId,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedByUserID       int64           `json:"updatedByUserId,omitempty"`
	UpdatedAt             *time.Time      `json:"updatedAt,omitempty"`
	DateImported          *time.Time      `json:"dateImported,omitempty"`
}

func (h CartHeader) CustomerKey() CustomerKey {
	return CustomerKey{ARDivisionNo: h.ARDivisionNo, CustomerNo: h.CustomerNo, ShipToCode: h.ShipToCode}
}

// Editable reports whether lines and header fields may be changed by a user.
func (h CartHeader) Editable() bool {
	if IsTerminalStatus(h.OrderStatus) {
		return false
	}
	return h.OrderType == OrderTypeDraft || h.OrderType == OrderTypeQuote
}

type CartLine struct {
	ID                      int64           `json:"id"`
	CartHeaderID            int64           `json:"cartHeaderId"`
	SalesOrderNo            string          `json:"salesOrderNo,omitempty"`
	LineKey                 string          `json:"lineKey,omitempty"`
	LineSeqNo               int             `json:"lineSeqNo"`
	ItemCode                string          `json:"itemCode"`
	ItemType                string          `json:"itemType"`
	ItemCodeDesc            string          `json:"itemCodeDesc,omitempty"`
	ProductID               *int64          `json:"productId,omitempty"`
	ProductItemID           *int64          `json:"productItemId,omitempty"`
	PriceLevel              string          `json:"priceLevel,omitempty"`
	UnitOfMeasure           string          `json:"unitOfMeasure"`
	UnitOfMeasureConvFactor decimal.Decimal `json:"unitOfMeasureConvFactor"`
	QuantityOrdered         decimal.Decimal `json:"quantityOrdered"`
	UnitPrice               decimal.Decimal `json:"unitPrice"`
	LineDiscountPercent     decimal.Decimal `json:"lineDiscountPercent"`
	ExtensionAmt            decimal.Decimal `json:"extensionAmt"`
	TaxClass                string          `json:"taxClass,omitempty"`
	CommentText             string          `json:"commentText,omitempty"`
	LineStatus              string          `json:"lineStatus"`
	History                 []HistoryEntry  `json:"history,omitempty"`
	CreatedByUserID         int64           `json:"createdByUserId,omitempty"`
	CreatedAt               time.Time       `json:"createdAt"`
	UpdatedByUserID         int64           `json:"updatedByUserId,omitempty"`
	UpdatedAt               *time.Time      `json:"updatedAt,omitempty"`

	// Read-only enrichment joined from the catalog on load.
	Product *ProductSummary `json:"product,omitempty"`
}

// Taxable reports whether the line contributes to taxableAmt under the given header schedule.
func (l CartLine) Taxable(taxSchedule string) bool {
	if taxSchedule == TaxScheduleNonTaxable {
		return false
	}
	return l.TaxClass != TaxClassNonTaxable
}

type HistoryEntry struct {
	Action  string            `json:"action"`
	At      time.Time         `json:"at"`
	UserID  int64             `json:"userId,omitempty"`
	Changes map[string]string `json:"changes,omitempty"`
}

const (
	HistoryInsert  = "insert"
	HistoryUpdate  = "update"
	HistoryRetire  = "retire"
	HistoryRemove  = "remove"
	HistoryRestore = "restore"
)

type ProductSummary struct {
	ProductID       int64           `json:"productId"`
	ProductItemID   int64           `json:"productItemId,omitempty"`
	Name            string          `json:"name,omitempty"`
	Image           string          `json:"image,omitempty"`
	QuantityAvail   decimal.Decimal `json:"quantityAvailable"`
	SuggestedRetail decimal.Decimal `json:"suggestedRetailPrice"`
	InactiveItem    bool            `json:"inactiveItem"`
}

type Cart struct {
	Header CartHeader `json:"header"`
	Detail []CartLine `json:"detail"`
}

type Totals struct {
	TaxableAmt    decimal.Decimal `json:"taxableAmt"`
	NonTaxableAmt decimal.Decimal `json:"nonTaxableAmt"`
	SubTotalAmt   decimal.Decimal `json:"subTotalAmt"`
}

// ComputeTotals sums non-retired line extensions split by tax class.
func ComputeTotals(taxSchedule string, lines []CartLine) Totals {
	taxable := decimal.Zero
	nonTaxable := decimal.Zero
	for _, line := range lines {
		if line.LineStatus == LineStatusRetired {
			continue
		}
		if line.Taxable(taxSchedule) {
			taxable = taxable.Add(line.ExtensionAmt)
		} else {
			nonTaxable = nonTaxable.Add(line.ExtensionAmt)
		}
	}
	return Totals{
		TaxableAmt:    taxable,
		NonTaxableAmt: nonTaxable,
		SubTotalAmt:   taxable.Add(nonTaxable),
	}
}

// ExtensionAmount is quantity x unit price less the line discount, rounded to cents.
func ExtensionAmount(qty decimal.Decimal, unitPrice decimal.Decimal, discountPercent decimal.Decimal) decimal.Decimal {
	ext := qty.Mul(unitPrice)
	if discountPercent.IsPositive() {
		ext = ext.Mul(decimal.NewFromInt(100).Sub(discountPercent)).Div(decimal.NewFromInt(100))
	}
	return ext.Round(2)
}

type CartHeaderQuery struct {
	UserID   int64
	CartID   int64
	Customer *CustomerKey
	View     CartView
}

type AddToCartRequest struct {
	CartID         int64           `json:"cartId"`
	CustomerKey    string          `json:"customerKey"`
	ItemCode       string          `json:"itemCode"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitOfMeasure  string          `json:"unitOfMeasure,omitempty"`
	PriceLevel     string          `json:"priceLevel,omitempty"`
	CommentText    string          `json:"commentText,omitempty"`
	ProductID      *int64          `json:"productId,omitempty"`
	ProductItemID  *int64          `json:"productItemId,omitempty"`
	AllowZeroPrice bool            `json:"-"`
}

type UpdateCartItemRequest struct {
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	UnitOfMeasure *string          `json:"unitOfMeasure,omitempty"`
	CommentText   *string          `json:"commentText,omitempty"`
}

type UpdateCartHeaderRequest struct {
	ShipToCode     *string    `json:"shipToCode,omitempty"`
	PromoCode      *string    `json:"promoCode,omitempty"`
	CustomerPONo   *string    `json:"customerPONo,omitempty"`
	Comment        *string    `json:"comment,omitempty"`
	ShipExpireDate *time.Time `json:"shipExpireDate,omitempty"`
}

type CreateCartRequest struct {
	CustomerKey  string `json:"customerKey"`
	CustomerPONo string `json:"customerPONo,omitempty"`
	Comment      string `json:"comment,omitempty"`
}

type DuplicateOrderRequest struct {
	CustomerKey    string `json:"customerKey"`
	SalesOrderNo   string `json:"salesOrderNo"`
	CustomerPONo   string `json:"customerPONo,omitempty"`
	AllowZeroPrice bool   `json:"allowZeroPrice,omitempty"`
}

type DuplicateOrderResponse struct {
	Cart         *Cart    `json:"cart"`
	SkippedItems []string `json:"skippedItems,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	UserID int64
	Email  string
	Role   string
}

type UserAccount struct {
	ID        int64
	Email     string
	Name      string
	Password  string
	Role      string
	Active    bool
	SageKey   string
	CreatedAt time.Time
}

const (
	AccessKindCustomer    = "customer"
	AccessKindSalesperson = "salesperson"
)

// AccessGrant is one row of the access-control join. Pattern supports SQL LIKE wildcards.
type AccessGrant struct {
	UserID  int64  `json:"userId"`
	Kind    string `json:"kind"`
	Pattern string `json:"pattern"`
}

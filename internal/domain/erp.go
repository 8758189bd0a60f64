package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ERPOrder mirrors a Sage sales order header and its detail lines.
type ERPOrder struct {
	SalesOrderNo          string          `json:"SalesOrderNo"`
	OrderType             string          `json:"OrderType"`
	OrderStatus           string          `json:"OrderStatus"`
	ARDivisionNo          string          `json:"ARDivisionNo"`
	CustomerNo            string          `json:"CustomerNo"`
	ShipToCode            string          `json:"ShipToCode"`
	BillToName            string          `json:"BillToName"`
	SalespersonDivisionNo string          `json:"SalespersonDivisionNo"`
	SalespersonNo         string          `json:"SalespersonNo"`
	CustomerPONo          string          `json:"CustomerPONo"`
	Comment               string          `json:"Comment"`
	ShipExpireDate        *time.Time      `json:"ShipExpireDate"`
	TaxSchedule           string          `json:"TaxSchedule"`
	TaxableAmt            decimal.Decimal `json:"TaxableAmt"`
	NonTaxableAmt         decimal.Decimal `json:"NonTaxableAmt"`
	DiscountAmt           decimal.Decimal `json:"DiscountAmt"`
	SalesTaxAmt           decimal.Decimal `json:"SalesTaxAmt"`
	UserCreatedKey        string          `json:"UserCreatedKey"`
	UserUpdatedKey        string          `json:"UserUpdatedKey"`
	DateCreated           *time.Time      `json:"DateCreated"`
	DateUpdated           *time.Time      `json:"DateUpdated"`
	Detail                []ERPLine       `json:"detail"`
}

func (o ERPOrder) CustomerKey() CustomerKey {
	return CustomerKey{ARDivisionNo: o.ARDivisionNo, CustomerNo: o.CustomerNo, ShipToCode: o.ShipToCode}
}

// ERPLine mirrors one Sage sales order detail line.
type ERPLine struct {
	LineKey                 string          `json:"LineKey"`
	LineSeqNo               int             `json:"LineSeqNo"`
	ItemCode                string          `json:"ItemCode"`
	ItemType                string          `json:"ItemType"`
	ItemCodeDesc            string          `json:"ItemCodeDesc"`
	ExplodedKitItem         string          `json:"ExplodedKitItem"`
	PriceLevel              string          `json:"PriceLevel"`
	UnitOfMeasure           string          `json:"UnitOfMeasure"`
	UnitOfMeasureConvFactor decimal.Decimal `json:"UnitOfMeasureConvFactor"`
	QuantityOrdered         decimal.Decimal `json:"QuantityOrdered"`
	UnitPrice               decimal.Decimal `json:"UnitPrice"`
	LineDiscountPercent     decimal.Decimal `json:"LineDiscountPercent"`
	TaxClass                string          `json:"TaxClass"`
	CommentText             string          `json:"CommentText"`
}

// ExplodedKitComponent marks lines generated by exploding a kit into components.
const ExplodedKitComponent = "C"

// SyncScope narrows a reconciliation pass. The zero value is the global scope.
type SyncScope struct {
	CartID   int64
	Customer *CustomerKey
}

type SyncResult struct {
	Closed       int `json:"closed"`
	Header       int `json:"header"`
	Detail       int `json:"detail"`
	DeletedLines int `json:"deletedLines"`
}

func (r *SyncResult) Add(other SyncResult) {
	r.Closed += other.Closed
	r.Header += other.Header
	r.Detail += other.Detail
	r.DeletedLines += other.DeletedLines
}

// ERPOrderFilter selects replicated ERP orders. Empty fields do not filter.
type ERPOrderFilter struct {
	SalesOrderNo string
	Customer     *CustomerKey
}

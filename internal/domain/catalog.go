package domain

import "github.com/shopspring/decimal"

const CustomerStatusInactive = "I"

// Customer is the replicated ERP customer record relevant to pricing and access.
type Customer struct {
	ARDivisionNo          string `json:"arDivisionNo"`
	CustomerNo            string `json:"customerNo"`
	CustomerName          string `json:"customerName"`
	CustomerStatus        string `json:"customerStatus"`
	PriceLevel            string `json:"priceLevel,omitempty"`
	TaxSchedule           string `json:"taxSchedule,omitempty"`
	SalespersonDivisionNo string `json:"salespersonDivisionNo,omitempty"`
	SalespersonNo         string `json:"salespersonNo,omitempty"`
}

func (c Customer) Key() CustomerKey {
	return CustomerKey{ARDivisionNo: c.ARDivisionNo, CustomerNo: c.CustomerNo}
}

func (c Customer) Active() bool {
	return c.CustomerStatus != CustomerStatusInactive
}

type ShipToAddress struct {
	ARDivisionNo  string `json:"arDivisionNo"`
	CustomerNo    string `json:"customerNo"`
	ShipToCode    string `json:"shipToCode"`
	ShipToName    string `json:"shipToName"`
	SalespersonNo string `json:"salespersonNo,omitempty"`
}

// Item is the replicated ERP item master record.
type Item struct {
	ItemCode              string          `json:"itemCode"`
	ItemCodeDesc          string          `json:"itemCodeDesc"`
	ItemType              string          `json:"itemType"`
	ProductType           string          `json:"productType"`
	InactiveItem          bool            `json:"inactiveItem"`
	StandardUnitPrice     decimal.Decimal `json:"standardUnitPrice"`
	StandardUnitCost      decimal.Decimal `json:"standardUnitCost"`
	SuggestedRetailPrice  decimal.Decimal `json:"suggestedRetailPrice"`
	StandardUnitOfMeasure string          `json:"standardUnitOfMeasure"`
	SalesUnitOfMeasure    string          `json:"salesUnitOfMeasure"`
	SalesUMConvFactor     decimal.Decimal `json:"salesUMConvFactor"`
	TaxClass              string          `json:"taxClass"`
	QuantityAvailable     decimal.Decimal `json:"quantityAvailable"`
	Units                 []ItemUnit      `json:"units,omitempty"`
}

// Sellable reports whether the item is active and not a discontinued product type.
func (i Item) Sellable() bool {
	return !i.InactiveItem && i.ProductType != ProductTypeDiscontinued
}

// ItemUnit is an alternate sales unit of measure for an item.
type ItemUnit struct {
	UnitOfMeasure string          `json:"unitOfMeasure"`
	ConvFactor    decimal.Decimal `json:"convFactor"`
}

type UnitOfMeasure struct {
	UnitOfMeasure string          `json:"unitOfMeasure"`
	ConvFactor    decimal.Decimal `json:"convFactor"`
}

// Pricing record kinds, in the order they are ranked by the resolver.
const (
	PriceRuleCustomerLevel = "L" // customer + item + price level
	PriceRuleItemLevel     = "1" // item + price level
	PriceRuleCustomerItem  = "2" // item + customer, any level
	PriceRuleStandard      = "S" // the item's own standard price
)

// PriceRule is one replicated ERP price code row.
type PriceRule struct {
	Kind          string          `json:"kind"`
	ItemCode      string          `json:"itemCode"`
	PriceLevel    string          `json:"priceLevel,omitempty"`
	ARDivisionNo  string          `json:"arDivisionNo,omitempty"`
	CustomerNo    string          `json:"customerNo,omitempty"`
	PricingMethod string          `json:"pricingMethod"`
	Markup        decimal.Decimal `json:"markup"`
}

const (
	PricingMethodOverride      = "O"
	PricingMethodPriceDiscount = "P"
	PricingMethodCostPlus      = "C"
	PricingMethodDiscountPct   = "D"
	PricingMethodMarkupPct     = "M"
)

// PricingRecord is the resolved price for one customer, item and price level.
type PricingRecord struct {
	ItemCode          string              `json:"itemCode"`
	ARDivisionNo      string              `json:"arDivisionNo"`
	CustomerNo        string              `json:"customerNo"`
	PriceLevel        string              `json:"priceLevel,omitempty"`
	Kind              string              `json:"kind"`
	PricingMethod     string              `json:"pricingMethod,omitempty"`
	Markup            decimal.Decimal     `json:"markup"`
	StandardUnitPrice decimal.Decimal     `json:"standardUnitPrice"`
	StandardUnitCost  decimal.Decimal     `json:"standardUnitCost"`
	UnitOfMeasure     string              `json:"unitOfMeasure"`
	ConvFactor        decimal.Decimal     `json:"convFactor"`
	BasePrice         decimal.NullDecimal `json:"basePrice"`
	UnitPrice         decimal.NullDecimal `json:"unitPrice"`
}

// RequiresManualPrice is true when no price could be computed.
func (p PricingRecord) RequiresManualPrice() bool {
	return !p.UnitPrice.Valid
}

// ProductRef is the best-effort storefront catalog cross-reference for an ERP item code.
type ProductRef struct {
	ItemCode      string `json:"itemCode"`
	ProductID     int64  `json:"productId"`
	ProductItemID int64  `json:"productItemId,omitempty"`
	Name          string `json:"name,omitempty"`
	Image         string `json:"image,omitempty"`
}

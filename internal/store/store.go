package store

import (
	"context"
	"errors"

	"storefront/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

// AccessChecker resolves the access-control join for a user.
type AccessChecker interface {
	HasAccess(ctx context.Context, userID int64, customer domain.CustomerKey, salespersonKey string) (bool, error)
}

// Catalog is the replicated ERP master data used by pricing.
type Catalog interface {
	GetCustomer(ctx context.Context, key domain.CustomerKey) (*domain.Customer, error)
	GetShipToAddress(ctx context.Context, key domain.CustomerKey) (*domain.ShipToAddress, error)
	GetItem(ctx context.Context, itemCode string) (*domain.Item, error)
	ListPriceRules(ctx context.Context, itemCode string, customer domain.CustomerKey, priceLevel string) ([]domain.PriceRule, error)
	LookupProductRef(ctx context.Context, itemCode string) (*domain.ProductRef, error)
}

// Carts is the locally-owned cart header and line storage.
type Carts interface {
	ListCartHeaders(ctx context.Context, query domain.CartHeaderQuery) ([]domain.CartHeader, error)
	GetCartHeader(ctx context.Context, userID int64, cartID int64) (*domain.CartHeader, error)
	CreateCartHeader(ctx context.Context, header domain.CartHeader) (*domain.CartHeader, error)
	UpdateCartHeader(ctx context.Context, header domain.CartHeader) error
	CancelCartHeader(ctx context.Context, cartID int64, userID int64) error
	UpdateCartTotals(ctx context.Context, cartID int64) (domain.Totals, error)

	ListCartLines(ctx context.Context, userID int64, cartID int64) ([]domain.CartLine, error)
	GetCartLine(ctx context.Context, cartID int64, lineID int64) (*domain.CartLine, error)
	InsertCartLine(ctx context.Context, line domain.CartLine) (*domain.CartLine, error)
	UpdateCartLine(ctx context.Context, line domain.CartLine) error
	DeleteCartLine(ctx context.Context, cartID int64, lineID int64) error
}

// ERPMirror holds the conditional writes used by reconciliation and the
// replicated ERP order tables it reads from.
type ERPMirror interface {
	ListERPOrders(ctx context.Context, filter domain.ERPOrderFilter) ([]domain.ERPOrder, error)
	GetERPOrder(ctx context.Context, salesOrderNo string) (*domain.ERPOrder, error)

	FindHeaderBySalesOrderNo(ctx context.Context, salesOrderNo string) (*domain.CartHeader, error)
	SetHeaderStatusFromERP(ctx context.Context, cartID int64, orderType string, orderStatus string) (bool, error)
	UpsertHeaderFromERP(ctx context.Context, header domain.CartHeader) (int64, bool, error)
	ListLinesForSync(ctx context.Context, cartID int64) ([]domain.CartLine, error)
	MarkLinesPending(ctx context.Context, cartID int64) (int, error)
	ApplyERPLine(ctx context.Context, line domain.CartLine, entry *domain.HistoryEntry) (bool, error)
	InsertERPLine(ctx context.Context, line domain.CartLine) (bool, error)
	RetirePendingLines(ctx context.Context, cartID int64, entry domain.HistoryEntry) (int, error)
	UpdateCartTotals(ctx context.Context, cartID int64) (domain.Totals, error)
}

type Users interface {
	FindUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	FindUserBySageKey(ctx context.Context, sageKey string) (*domain.UserAccount, error)
}

type Repository interface {
	AccessChecker
	Catalog
	Carts
	ERPMirror
	Users
}

// SalespersonKey renders the salesperson identity used by access grants.
func SalespersonKey(divisionNo string, salespersonNo string) string {
	if salespersonNo == "" {
		return ""
	}
	return divisionNo + "-" + salespersonNo
}

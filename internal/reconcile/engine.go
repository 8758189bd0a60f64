package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/sage"
	"storefront/backend/internal/store"
)

// OrderSource fetches a single order directly from the ERP.
type OrderSource interface {
	GetSalesOrder(ctx context.Context, salesOrderNo string) (*domain.ERPOrder, error)
}

// Engine mirrors ERP orders into local carts. A pass never pushes local
// edits upstream and is safe to re-run.
type Engine struct {
	repo   store.Repository
	source OrderSource
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(repo store.Repository, source OrderSource, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		repo:   repo,
		source: source,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Sync runs a reconciliation pass over the replicated ERP orders in scope
// that the user may see. Only store read failures are returned; individual
// header and line write failures are logged and left out of the counts.
func (e *Engine) Sync(ctx context.Context, userID int64, scope domain.SyncScope) (domain.SyncResult, error) {
	var result domain.SyncResult
	if userID <= 0 {
		return result, domain.ErrUnauthenticated
	}

	filter := domain.ERPOrderFilter{Customer: scope.Customer}
	if scope.CartID != 0 {
		header, err := e.repo.GetCartHeader(ctx, userID, scope.CartID)
		if errors.Is(err, store.ErrNotFound) {
			return result, nil
		}
		if err != nil {
			return result, fmt.Errorf("load cart header: %w", err)
		}
		if header.SalesOrderNo == "" {
			return result, nil
		}
		filter.SalesOrderNo = header.SalesOrderNo
	}

	orders, err := e.repo.ListERPOrders(ctx, filter)
	if err != nil {
		return result, fmt.Errorf("list erp orders: %w", err)
	}

	p := e.newPass(userID)
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		ok, err := e.accessible(ctx, userID, order)
		if err != nil {
			return result, err
		}
		if !ok {
			continue
		}
		result.Add(p.applyOrder(ctx, order))
	}

	e.logger.Info("sync pass complete",
		zap.Int64("userId", userID),
		zap.Int64("cartId", scope.CartID),
		zap.Int("orders", len(orders)),
		zap.Int("closed", result.Closed),
		zap.Int("header", result.Header),
		zap.Int("detail", result.Detail),
		zap.Int("deletedLines", result.DeletedLines),
	)
	return result, nil
}

// SyncFromSage refreshes one order from a freshly fetched ERP payload using
// the same state machine as Sync.
func (e *Engine) SyncFromSage(ctx context.Context, userID int64, salesOrderNo string) (domain.SyncResult, error) {
	var result domain.SyncResult
	if userID <= 0 {
		return result, domain.ErrUnauthenticated
	}
	if e.source == nil {
		return result, fmt.Errorf("no ERP order source: %w", sage.ErrNotConfigured)
	}

	order, err := e.source.GetSalesOrder(ctx, salesOrderNo)
	if err != nil {
		return result, err
	}
	ok, err := e.accessible(ctx, userID, *order)
	if err != nil {
		return result, err
	}
	if !ok {
		return result, store.ErrNotFound
	}

	result = e.newPass(userID).applyOrder(ctx, *order)
	e.logger.Info("sage order refreshed",
		zap.String("salesOrderNo", order.SalesOrderNo),
		zap.Int("header", result.Header),
		zap.Int("detail", result.Detail),
		zap.Int("deletedLines", result.DeletedLines),
	)
	return result, nil
}

func (e *Engine) accessible(ctx context.Context, userID int64, order domain.ERPOrder) (bool, error) {
	ok, err := e.repo.HasAccess(ctx, userID, order.CustomerKey(), store.SalespersonKey(order.SalespersonDivisionNo, order.SalespersonNo))
	if err != nil {
		return false, fmt.Errorf("check access: %w", err)
	}
	return ok, nil
}

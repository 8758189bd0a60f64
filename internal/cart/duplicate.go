package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/store"
)

// DuplicateOrder copies an ERP order into a new draft cart. Each eligible line
// is re-added through AddToCart so it is priced against current pricing and
// units; lines that fail are skipped and reported.
func (s *Service) DuplicateOrder(ctx context.Context, userID int64, req domain.DuplicateOrderRequest) (*domain.DuplicateOrderResponse, error) {
	if userID <= 0 {
		return nil, ErrUnauthenticated
	}
	key, err := domain.ParseCustomerKey(req.CustomerKey)
	if err != nil {
		return nil, err
	}
	salesOrderNo := strings.TrimSpace(req.SalesOrderNo)
	if salesOrderNo == "" {
		return nil, domain.Invalid("salesOrderNo", "sales order number is required")
	}

	source, err := s.repo.GetERPOrder(ctx, salesOrderNo)
	if err != nil {
		return nil, err
	}
	if !source.CustomerKey().SameAccount(key) {
		return nil, store.ErrNotFound
	}
	if key.ShipToCode == "" {
		key.ShipToCode = source.ShipToCode
	}
	if err := s.requireAccess(ctx, userID, key, source.SalespersonDivisionNo, source.SalespersonNo); err != nil {
		return nil, err
	}
	if domain.IsTerminalStatus(source.OrderStatus) {
		return nil, domain.Invalid("salesOrderNo", "order %s is canceled or closed", salesOrderNo)
	}

	poNo := strings.TrimSpace(req.CustomerPONo)
	header, err := s.newDraftHeader(ctx, userID, key, poNo, source.Comment)
	if err != nil {
		return nil, err
	}

	resp := &domain.DuplicateOrderResponse{}
	for _, line := range source.Detail {
		if !s.duplicable(ctx, line) {
			continue
		}
		_, err := s.AddToCart(ctx, userID, domain.AddToCartRequest{
			CartID:         header.ID,
			ItemCode:       line.ItemCode,
			Quantity:       line.QuantityOrdered,
			UnitOfMeasure:  line.UnitOfMeasure,
			CommentText:    line.CommentText,
			AllowZeroPrice: req.AllowZeroPrice,
		})
		if err != nil {
			s.logger.Info("duplicate order line skipped",
				zap.String("salesOrderNo", salesOrderNo),
				zap.String("lineKey", line.LineKey),
				zap.String("itemCode", line.ItemCode),
				zap.Error(err),
			)
			resp.SkippedItems = append(resp.SkippedItems, line.ItemCode)
			continue
		}
	}

	cart, err := s.reload(ctx, header.ID, userID)
	if err != nil {
		return nil, err
	}
	resp.Cart = cart
	return resp, nil
}

// duplicable filters out kit components, empty stock lines and items that can
// no longer be sold.
func (s *Service) duplicable(ctx context.Context, line domain.ERPLine) bool {
	if line.ExplodedKitItem == domain.ExplodedKitComponent {
		return false
	}
	if line.ItemType == domain.ItemTypeStock && !line.QuantityOrdered.IsPositive() {
		return false
	}
	item, err := s.repo.GetItem(ctx, line.ItemCode)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("duplicate order item lookup failed", zap.String("itemCode", line.ItemCode), zap.Error(fmt.Errorf("load item: %w", err)))
		}
		return false
	}
	return item.Sellable()
}

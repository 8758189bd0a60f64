package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/pricing"
	"storefront/backend/internal/store"
)

var (
	ErrPriceRequired   = &domain.ValidationError{Field: "unitPrice", Message: "item requires manual pricing"}
	ErrItemUnavailable = &domain.ValidationError{Field: "itemCode", Message: "item is inactive, discontinued or unknown"}
	ErrCartNotEditable = errors.New("cart is not editable")
	ErrERPOwned        = errors.New("cart is linked to an ERP order")
	ErrUnauthenticated = domain.ErrUnauthenticated
)

type Service struct {
	repo   store.Repository
	prices *pricing.Resolver
	logger *zap.Logger
	now    func() time.Time
}

func New(repo store.Repository, prices *pricing.Resolver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		prices: prices,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// LoadCartHeader returns the headers visible to the user for the requested view.
func (s *Service) LoadCartHeader(ctx context.Context, query domain.CartHeaderQuery) ([]domain.CartHeader, error) {
	if query.UserID <= 0 {
		return nil, ErrUnauthenticated
	}
	switch query.View {
	case "", domain.CartViewCart, domain.CartViewOrder, domain.CartViewQuote:
	default:
		return nil, domain.Invalid("view", "unknown view %q", query.View)
	}
	return s.repo.ListCartHeaders(ctx, query)
}

func (s *Service) LoadCartDetail(ctx context.Context, cartID int64, userID int64) ([]domain.CartLine, error) {
	if userID <= 0 {
		return nil, ErrUnauthenticated
	}
	return s.repo.ListCartLines(ctx, userID, cartID)
}

// LoadCart returns nil without error when the cart does not exist or is not
// visible to the user.
func (s *Service) LoadCart(ctx context.Context, cartID int64, userID int64) (*domain.Cart, error) {
	if userID <= 0 {
		return nil, ErrUnauthenticated
	}
	header, err := s.repo.GetCartHeader(ctx, userID, cartID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	lines, err := s.LoadCartDetail(ctx, cartID, userID)
	if err != nil {
		return nil, err
	}
	return &domain.Cart{Header: *header, Detail: lines}, nil
}

func (s *Service) CreateCart(ctx context.Context, userID int64, req domain.CreateCartRequest) (*domain.Cart, error) {
	if userID <= 0 {
		return nil, ErrUnauthenticated
	}
	key, err := domain.ParseCustomerKey(req.CustomerKey)
	if err != nil {
		return nil, err
	}
	header, err := s.newDraftHeader(ctx, userID, key, strings.TrimSpace(req.CustomerPONo), strings.TrimSpace(req.Comment))
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, header.ID, userID)
}

// newDraftHeader validates the customer and the user's access to it and
// inserts an empty draft cart.
func (s *Service) newDraftHeader(ctx context.Context, userID int64, key domain.CustomerKey, poNo string, comment string) (*domain.CartHeader, error) {
	customer, err := s.repo.GetCustomer(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.Invalid("customerKey", "customer %s not found", key.AccountKey())
	}
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}
	if !customer.Active() {
		return nil, domain.Invalid("customerKey", "customer %s is inactive", key.AccountKey())
	}
	if key.ShipToCode != "" {
		if _, err := s.repo.GetShipToAddress(ctx, key); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, domain.Invalid("customerKey", "ship-to %s not found", key.String())
			}
			return nil, fmt.Errorf("load ship-to: %w", err)
		}
	}
	if err := s.requireAccess(ctx, userID, key, customer.SalespersonDivisionNo, customer.SalespersonNo); err != nil {
		return nil, err
	}

	return s.repo.CreateCartHeader(ctx, domain.CartHeader{
		OrderType:             domain.OrderTypeDraft,
		OrderStatus:           domain.OrderStatusOpen,
		ARDivisionNo:          key.ARDivisionNo,
		CustomerNo:            key.CustomerNo,
		ShipToCode:            key.ShipToCode,
		CustomerName:          customer.CustomerName,
		SalespersonDivisionNo: customer.SalespersonDivisionNo,
		SalespersonNo:         customer.SalespersonNo,
		CustomerPONo:          poNo,
		Comment:               comment,
		TaxSchedule:           customer.TaxSchedule,
		CreatedByUserID:       userID,
		CreatedAt:             s.now(),
	})
}

func (s *Service) requireAccess(ctx context.Context, userID int64, key domain.CustomerKey, salespersonDiv string, salespersonNo string) error {
	ok, err := s.repo.HasAccess(ctx, userID, key, store.SalespersonKey(salespersonDiv, salespersonNo))
	if err != nil {
		return fmt.Errorf("check access: %w", err)
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

// editableHeader loads a cart the user can see and rejects it unless it is
// still an open draft or quote.
func (s *Service) editableHeader(ctx context.Context, userID int64, cartID int64) (*domain.CartHeader, error) {
	if userID <= 0 {
		return nil, ErrUnauthenticated
	}
	header, err := s.repo.GetCartHeader(ctx, userID, cartID)
	if err != nil {
		return nil, err
	}
	if !header.Editable() {
		return nil, ErrCartNotEditable
	}
	return header, nil
}

func (s *Service) AddToCart(ctx context.Context, userID int64, req domain.AddToCartRequest) (*domain.Cart, error) {
	if userID <= 0 {
		return nil, ErrUnauthenticated
	}
	if !req.Quantity.IsPositive() {
		return nil, domain.Invalid("quantity", "quantity must be greater than zero")
	}
	itemCode := strings.ToUpper(strings.TrimSpace(req.ItemCode))
	if itemCode == "" {
		return nil, domain.Invalid("itemCode", "item code is required")
	}

	var header *domain.CartHeader
	if req.CartID == 0 {
		key, err := domain.ParseCustomerKey(req.CustomerKey)
		if err != nil {
			return nil, err
		}
		if header, err = s.newDraftHeader(ctx, userID, key, "", ""); err != nil {
			return nil, err
		}
	} else {
		var err error
		if header, err = s.editableHeader(ctx, userID, req.CartID); err != nil {
			return nil, err
		}
		if strings.TrimSpace(req.CustomerKey) != "" {
			key, err := domain.ParseCustomerKey(req.CustomerKey)
			if err != nil {
				return nil, err
			}
			if !key.SameAccount(header.CustomerKey()) {
				return nil, domain.Invalid("customerKey", "cart belongs to customer %s", header.CustomerKey().AccountKey())
			}
		}
	}

	item, err := s.repo.GetItem(ctx, itemCode)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrItemUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("load item: %w", err)
	}
	if !item.Sellable() {
		return nil, ErrItemUnavailable
	}

	price, err := s.priceLine(ctx, *header, *item, req.PriceLevel, req.UnitOfMeasure, req.AllowZeroPrice)
	if err != nil {
		return nil, err
	}

	line := domain.CartLine{
		CartHeaderID:            header.ID,
		SalesOrderNo:            header.SalesOrderNo,
		ItemCode:                item.ItemCode,
		ItemType:                item.ItemType,
		ItemCodeDesc:            item.ItemCodeDesc,
		ProductID:               req.ProductID,
		ProductItemID:           req.ProductItemID,
		PriceLevel:              price.priceLevel,
		UnitOfMeasure:           price.unit.UnitOfMeasure,
		UnitOfMeasureConvFactor: price.unit.ConvFactor,
		QuantityOrdered:         req.Quantity,
		UnitPrice:               price.unitPrice,
		ExtensionAmt:            domain.ExtensionAmount(req.Quantity, price.unitPrice, decimal.Zero),
		TaxClass:                item.TaxClass,
		CommentText:             strings.TrimSpace(req.CommentText),
		LineStatus:              domain.LineStatusLocal,
		CreatedByUserID:         userID,
		CreatedAt:               s.now(),
	}
	if line.ProductID == nil {
		s.attachProductRef(ctx, &line)
	}
	if _, err := s.repo.InsertCartLine(ctx, line); err != nil {
		return nil, fmt.Errorf("insert cart line: %w", err)
	}
	if err := s.recomputeTotals(ctx, header.ID); err != nil {
		return nil, err
	}
	return s.reload(ctx, header.ID, userID)
}

type linePrice struct {
	priceLevel string
	unit       domain.UnitOfMeasure
	unitPrice  decimal.Decimal
}

// priceLine resolves the unit of measure and current price for an item on a cart.
func (s *Service) priceLine(ctx context.Context, header domain.CartHeader, item domain.Item, priceLevel string, unit string, allowZero bool) (linePrice, error) {
	uom, err := s.prices.ResolveUnitOfMeasure(ctx, item.ItemCode, unit)
	if err != nil {
		return linePrice{}, err
	}
	record, err := s.prices.ResolvePrice(ctx, pricing.PriceRequest{
		Customer:      header.CustomerKey(),
		ItemCode:      item.ItemCode,
		PriceLevel:    priceLevel,
		UnitOfMeasure: uom.UnitOfMeasure,
	})
	if err != nil {
		return linePrice{}, err
	}
	out := linePrice{priceLevel: record.PriceLevel, unit: uom}
	switch {
	case record.UnitPrice.Valid:
		out.unitPrice = record.UnitPrice.Decimal
	case item.ItemType == domain.ItemTypeMisc || allowZero:
		out.unitPrice = decimal.Zero
	default:
		return linePrice{}, ErrPriceRequired
	}
	return out, nil
}

// attachProductRef is best effort; a missing cross-reference leaves the ids empty.
func (s *Service) attachProductRef(ctx context.Context, line *domain.CartLine) {
	ref, err := s.repo.LookupProductRef(ctx, line.ItemCode)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Debug("product cross-reference lookup failed", zap.String("itemCode", line.ItemCode), zap.Error(err))
		}
		return
	}
	productID := ref.ProductID
	line.ProductID = &productID
	if ref.ProductItemID != 0 {
		productItemID := ref.ProductItemID
		line.ProductItemID = &productItemID
	}
}

func (s *Service) UpdateCartItem(ctx context.Context, userID int64, cartID int64, lineID int64, req domain.UpdateCartItemRequest) (*domain.Cart, error) {
	header, err := s.editableHeader(ctx, userID, cartID)
	if err != nil {
		return nil, err
	}
	line, err := s.repo.GetCartLine(ctx, cartID, lineID)
	if err != nil {
		return nil, err
	}

	if req.Quantity != nil && req.Quantity.IsZero() {
		return s.RemoveCartItem(ctx, userID, cartID, lineID)
	}

	changes := map[string]string{}
	if req.Quantity != nil {
		if req.Quantity.IsNegative() {
			return nil, domain.Invalid("quantity", "quantity must not be negative")
		}
		if !req.Quantity.Equal(line.QuantityOrdered) {
			line.QuantityOrdered = *req.Quantity
			changes["quantityOrdered"] = req.Quantity.String()
		}
	}
	if req.CommentText != nil {
		comment := strings.TrimSpace(*req.CommentText)
		if comment != line.CommentText {
			line.CommentText = comment
			changes["commentText"] = comment
		}
	}
	if req.UnitOfMeasure != nil && !strings.EqualFold(strings.TrimSpace(*req.UnitOfMeasure), line.UnitOfMeasure) {
		item, err := s.repo.GetItem(ctx, line.ItemCode)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrItemUnavailable
		}
		if err != nil {
			return nil, fmt.Errorf("load item: %w", err)
		}
		if !item.Sellable() {
			return nil, ErrItemUnavailable
		}
		price, err := s.priceLine(ctx, *header, *item, line.PriceLevel, *req.UnitOfMeasure, false)
		if err != nil {
			return nil, err
		}
		line.UnitOfMeasure = price.unit.UnitOfMeasure
		line.UnitOfMeasureConvFactor = price.unit.ConvFactor
		line.UnitPrice = price.unitPrice
		line.PriceLevel = price.priceLevel
		changes["unitOfMeasure"] = line.UnitOfMeasure
		changes["unitPrice"] = line.UnitPrice.StringFixed(2)
	}
	if len(changes) == 0 {
		return s.reload(ctx, cartID, userID)
	}

	line.ExtensionAmt = domain.ExtensionAmount(line.QuantityOrdered, line.UnitPrice, line.LineDiscountPercent)
	line.UpdatedByUserID = userID
	if line.LineKey != "" {
		// ERP-linked lines become user-owned and are skipped by sync.
		line.LineStatus = domain.LineStatusUpdated
		line.History = append(line.History, domain.HistoryEntry{Action: domain.HistoryUpdate, At: s.now(), UserID: userID, Changes: changes})
	}
	if err := s.repo.UpdateCartLine(ctx, *line); err != nil {
		return nil, fmt.Errorf("update cart line: %w", err)
	}
	if err := s.recomputeTotals(ctx, cartID); err != nil {
		return nil, err
	}
	return s.reload(ctx, cartID, userID)
}

// RemoveCartItem hard-deletes lines that never reached the ERP and retires the rest.
func (s *Service) RemoveCartItem(ctx context.Context, userID int64, cartID int64, lineID int64) (*domain.Cart, error) {
	if _, err := s.editableHeader(ctx, userID, cartID); err != nil {
		return nil, err
	}
	line, err := s.repo.GetCartLine(ctx, cartID, lineID)
	if err != nil {
		return nil, err
	}

	if line.LineKey == "" {
		if err := s.repo.DeleteCartLine(ctx, cartID, lineID); err != nil {
			return nil, fmt.Errorf("delete cart line: %w", err)
		}
	} else {
		line.LineStatus = domain.LineStatusRetired
		line.UpdatedByUserID = userID
		line.History = append(line.History, domain.HistoryEntry{Action: domain.HistoryRemove, At: s.now(), UserID: userID})
		if err := s.repo.UpdateCartLine(ctx, *line); err != nil {
			return nil, fmt.Errorf("retire cart line: %w", err)
		}
	}
	if err := s.recomputeTotals(ctx, cartID); err != nil {
		return nil, err
	}
	return s.reload(ctx, cartID, userID)
}

func (s *Service) UpdateCartHeader(ctx context.Context, userID int64, cartID int64, req domain.UpdateCartHeaderRequest) (*domain.Cart, error) {
	header, err := s.editableHeader(ctx, userID, cartID)
	if err != nil {
		return nil, err
	}

	if req.ShipToCode != nil {
		shipTo := strings.ToUpper(strings.TrimSpace(*req.ShipToCode))
		if shipTo != header.ShipToCode {
			key := domain.CustomerKey{ARDivisionNo: header.ARDivisionNo, CustomerNo: header.CustomerNo, ShipToCode: shipTo}
			if shipTo != "" {
				if _, err := s.repo.GetShipToAddress(ctx, key); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return nil, domain.Invalid("shipToCode", "ship-to %s not found", key.String())
					}
					return nil, fmt.Errorf("load ship-to: %w", err)
				}
			}
			if err := s.requireAccess(ctx, userID, key, header.SalespersonDivisionNo, header.SalespersonNo); err != nil {
				return nil, err
			}
			header.ShipToCode = shipTo
		}
	}
	if req.PromoCode != nil {
		header.PromoCode = strings.ToUpper(strings.TrimSpace(*req.PromoCode))
	}
	if req.CustomerPONo != nil {
		header.CustomerPONo = strings.TrimSpace(*req.CustomerPONo)
	}
	if req.Comment != nil {
		header.Comment = strings.TrimSpace(*req.Comment)
	}
	if req.ShipExpireDate != nil {
		date := req.ShipExpireDate.UTC()
		header.ShipExpireDate = &date
	}
	header.UpdatedByUserID = userID

	if err := s.repo.UpdateCartHeader(ctx, *header); err != nil {
		return nil, fmt.Errorf("update cart header: %w", err)
	}
	return s.reload(ctx, cartID, userID)
}

// CancelCart closes a purely local cart. Carts linked to an ERP order are
// canceled in the ERP and arrive here through sync.
func (s *Service) CancelCart(ctx context.Context, userID int64, cartID int64) error {
	header, err := s.editableHeader(ctx, userID, cartID)
	if err != nil {
		return err
	}
	if header.SalesOrderNo != "" {
		return ErrERPOwned
	}
	if err := s.repo.CancelCartHeader(ctx, cartID, userID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrERPOwned
		}
		return err
	}
	return nil
}

func (s *Service) recomputeTotals(ctx context.Context, cartID int64) error {
	if _, err := s.repo.UpdateCartTotals(ctx, cartID); err != nil {
		return fmt.Errorf("recompute totals: %w", err)
	}
	return nil
}

func (s *Service) reload(ctx context.Context, cartID int64, userID int64) (*domain.Cart, error) {
	cart, err := s.LoadCart(ctx, cartID, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, store.ErrNotFound
	}
	return cart, nil
}

// LookupPrice resolves a price for a customer the user has access to.
func (s *Service) LookupPrice(ctx context.Context, userID int64, req pricing.PriceRequest) (*domain.PricingRecord, error) {
	if userID <= 0 {
		return nil, ErrUnauthenticated
	}
	if req.Customer.IsZero() {
		return nil, domain.ErrInvalidCustomerKey
	}
	var salespersonDiv, salespersonNo string
	customer, err := s.repo.GetCustomer(ctx, req.Customer)
	switch {
	case err == nil:
		salespersonDiv, salespersonNo = customer.SalespersonDivisionNo, customer.SalespersonNo
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("load customer: %w", err)
	}
	if err := s.requireAccess(ctx, userID, req.Customer, salespersonDiv, salespersonNo); err != nil {
		return nil, err
	}
	return s.prices.ResolvePrice(ctx, req)
}

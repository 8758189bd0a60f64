package memory

import (
	"context"
	"slices"
	"strings"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/store"
)

func (s *Store) GetCustomer(_ context.Context, key domain.CustomerKey) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[key.AccountKey()]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) GetShipToAddress(_ context.Context, key domain.CustomerKey) (*domain.ShipToAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addr, ok := s.shipTos[key.String()]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &addr, nil
}

func (s *Store) GetItem(_ context.Context, itemCode string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[strings.ToUpper(strings.TrimSpace(itemCode))]
	if !ok {
		return nil, store.ErrNotFound
	}
	item.Units = slices.Clone(item.Units)
	return &item, nil
}

// ListPriceRules returns every rule that could apply, in storage order.
func (s *Store) ListPriceRules(_ context.Context, itemCode string, customer domain.CustomerKey, priceLevel string) ([]domain.PriceRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]domain.PriceRule, 0)
	for _, rule := range s.priceRules {
		if rule.ItemCode != itemCode {
			continue
		}
		switch rule.Kind {
		case domain.PriceRuleCustomerLevel:
			if priceLevel == "" || rule.PriceLevel != priceLevel || rule.ARDivisionNo != customer.ARDivisionNo || rule.CustomerNo != customer.CustomerNo {
				continue
			}
		case domain.PriceRuleItemLevel:
			if priceLevel == "" || rule.PriceLevel != priceLevel {
				continue
			}
		case domain.PriceRuleCustomerItem:
			if rule.ARDivisionNo != customer.ARDivisionNo || rule.CustomerNo != customer.CustomerNo {
				continue
			}
		default:
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (s *Store) LookupProductRef(_ context.Context, itemCode string) (*domain.ProductRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.productRefs[itemCode]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &ref, nil
}

func (s *Store) ListERPOrders(_ context.Context, filter domain.ERPOrderFilter) ([]domain.ERPOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.ERPOrder, 0)
	for _, order := range s.erpOrders {
		if filter.SalesOrderNo != "" && order.SalesOrderNo != filter.SalesOrderNo {
			continue
		}
		if filter.Customer != nil {
			if !order.CustomerKey().SameAccount(*filter.Customer) {
				continue
			}
			if filter.Customer.ShipToCode != "" && order.ShipToCode != filter.Customer.ShipToCode {
				continue
			}
		}
		orders = append(orders, cloneOrder(order))
	}
	slices.SortFunc(orders, func(a, b domain.ERPOrder) int {
		return strings.Compare(a.SalesOrderNo, b.SalesOrderNo)
	})
	return orders, nil
}

func (s *Store) GetERPOrder(_ context.Context, salesOrderNo string) (*domain.ERPOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.erpOrders[salesOrderNo]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneOrder(order)
	return &out, nil
}

func (s *Store) FindHeaderBySalesOrderNo(_ context.Context, salesOrderNo string) (*domain.CartHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if h := s.headerBySalesOrderLocked(salesOrderNo); h != nil {
		out := cloneHeader(h)
		return &out, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) headerBySalesOrderLocked(salesOrderNo string) *domain.CartHeader {
	if salesOrderNo == "" {
		return nil
	}
	for _, h := range s.headers {
		if h.SalesOrderNo == salesOrderNo {
			return h
		}
	}
	return nil
}

func (s *Store) SetHeaderStatusFromERP(_ context.Context, cartID int64, orderType string, orderStatus string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.headers[cartID]
	if !ok {
		return false, store.ErrNotFound
	}
	if h.OrderType == orderType && h.OrderStatus == orderStatus {
		return false, nil
	}
	h.OrderType = orderType
	h.OrderStatus = orderStatus
	at := s.now()
	h.UpdatedAt = &at
	return true, nil
}

// UpsertHeaderFromERP inserts or refreshes the header keyed by sales order number.
// Refresh only happens when the incoming import stamp is newer and the local
// header is not closed or canceled.
func (s *Store) UpsertHeaderFromERP(_ context.Context, header domain.CartHeader) (int64, bool, error) {
	if header.SalesOrderNo == "" {
		return 0, false, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.headerBySalesOrderLocked(header.SalesOrderNo)
	if existing == nil {
		s.nextHeaderID++
		header.ID = s.nextHeaderID
		if header.CreatedAt.IsZero() {
			header.CreatedAt = s.now()
		}
		created := cloneHeader(&header)
		s.headers[header.ID] = &created
		return header.ID, true, nil
	}
	if domain.IsTerminalStatus(existing.OrderStatus) {
		return existing.ID, false, nil
	}
	if existing.DateImported != nil && (header.DateImported == nil || !header.DateImported.After(*existing.DateImported)) {
		return existing.ID, false, nil
	}

	existing.OrderType = header.OrderType
	existing.OrderStatus = header.OrderStatus
	existing.ARDivisionNo = header.ARDivisionNo
	existing.CustomerNo = header.CustomerNo
	existing.ShipToCode = header.ShipToCode
	existing.CustomerName = header.CustomerName
	existing.SalespersonDivisionNo = header.SalespersonDivisionNo
	existing.SalespersonNo = header.SalespersonNo
	existing.CustomerPONo = header.CustomerPONo
	existing.Comment = header.Comment
	existing.ShipExpireDate = cloneTime(header.ShipExpireDate)
	existing.TaxSchedule = header.TaxSchedule
	existing.DiscountAmt = header.DiscountAmt
	existing.SalesTaxAmt = header.SalesTaxAmt
	existing.UpdatedByUserID = header.UpdatedByUserID
	existing.DateImported = cloneTime(header.DateImported)
	at := s.now()
	existing.UpdatedAt = &at
	return existing.ID, true, nil
}

func (s *Store) ListLinesForSync(_ context.Context, cartID int64) ([]domain.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]domain.CartLine, 0)
	for _, line := range s.lines {
		if line.CartHeaderID == cartID && line.LineKey != "" {
			lines = append(lines, cloneLine(line))
		}
	}
	sortLines(lines)
	return lines, nil
}

func (s *Store) MarkLinesPending(_ context.Context, cartID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	marked := 0
	for _, line := range s.lines {
		if line.CartHeaderID == cartID && line.LineStatus == domain.LineStatusImported {
			line.LineStatus = domain.LineStatusPending
			marked++
		}
	}
	return marked, nil
}

// ApplyERPLine overwrites a mirrored line unless the user has edited it.
func (s *Store) ApplyERPLine(_ context.Context, line domain.CartLine, entry *domain.HistoryEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.lines[line.ID]
	if !ok {
		return false, store.ErrNotFound
	}
	if existing.LineStatus == domain.LineStatusUpdated {
		return false, nil
	}
	existing.SalesOrderNo = line.SalesOrderNo
	existing.LineSeqNo = line.LineSeqNo
	existing.ItemCode = line.ItemCode
	existing.ItemType = line.ItemType
	existing.ItemCodeDesc = line.ItemCodeDesc
	existing.PriceLevel = line.PriceLevel
	existing.UnitOfMeasure = line.UnitOfMeasure
	existing.UnitOfMeasureConvFactor = line.UnitOfMeasureConvFactor
	existing.QuantityOrdered = line.QuantityOrdered
	existing.UnitPrice = line.UnitPrice
	existing.LineDiscountPercent = line.LineDiscountPercent
	existing.ExtensionAmt = line.ExtensionAmt
	existing.TaxClass = line.TaxClass
	existing.CommentText = line.CommentText
	existing.LineStatus = domain.LineStatusImported
	if entry != nil {
		existing.History = append(existing.History, *entry)
		existing.UpdatedByUserID = line.UpdatedByUserID
		at := s.now()
		existing.UpdatedAt = &at
	}
	return true, nil
}

func (s *Store) InsertERPLine(_ context.Context, line domain.CartLine) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.lines {
		if existing.CartHeaderID == line.CartHeaderID && existing.LineKey == line.LineKey {
			return false, nil
		}
	}
	line.LineStatus = domain.LineStatusImported
	if _, err := s.insertLineLocked(line); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) RetirePendingLines(_ context.Context, cartID int64, entry domain.HistoryEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	retired := 0
	at := s.now()
	for _, line := range s.lines {
		if line.CartHeaderID != cartID || line.LineStatus != domain.LineStatusPending {
			continue
		}
		line.LineStatus = domain.LineStatusRetired
		line.History = append(line.History, entry)
		line.UpdatedAt = &at
		retired++
	}
	return retired, nil
}

func cloneOrder(src domain.ERPOrder) domain.ERPOrder {
	out := src
	out.Detail = slices.Clone(src.Detail)
	out.ShipExpireDate = cloneTime(src.ShipExpireDate)
	out.DateCreated = cloneTime(src.DateCreated)
	out.DateUpdated = cloneTime(src.DateUpdated)
	return out
}

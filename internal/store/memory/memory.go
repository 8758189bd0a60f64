package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	headers      map[int64]*domain.CartHeader
	lines        map[int64]*domain.CartLine
	nextHeaderID int64
	nextLineID   int64
	grants       []domain.AccessGrant
	customers    map[string]domain.Customer
	shipTos      map[string]domain.ShipToAddress
	items        map[string]domain.Item
	priceRules   []domain.PriceRule
	productRefs  map[string]domain.ProductRef
	erpOrders    map[string]domain.ERPOrder
	users        map[int64]domain.UserAccount
	now          func() time.Time
}

func New() *Store {
	return &Store{
		headers:     make(map[int64]*domain.CartHeader),
		lines:       make(map[int64]*domain.CartLine),
		customers:   make(map[string]domain.Customer),
		shipTos:     make(map[string]domain.ShipToAddress),
		items:       make(map[string]domain.Item),
		productRefs: make(map[string]domain.ProductRef),
		erpOrders:   make(map[string]domain.ERPOrder),
		users:       make(map[int64]domain.UserAccount),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

var _ store.Repository = (*Store)(nil)

func (s *Store) HasAccess(_ context.Context, userID int64, customer domain.CustomerKey, salespersonKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasAccessLocked(userID, customer, salespersonKey), nil
}

func (s *Store) hasAccessLocked(userID int64, customer domain.CustomerKey, salespersonKey string) bool {
	for _, grant := range s.grants {
		if grant.UserID != userID {
			continue
		}
		switch grant.Kind {
		case domain.AccessKindCustomer:
			if customer.IsZero() {
				continue
			}
			if likeMatch(grant.Pattern, customer.AccountKey()) {
				return true
			}
			if customer.ShipToCode != "" && likeMatch(grant.Pattern, customer.String()) {
				return true
			}
		case domain.AccessKindSalesperson:
			if salespersonKey != "" && likeMatch(grant.Pattern, salespersonKey) {
				return true
			}
		}
	}
	return false
}

func (s *Store) headerVisibleLocked(userID int64, h *domain.CartHeader) bool {
	if domain.IsCanceledStatus(h.OrderStatus) {
		return false
	}
	return s.hasAccessLocked(userID, h.CustomerKey(), store.SalespersonKey(h.SalespersonDivisionNo, h.SalespersonNo))
}

func matchesView(view domain.CartView, h *domain.CartHeader) bool {
	switch view {
	case domain.CartViewCart:
		return h.OrderType == domain.OrderTypeQuote || h.OrderType == domain.OrderTypeDraft
	case domain.CartViewOrder:
		return h.OrderType == domain.OrderTypeStandard || h.OrderType == domain.OrderTypeBackOrder
	case domain.CartViewQuote:
		return h.OrderType == domain.OrderTypeQuote
	}
	return true
}

func (s *Store) ListCartHeaders(_ context.Context, query domain.CartHeaderQuery) ([]domain.CartHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	headers := make([]domain.CartHeader, 0)
	for _, h := range s.headers {
		if query.CartID != 0 && h.ID != query.CartID {
			continue
		}
		if query.Customer != nil {
			if !h.CustomerKey().SameAccount(*query.Customer) {
				continue
			}
			if query.Customer.ShipToCode != "" && h.ShipToCode != query.Customer.ShipToCode {
				continue
			}
		}
		if !matchesView(query.View, h) || !s.headerVisibleLocked(query.UserID, h) {
			continue
		}
		headers = append(headers, cloneHeader(h))
	}
	slices.SortFunc(headers, func(a, b domain.CartHeader) int {
		return int(b.ID - a.ID)
	})
	return headers, nil
}

func (s *Store) GetCartHeader(_ context.Context, userID int64, cartID int64) (*domain.CartHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.headers[cartID]
	if !ok || !s.headerVisibleLocked(userID, h) {
		return nil, store.ErrNotFound
	}
	header := cloneHeader(h)
	return &header, nil
}

func (s *Store) CreateCartHeader(_ context.Context, header domain.CartHeader) (*domain.CartHeader, error) {
	if header.ARDivisionNo == "" || header.CustomerNo == "" {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if header.SalesOrderNo != "" {
		for _, h := range s.headers {
			if h.SalesOrderNo == header.SalesOrderNo {
				return nil, store.ErrConflict
			}
		}
	}
	s.nextHeaderID++
	header.ID = s.nextHeaderID
	if header.CreatedAt.IsZero() {
		header.CreatedAt = s.now()
	}
	created := cloneHeader(&header)
	s.headers[header.ID] = &created
	out := cloneHeader(&created)
	return &out, nil
}

func (s *Store) UpdateCartHeader(_ context.Context, header domain.CartHeader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.headers[header.ID]
	if !ok {
		return store.ErrNotFound
	}
	h.ShipToCode = header.ShipToCode
	h.PromoCode = header.PromoCode
	h.CustomerPONo = header.CustomerPONo
	h.Comment = header.Comment
	h.ShipExpireDate = cloneTime(header.ShipExpireDate)
	h.UpdatedByUserID = header.UpdatedByUserID
	at := s.now()
	h.UpdatedAt = &at
	return nil
}

func (s *Store) CancelCartHeader(_ context.Context, cartID int64, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.headers[cartID]
	if !ok {
		return store.ErrNotFound
	}
	if h.SalesOrderNo != "" {
		return store.ErrConflict
	}
	h.OrderStatus = domain.OrderStatusCanceled
	h.UpdatedByUserID = userID
	at := s.now()
	h.UpdatedAt = &at
	return nil
}

func (s *Store) UpdateCartTotals(_ context.Context, cartID int64) (domain.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.headers[cartID]
	if !ok {
		return domain.Totals{}, store.ErrNotFound
	}
	lines := make([]domain.CartLine, 0)
	for _, line := range s.lines {
		if line.CartHeaderID == cartID {
			lines = append(lines, *line)
		}
	}
	totals := domain.ComputeTotals(h.TaxSchedule, lines)
	h.TaxableAmt = totals.TaxableAmt
	h.NonTaxableAmt = totals.NonTaxableAmt
	h.SubTotalAmt = totals.SubTotalAmt
	return totals, nil
}

func (s *Store) ListCartLines(_ context.Context, userID int64, cartID int64) ([]domain.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.headers[cartID]
	if !ok || !s.headerVisibleLocked(userID, h) {
		return []domain.CartLine{}, nil
	}
	lines := make([]domain.CartLine, 0)
	for _, line := range s.lines {
		if line.CartHeaderID != cartID || line.LineStatus == domain.LineStatusRetired {
			continue
		}
		out := cloneLine(line)
		out.Product = s.productSummaryLocked(line.ItemCode)
		lines = append(lines, out)
	}
	sortLines(lines)
	return lines, nil
}

func (s *Store) productSummaryLocked(itemCode string) *domain.ProductSummary {
	ref, hasRef := s.productRefs[itemCode]
	item, hasItem := s.items[itemCode]
	if !hasRef && !hasItem {
		return nil
	}
	summary := &domain.ProductSummary{}
	if hasRef {
		summary.ProductID = ref.ProductID
		summary.ProductItemID = ref.ProductItemID
		summary.Name = ref.Name
		summary.Image = ref.Image
	}
	if hasItem {
		summary.QuantityAvail = item.QuantityAvailable
		summary.SuggestedRetail = item.SuggestedRetailPrice
		summary.InactiveItem = !item.Sellable()
		if summary.Name == "" {
			summary.Name = item.ItemCodeDesc
		}
	}
	return summary
}

func (s *Store) GetCartLine(_ context.Context, cartID int64, lineID int64) (*domain.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	line, ok := s.lines[lineID]
	if !ok || line.CartHeaderID != cartID || line.LineStatus == domain.LineStatusRetired {
		return nil, store.ErrNotFound
	}
	out := cloneLine(line)
	return &out, nil
}

func (s *Store) InsertCartLine(_ context.Context, line domain.CartLine) (*domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLineLocked(line)
}

func (s *Store) insertLineLocked(line domain.CartLine) (*domain.CartLine, error) {
	if _, ok := s.headers[line.CartHeaderID]; !ok {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(line.ItemCode) == "" {
		return nil, store.ErrInvalidInput
	}
	s.nextLineID++
	line.ID = s.nextLineID
	if line.LineSeqNo == 0 {
		line.LineSeqNo = s.nextSeqLocked(line.CartHeaderID)
	}
	if line.CreatedAt.IsZero() {
		line.CreatedAt = s.now()
	}
	stored := cloneLine(&line)
	s.lines[line.ID] = &stored
	out := cloneLine(&stored)
	return &out, nil
}

func (s *Store) nextSeqLocked(cartID int64) int {
	maxSeq := 0
	for _, line := range s.lines {
		if line.CartHeaderID == cartID && line.LineSeqNo > maxSeq {
			maxSeq = line.LineSeqNo
		}
	}
	return maxSeq + 1
}

func (s *Store) UpdateCartLine(_ context.Context, line domain.CartLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.lines[line.ID]
	if !ok || existing.CartHeaderID != line.CartHeaderID {
		return store.ErrNotFound
	}
	existing.UnitOfMeasure = line.UnitOfMeasure
	existing.UnitOfMeasureConvFactor = line.UnitOfMeasureConvFactor
	existing.QuantityOrdered = line.QuantityOrdered
	existing.UnitPrice = line.UnitPrice
	existing.PriceLevel = line.PriceLevel
	existing.ExtensionAmt = line.ExtensionAmt
	existing.CommentText = line.CommentText
	existing.LineStatus = line.LineStatus
	existing.History = slices.Clone(line.History)
	existing.UpdatedByUserID = line.UpdatedByUserID
	at := s.now()
	existing.UpdatedAt = &at
	return nil
}

func (s *Store) DeleteCartLine(_ context.Context, cartID int64, lineID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, ok := s.lines[lineID]
	if !ok || line.CartHeaderID != cartID {
		return store.ErrNotFound
	}
	delete(s.lines, lineID)
	return nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range s.users {
		if strings.ToLower(user.Email) == email {
			out := user
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) FindUserBySageKey(_ context.Context, sageKey string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if sageKey != "" && user.SageKey == sageKey {
			out := user
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

// likeMatch implements SQL LIKE semantics (% and _) case-insensitively.
func likeMatch(pattern string, value string) bool {
	p := []rune(strings.ToUpper(pattern))
	v := []rune(strings.ToUpper(value))
	pi, vi := 0, 0
	star, mark := -1, 0
	for vi < len(v) {
		switch {
		case pi < len(p) && (p[pi] == '_' || p[pi] == v[vi]):
			pi++
			vi++
		case pi < len(p) && p[pi] == '%':
			star = pi
			mark = vi
			pi++
		case star != -1:
			pi = star + 1
			mark++
			vi = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '%' {
		pi++
	}
	return pi == len(p)
}

func sortLines(lines []domain.CartLine) {
	slices.SortFunc(lines, func(a, b domain.CartLine) int {
		if a.LineSeqNo != b.LineSeqNo {
			return a.LineSeqNo - b.LineSeqNo
		}
		return int(a.ID - b.ID)
	})
}

func cloneHeader(src *domain.CartHeader) domain.CartHeader {
	out := *src
	out.ShipExpireDate = cloneTime(src.ShipExpireDate)
	out.UpdatedAt = cloneTime(src.UpdatedAt)
	out.DateImported = cloneTime(src.DateImported)
	return out
}

func cloneLine(src *domain.CartLine) domain.CartLine {
	out := *src
	out.History = slices.Clone(src.History)
	out.UpdatedAt = cloneTime(src.UpdatedAt)
	if src.ProductID != nil {
		id := *src.ProductID
		out.ProductID = &id
	}
	if src.ProductItemID != nil {
		id := *src.ProductItemID
		out.ProductItemID = &id
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}

func decimalOrOne(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return decimal.NewFromInt(1)
	}
	return d
}

package reconcile

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/store"
)

// pass carries per-call state: the syncing user and resolved ERP user keys.
type pass struct {
	*Engine
	userID int64
	users  map[string]int64
}

func (e *Engine) newPass(userID int64) *pass {
	return &pass{Engine: e, userID: userID, users: map[string]int64{}}
}

// applyOrder runs the ordered steps for one ERP order: status propagation,
// header upsert, detail pre-mark, update, insert, retirement and totals.
func (p *pass) applyOrder(ctx context.Context, order domain.ERPOrder) domain.SyncResult {
	var result domain.SyncResult
	log := p.logger.With(zap.String("salesOrderNo", order.SalesOrderNo))

	existing, err := p.repo.FindHeaderBySalesOrderNo(ctx, order.SalesOrderNo)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Warn("sync header lookup failed", zap.Error(err))
		return result
	}

	if existing != nil && order.OrderType != domain.OrderTypeQuote &&
		(existing.OrderType != order.OrderType || existing.OrderStatus != order.OrderStatus) {
		changed, err := p.repo.SetHeaderStatusFromERP(ctx, existing.ID, order.OrderType, order.OrderStatus)
		if err != nil {
			log.Warn("sync status propagation failed", zap.Error(err))
		} else if changed && domain.IsTerminalStatus(order.OrderStatus) {
			result.Closed++
		}
	}

	cartID, applied, err := p.repo.UpsertHeaderFromERP(ctx, p.headerFromOrder(ctx, order))
	if err != nil {
		log.Warn("sync header upsert failed", zap.Error(err))
		return result
	}
	if applied {
		result.Header++
	}

	header, err := p.repo.FindHeaderBySalesOrderNo(ctx, order.SalesOrderNo)
	if err != nil {
		log.Warn("sync header reload failed", zap.Error(err))
		return result
	}
	if domain.IsTerminalStatus(header.OrderStatus) {
		return result
	}

	detail, deleted := p.syncDetail(ctx, log, cartID, order)
	result.Detail += detail
	result.DeletedLines += deleted

	if _, err := p.repo.UpdateCartTotals(ctx, cartID); err != nil {
		log.Warn("sync totals recompute failed", zap.Error(err))
	}
	return result
}

func (p *pass) syncDetail(ctx context.Context, log *zap.Logger, cartID int64, order domain.ERPOrder) (int, int) {
	if _, err := p.repo.MarkLinesPending(ctx, cartID); err != nil {
		log.Warn("sync pre-mark failed", zap.Error(err))
		return 0, 0
	}
	locals, err := p.repo.ListLinesForSync(ctx, cartID)
	if err != nil {
		log.Warn("sync line listing failed", zap.Error(err))
		return 0, 0
	}
	byKey := make(map[string]domain.CartLine, len(locals))
	for _, line := range locals {
		byKey[line.LineKey] = line
	}

	actor := p.resolveUser(ctx, order.UserUpdatedKey)
	if actor == 0 {
		actor = p.resolveUser(ctx, order.UserCreatedKey)
	}
	if actor == 0 {
		actor = p.userID
	}

	written, failed := 0, 0
	for _, erpLine := range order.Detail {
		if erpLine.LineKey == "" {
			log.Warn("sync skipped line without line key", zap.String("itemCode", erpLine.ItemCode))
			continue
		}
		incoming := lineFromERP(cartID, order.SalesOrderNo, erpLine)
		incoming.UpdatedByUserID = actor

		local, found := byKey[erpLine.LineKey]
		if !found {
			p.attachProductRef(ctx, log, &incoming)
			incoming.CreatedByUserID = actor
			incoming.History = []domain.HistoryEntry{{Action: domain.HistoryInsert, At: p.now(), UserID: actor}}
			inserted, err := p.repo.InsertERPLine(ctx, incoming)
			if err != nil {
				failed++
				log.Warn("sync line insert failed", zap.String("lineKey", erpLine.LineKey), zap.Error(err))
				continue
			}
			if inserted {
				written++
			}
			continue
		}
		if local.LineStatus == domain.LineStatusUpdated || removedByUser(local) {
			continue
		}

		var entry *domain.HistoryEntry
		if changes := diffLine(local, incoming); len(changes) > 0 {
			entry = &domain.HistoryEntry{Action: domain.HistoryUpdate, At: p.now(), UserID: actor, Changes: changes}
		}
		if local.LineStatus == domain.LineStatusRetired {
			entry = &domain.HistoryEntry{Action: domain.HistoryRestore, At: p.now(), UserID: actor, Changes: diffLine(local, incoming)}
		}
		incoming.ID = local.ID
		applied, err := p.repo.ApplyERPLine(ctx, incoming, entry)
		if err != nil {
			failed++
			log.Warn("sync line update failed", zap.String("lineKey", erpLine.LineKey), zap.Error(err))
			continue
		}
		if applied && entry != nil {
			written++
		}
	}

	// A failed write leaves its line pending; sweeping now would retire a line
	// the ERP still reports, so the sweep waits for a clean pass.
	if failed > 0 {
		log.Warn("sync retirement sweep deferred", zap.Int("failedLines", failed))
		return written, 0
	}
	retired, err := p.repo.RetirePendingLines(ctx, cartID, domain.HistoryEntry{Action: domain.HistoryRetire, At: p.now(), UserID: actor})
	if err != nil {
		log.Warn("sync retirement sweep failed", zap.Error(err))
		return written, 0
	}
	return written, retired
}

func (p *pass) headerFromOrder(ctx context.Context, order domain.ERPOrder) domain.CartHeader {
	imported := time.Unix(0, 0).UTC()
	switch {
	case order.DateUpdated != nil:
		imported = order.DateUpdated.UTC()
	case order.DateCreated != nil:
		imported = order.DateCreated.UTC()
	}

	header := domain.CartHeader{
		SalesOrderNo:          order.SalesOrderNo,
		OrderType:             order.OrderType,
		OrderStatus:           order.OrderStatus,
		ARDivisionNo:          order.ARDivisionNo,
		CustomerNo:            order.CustomerNo,
		ShipToCode:            order.ShipToCode,
		CustomerName:          order.BillToName,
		SalespersonDivisionNo: order.SalespersonDivisionNo,
		SalespersonNo:         order.SalespersonNo,
		CustomerPONo:          order.CustomerPONo,
		Comment:               order.Comment,
		ShipExpireDate:        order.ShipExpireDate,
		TaxSchedule:           order.TaxSchedule,
		DiscountAmt:           order.DiscountAmt,
		SalesTaxAmt:           order.SalesTaxAmt,
		CreatedByUserID:       p.resolveUser(ctx, order.UserCreatedKey),
		UpdatedByUserID:       p.resolveUser(ctx, order.UserUpdatedKey),
		DateImported:          &imported,
	}
	if order.DateCreated != nil {
		header.CreatedAt = order.DateCreated.UTC()
	}
	return header
}

// resolveUser maps an ERP user key to a local user id, or 0 when unknown.
func (p *pass) resolveUser(ctx context.Context, sageKey string) int64 {
	if sageKey == "" {
		return 0
	}
	if id, ok := p.users[sageKey]; ok {
		return id
	}
	var id int64
	user, err := p.repo.FindUserBySageKey(ctx, sageKey)
	switch {
	case err == nil:
		id = user.ID
	case !errors.Is(err, store.ErrNotFound):
		p.logger.Debug("sync user lookup failed", zap.String("sageKey", sageKey), zap.Error(err))
	}
	p.users[sageKey] = id
	return id
}

func (p *pass) attachProductRef(ctx context.Context, log *zap.Logger, line *domain.CartLine) {
	ref, err := p.repo.LookupProductRef(ctx, line.ItemCode)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Debug("product cross-reference lookup failed", zap.String("itemCode", line.ItemCode), zap.Error(err))
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

// removedByUser reports a retired line whose last action was a user removal.
// Like a user edit, it is not overwritten by the ERP.
func removedByUser(line domain.CartLine) bool {
	if line.LineStatus != domain.LineStatusRetired || len(line.History) == 0 {
		return false
	}
	return line.History[len(line.History)-1].Action == domain.HistoryRemove
}

// Scales of the cart_lines NUMERIC columns. Incoming values are rounded to
// them so a stored line compares equal to the next pass's payload.
const (
	quantityScale = 4
	priceScale    = 4
	discountScale = 3
)

func lineFromERP(cartID int64, salesOrderNo string, l domain.ERPLine) domain.CartLine {
	conv := l.UnitOfMeasureConvFactor.Round(quantityScale)
	if !conv.IsPositive() {
		conv = decimal.NewFromInt(1)
	}
	qty := l.QuantityOrdered.Round(quantityScale)
	price := l.UnitPrice.Round(priceScale)
	discount := l.LineDiscountPercent.Round(discountScale)
	return domain.CartLine{
		CartHeaderID:            cartID,
		SalesOrderNo:            salesOrderNo,
		LineKey:                 l.LineKey,
		LineSeqNo:               l.LineSeqNo,
		ItemCode:                l.ItemCode,
		ItemType:                l.ItemType,
		ItemCodeDesc:            l.ItemCodeDesc,
		PriceLevel:              l.PriceLevel,
		UnitOfMeasure:           l.UnitOfMeasure,
		UnitOfMeasureConvFactor: conv,
		QuantityOrdered:         qty,
		UnitPrice:               price,
		LineDiscountPercent:     discount,
		ExtensionAmt:            domain.ExtensionAmount(qty, price, discount),
		TaxClass:                l.TaxClass,
		CommentText:             l.CommentText,
		LineStatus:              domain.LineStatusImported,
	}
}

// diffLine lists the mirrored fields whose ERP value differs from the local row.
func diffLine(local domain.CartLine, incoming domain.CartLine) map[string]string {
	changes := map[string]string{}
	str := func(name, was, now string) {
		if was != now {
			changes[name] = now
		}
	}
	num := func(name string, was, now decimal.Decimal) {
		if !was.Equal(now) {
			changes[name] = now.String()
		}
	}
	if local.LineSeqNo != incoming.LineSeqNo {
		changes["lineSeqNo"] = strconv.Itoa(incoming.LineSeqNo)
	}
	str("itemCode", local.ItemCode, incoming.ItemCode)
	str("itemType", local.ItemType, incoming.ItemType)
	str("itemCodeDesc", local.ItemCodeDesc, incoming.ItemCodeDesc)
	str("priceLevel", local.PriceLevel, incoming.PriceLevel)
	str("unitOfMeasure", local.UnitOfMeasure, incoming.UnitOfMeasure)
	str("taxClass", local.TaxClass, incoming.TaxClass)
	str("commentText", local.CommentText, incoming.CommentText)
	num("unitOfMeasureConvFactor", local.UnitOfMeasureConvFactor, incoming.UnitOfMeasureConvFactor)
	num("quantityOrdered", local.QuantityOrdered, incoming.QuantityOrdered)
	num("unitPrice", local.UnitPrice, incoming.UnitPrice)
	num("lineDiscountPercent", local.LineDiscountPercent, incoming.LineDiscountPercent)
	return changes
}

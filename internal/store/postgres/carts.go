package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/store"
)

const headerColumns = `
	h.id, COALESCE(h.sales_order_no, ''), h.order_type, h.order_status,
	h.ar_division_no, h.customer_no, h.ship_to_code, h.customer_name,
	h.salesperson_division_no, h.salesperson_no, h.customer_po_no, h.promo_code, h.comment,
	h.ship_expire_date, h.tax_schedule,
	h.taxable_amt, h.non_taxable_amt, h.discount_amt, h.sub_total_amt, h.sales_tax_amt,
	COALESCE(h.created_by_user_id, 0), h.created_at,
	COALESCE(h.updated_by_user_id, 0), h.updated_at, h.date_imported`

func scanHeader(row rowScanner) (domain.CartHeader, error) {
	var h domain.CartHeader
	var shipExpire, updatedAt, imported sql.NullTime
	err := row.Scan(
		&h.ID, &h.SalesOrderNo, &h.OrderType, &h.OrderStatus,
		&h.ARDivisionNo, &h.CustomerNo, &h.ShipToCode, &h.CustomerName,
		&h.SalespersonDivisionNo, &h.SalespersonNo, &h.CustomerPONo, &h.PromoCode, &h.Comment,
		&shipExpire, &h.TaxSchedule,
		&h.TaxableAmt, &h.NonTaxableAmt, &h.DiscountAmt, &h.SubTotalAmt, &h.SalesTaxAmt,
		&h.CreatedByUserID, &h.CreatedAt,
		&h.UpdatedByUserID, &updatedAt, &imported,
	)
	if err != nil {
		return h, err
	}
	h.ShipExpireDate = timePtr(shipExpire)
	h.UpdatedAt = timePtr(updatedAt)
	h.DateImported = timePtr(imported)
	h.CreatedAt = h.CreatedAt.UTC()
	return h, nil
}

func (s *Store) ListCartHeaders(ctx context.Context, query domain.CartHeaderQuery) ([]domain.CartHeader, error) {
	w := &whereClause{}
	w.add(visibleHeader("h", w.arg(query.UserID)))
	if query.CartID != 0 {
		w.add("h.id = " + w.arg(query.CartID))
	}
	if query.Customer != nil {
		w.add("h.ar_division_no = " + w.arg(query.Customer.ARDivisionNo))
		w.add("h.customer_no = " + w.arg(query.Customer.CustomerNo))
		if query.Customer.ShipToCode != "" {
			w.add("h.ship_to_code = " + w.arg(query.Customer.ShipToCode))
		}
	}
	switch query.View {
	case domain.CartViewCart:
		w.add("h.order_type IN ('Q', '_')")
	case domain.CartViewOrder:
		w.add("h.order_type IN ('S', 'B')")
	case domain.CartViewQuote:
		w.add("h.order_type = 'Q'")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+headerColumns+` FROM cart_headers h `+w.String()+` ORDER BY h.id DESC`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	headers := make([]domain.CartHeader, 0, 16)
	for rows.Next() {
		h, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return headers, nil
}

func (s *Store) GetCartHeader(ctx context.Context, userID int64, cartID int64) (*domain.CartHeader, error) {
	headers, err := s.ListCartHeaders(ctx, domain.CartHeaderQuery{UserID: userID, CartID: cartID})
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return nil, store.ErrNotFound
	}
	return &headers[0], nil
}

func (s *Store) CreateCartHeader(ctx context.Context, header domain.CartHeader) (*domain.CartHeader, error) {
	if header.ARDivisionNo == "" || header.CustomerNo == "" {
		return nil, store.ErrInvalidInput
	}
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cart_headers (
			sales_order_no, order_type, order_status, ar_division_no, customer_no, ship_to_code, customer_name,
			salesperson_division_no, salesperson_no, customer_po_no, promo_code, comment, ship_expire_date,
			tax_schedule, taxable_amt, non_taxable_amt, discount_amt, sub_total_amt, sales_tax_amt,
			created_by_user_id, created_at, date_imported
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING id
	`,
		nullIfEmpty(header.SalesOrderNo), header.OrderType, header.OrderStatus,
		header.ARDivisionNo, header.CustomerNo, header.ShipToCode, header.CustomerName,
		header.SalespersonDivisionNo, header.SalespersonNo, header.CustomerPONo, header.PromoCode, header.Comment,
		nullDate(header.ShipExpireDate), header.TaxSchedule,
		header.TaxableAmt, header.NonTaxableAmt, header.DiscountAmt, header.SubTotalAmt, header.SalesTaxAmt,
		nullID(header.CreatedByUserID), header.CreatedAt, nullTime(header.DateImported),
	).Scan(&header.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &header, nil
}

func (s *Store) UpdateCartHeader(ctx context.Context, header domain.CartHeader) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE cart_headers
		SET ship_to_code = $2, promo_code = $3, customer_po_no = $4, comment = $5,
			ship_expire_date = $6, updated_by_user_id = $7, updated_at = now()
		WHERE id = $1
	`, header.ID, header.ShipToCode, header.PromoCode, header.CustomerPONo, header.Comment,
		nullDate(header.ShipExpireDate), nullID(header.UpdatedByUserID))
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// CancelCartHeader cancels a local-only cart. ERP-linked carts are refused
// with ErrConflict.
func (s *Store) CancelCartHeader(ctx context.Context, cartID int64, userID int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE cart_headers
		SET order_status = 'X', updated_by_user_id = $2, updated_at = now()
		WHERE id = $1 AND sales_order_no IS NULL
	`, cartID, nullID(userID))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var linked bool
	err = s.db.QueryRowContext(ctx, `SELECT sales_order_no IS NOT NULL FROM cart_headers WHERE id = $1`, cartID).Scan(&linked)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return store.ErrConflict
}

// UpdateCartTotals recomputes the header amounts from non-retired lines in
// one statement.
func (s *Store) UpdateCartTotals(ctx context.Context, cartID int64) (domain.Totals, error) {
	var totals domain.Totals
	err := s.db.QueryRowContext(ctx, `
		WITH sums AS (
			SELECT
				COALESCE(SUM(l.extension_amt) FILTER (
					WHERE h.tax_schedule <> 'NONTAX' AND l.tax_class <> 'NT'), 0) AS taxable,
				COALESCE(SUM(l.extension_amt) FILTER (
					WHERE h.tax_schedule = 'NONTAX' OR l.tax_class = 'NT'), 0) AS non_taxable
			FROM cart_headers h
			LEFT JOIN cart_lines l ON l.cart_header_id = h.id AND l.line_status <> 'X'
			WHERE h.id = $1
		)
		UPDATE cart_headers
		SET taxable_amt = sums.taxable,
			non_taxable_amt = sums.non_taxable,
			sub_total_amt = sums.taxable + sums.non_taxable
		FROM sums
		WHERE cart_headers.id = $1
		RETURNING cart_headers.taxable_amt, cart_headers.non_taxable_amt, cart_headers.sub_total_amt
	`, cartID).Scan(&totals.TaxableAmt, &totals.NonTaxableAmt, &totals.SubTotalAmt)
	if errors.Is(err, sql.ErrNoRows) {
		return totals, store.ErrNotFound
	}
	return totals, err
}

const lineColumns = `
	l.id, l.cart_header_id, l.sales_order_no, COALESCE(l.line_key, ''), l.line_seq_no,
	l.item_code, l.item_type, l.item_code_desc, l.product_id, l.product_item_id,
	l.price_level, l.unit_of_measure, l.unit_of_measure_conv_factor,
	l.quantity_ordered, l.unit_price, l.line_discount_percent, l.extension_amt,
	l.tax_class, l.comment_text, l.line_status, l.history,
	COALESCE(l.created_by_user_id, 0), l.created_at,
	COALESCE(l.updated_by_user_id, 0), l.updated_at`

// scanLine reads lineColumns followed by any extra destinations.
func scanLine(row rowScanner, extra ...any) (domain.CartLine, error) {
	var l domain.CartLine
	var productID, productItemID sql.NullInt64
	var history []byte
	var updatedAt sql.NullTime
	dest := []any{
		&l.ID, &l.CartHeaderID, &l.SalesOrderNo, &l.LineKey, &l.LineSeqNo,
		&l.ItemCode, &l.ItemType, &l.ItemCodeDesc, &productID, &productItemID,
		&l.PriceLevel, &l.UnitOfMeasure, &l.UnitOfMeasureConvFactor,
		&l.QuantityOrdered, &l.UnitPrice, &l.LineDiscountPercent, &l.ExtensionAmt,
		&l.TaxClass, &l.CommentText, &l.LineStatus, &history,
		&l.CreatedByUserID, &l.CreatedAt,
		&l.UpdatedByUserID, &updatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return l, err
	}
	l.ProductID = idPtr(productID)
	l.ProductItemID = idPtr(productItemID)
	l.UpdatedAt = timePtr(updatedAt)
	l.CreatedAt = l.CreatedAt.UTC()
	if len(history) > 0 {
		if err := json.Unmarshal(history, &l.History); err != nil {
			return l, fmt.Errorf("decode line %d history: %w", l.ID, err)
		}
		if len(l.History) == 0 {
			l.History = nil
		}
	}
	return l, nil
}

func (s *Store) ListCartLines(ctx context.Context, userID int64, cartID int64) ([]domain.CartLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+lineColumns+`,
			p.product_id, p.product_item_id, p.name, p.image,
			i.item_code, i.item_code_desc, i.quantity_available, i.suggested_retail_price,
			i.inactive_item, i.product_type
		FROM cart_lines l
		JOIN cart_headers h ON h.id = l.cart_header_id
		LEFT JOIN product_refs p ON p.item_code = l.item_code
		LEFT JOIN erp_items i ON i.item_code = l.item_code
		WHERE l.cart_header_id = $2 AND l.line_status <> 'X' AND `+visibleHeader("h", "$1")+`
		ORDER BY l.line_seq_no, l.id
	`, userID, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.CartLine, 0, 16)
	for rows.Next() {
		var (
			refID, refItemID                sql.NullInt64
			refName, refImage               sql.NullString
			itemCode, itemDesc, productType sql.NullString
			qtyAvail, retail                decimal.NullDecimal
			inactive                        sql.NullBool
		)
		line, err := scanLine(rows,
			&refID, &refItemID, &refName, &refImage,
			&itemCode, &itemDesc, &qtyAvail, &retail, &inactive, &productType,
		)
		if err != nil {
			return nil, err
		}
		if refID.Valid || itemCode.Valid {
			summary := &domain.ProductSummary{
				ProductID:     refID.Int64,
				ProductItemID: refItemID.Int64,
				Name:          refName.String,
				Image:         refImage.String,
			}
			if itemCode.Valid {
				summary.QuantityAvail = qtyAvail.Decimal
				summary.SuggestedRetail = retail.Decimal
				summary.InactiveItem = inactive.Bool || productType.String == domain.ProductTypeDiscontinued
				if summary.Name == "" {
					summary.Name = itemDesc.String
				}
			}
			line.Product = summary
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) GetCartLine(ctx context.Context, cartID int64, lineID int64) (*domain.CartLine, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+lineColumns+`
		FROM cart_lines l
		WHERE l.cart_header_id = $1 AND l.id = $2 AND l.line_status <> 'X'
	`, cartID, lineID)
	line, err := scanLine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &line, nil
}

func (s *Store) InsertCartLine(ctx context.Context, line domain.CartLine) (*domain.CartLine, error) {
	inserted, err := s.insertLine(ctx, line, "")
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// insertLine writes a new line. A zero LineSeqNo takes the next number in
// the cart. onConflict is appended verbatim; a suppressed conflict yields
// (nil, nil).
func (s *Store) insertLine(ctx context.Context, line domain.CartLine, onConflict string) (*domain.CartLine, error) {
	if strings.TrimSpace(line.ItemCode) == "" {
		return nil, store.ErrInvalidInput
	}
	if line.CreatedAt.IsZero() {
		line.CreatedAt = time.Now().UTC()
	}
	history, err := json.Marshal(historyOrEmpty(line.History))
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO cart_lines (
			cart_header_id, sales_order_no, line_key, line_seq_no,
			item_code, item_type, item_code_desc, product_id, product_item_id,
			price_level, unit_of_measure, unit_of_measure_conv_factor,
			quantity_ordered, unit_price, line_discount_percent, extension_amt,
			tax_class, comment_text, line_status, history,
			created_by_user_id, created_at, updated_by_user_id, updated_at
		)
		VALUES (
			$1, $2, $3,
			CASE WHEN $4::int > 0 THEN $4::int
				ELSE (SELECT COALESCE(MAX(line_seq_no), 0) + 1 FROM cart_lines WHERE cart_header_id = $1) END,
			$5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20::jsonb,
			$21, $22, $23, $24
		)
		`+onConflict+`
		RETURNING id, line_seq_no
	`,
		line.CartHeaderID, line.SalesOrderNo, nullIfEmpty(line.LineKey), line.LineSeqNo,
		line.ItemCode, line.ItemType, line.ItemCodeDesc, nullIDPtr(line.ProductID), nullIDPtr(line.ProductItemID),
		line.PriceLevel, line.UnitOfMeasure, line.UnitOfMeasureConvFactor,
		line.QuantityOrdered, line.UnitPrice, line.LineDiscountPercent, line.ExtensionAmt,
		line.TaxClass, line.CommentText, line.LineStatus, string(history),
		nullID(line.CreatedByUserID), line.CreatedAt, nullID(line.UpdatedByUserID), nullTime(line.UpdatedAt),
	).Scan(&line.ID, &line.LineSeqNo)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows) && onConflict != "":
			return nil, nil
		case isForeignKeyViolation(err):
			return nil, store.ErrNotFound
		case isUniqueViolation(err):
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &line, nil
}

func (s *Store) UpdateCartLine(ctx context.Context, line domain.CartLine) error {
	history, err := json.Marshal(historyOrEmpty(line.History))
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE cart_lines
		SET unit_of_measure = $3, unit_of_measure_conv_factor = $4, quantity_ordered = $5,
			unit_price = $6, price_level = $7, extension_amt = $8, comment_text = $9,
			line_status = $10, history = $11::jsonb, updated_by_user_id = $12, updated_at = now()
		WHERE id = $1 AND cart_header_id = $2
	`, line.ID, line.CartHeaderID, line.UnitOfMeasure, line.UnitOfMeasureConvFactor, line.QuantityOrdered,
		line.UnitPrice, line.PriceLevel, line.ExtensionAmt, line.CommentText,
		line.LineStatus, string(history), nullID(line.UpdatedByUserID))
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *Store) DeleteCartLine(ctx context.Context, cartID int64, lineID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE id = $1 AND cart_header_id = $2`, lineID, cartID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func historyOrEmpty(history []domain.HistoryEntry) []domain.HistoryEntry {
	if history == nil {
		return []domain.HistoryEntry{}
	}
	return history
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/store"
)

func (s *Store) ListERPOrders(ctx context.Context, filter domain.ERPOrderFilter) ([]domain.ERPOrder, error) {
	w := &whereClause{}
	if filter.SalesOrderNo != "" {
		w.add("o.sales_order_no = " + w.arg(filter.SalesOrderNo))
	}
	if filter.Customer != nil {
		w.add("o.ar_division_no = " + w.arg(filter.Customer.ARDivisionNo))
		w.add("o.customer_no = " + w.arg(filter.Customer.CustomerNo))
		if filter.Customer.ShipToCode != "" {
			w.add("o.ship_to_code = " + w.arg(filter.Customer.ShipToCode))
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT o.sales_order_no, o.order_type, o.order_status, o.ar_division_no, o.customer_no,
			o.ship_to_code, o.bill_to_name, o.salesperson_division_no, o.salesperson_no,
			o.customer_po_no, o.comment, o.ship_expire_date, o.tax_schedule,
			o.taxable_amt, o.non_taxable_amt, o.discount_amt, o.sales_tax_amt,
			o.user_created_key, o.user_updated_key, o.date_created, o.date_updated
		FROM erp_sales_orders o
		`+w.String()+`
		ORDER BY o.sales_order_no
	`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.ERPOrder, 0, 16)
	index := make(map[string]int)
	for rows.Next() {
		var o domain.ERPOrder
		var shipExpire, created, updated sql.NullTime
		if err := rows.Scan(
			&o.SalesOrderNo, &o.OrderType, &o.OrderStatus, &o.ARDivisionNo, &o.CustomerNo,
			&o.ShipToCode, &o.BillToName, &o.SalespersonDivisionNo, &o.SalespersonNo,
			&o.CustomerPONo, &o.Comment, &shipExpire, &o.TaxSchedule,
			&o.TaxableAmt, &o.NonTaxableAmt, &o.DiscountAmt, &o.SalesTaxAmt,
			&o.UserCreatedKey, &o.UserUpdatedKey, &created, &updated,
		); err != nil {
			return nil, err
		}
		o.ShipExpireDate = timePtr(shipExpire)
		o.DateCreated = timePtr(created)
		o.DateUpdated = timePtr(updated)
		index[o.SalesOrderNo] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	orderNos := make([]string, 0, len(orders))
	for _, o := range orders {
		orderNos = append(orderNos, o.SalesOrderNo)
	}
	lineRows, err := s.db.QueryContext(ctx, `
		SELECT sales_order_no, line_key, line_seq_no, item_code, item_type, item_code_desc,
			exploded_kit_item, price_level, unit_of_measure, unit_of_measure_conv_factor,
			quantity_ordered, unit_price, line_discount_percent, tax_class, comment_text
		FROM erp_sales_order_lines
		WHERE sales_order_no = ANY($1)
		ORDER BY sales_order_no, line_seq_no, line_key
	`, orderNos)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var orderNo string
		var l domain.ERPLine
		if err := lineRows.Scan(
			&orderNo, &l.LineKey, &l.LineSeqNo, &l.ItemCode, &l.ItemType, &l.ItemCodeDesc,
			&l.ExplodedKitItem, &l.PriceLevel, &l.UnitOfMeasure, &l.UnitOfMeasureConvFactor,
			&l.QuantityOrdered, &l.UnitPrice, &l.LineDiscountPercent, &l.TaxClass, &l.CommentText,
		); err != nil {
			return nil, err
		}
		if i, ok := index[orderNo]; ok {
			orders[i].Detail = append(orders[i].Detail, l)
		}
	}
	if err := lineRows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) GetERPOrder(ctx context.Context, salesOrderNo string) (*domain.ERPOrder, error) {
	if salesOrderNo == "" {
		return nil, store.ErrNotFound
	}
	orders, err := s.ListERPOrders(ctx, domain.ERPOrderFilter{SalesOrderNo: salesOrderNo})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, store.ErrNotFound
	}
	return &orders[0], nil
}

func (s *Store) FindHeaderBySalesOrderNo(ctx context.Context, salesOrderNo string) (*domain.CartHeader, error) {
	if salesOrderNo == "" {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+headerColumns+` FROM cart_headers h WHERE h.sales_order_no = $1`, salesOrderNo)
	h, err := scanHeader(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &h, nil
}

func (s *Store) SetHeaderStatusFromERP(ctx context.Context, cartID int64, orderType string, orderStatus string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE cart_headers
		SET order_type = $2, order_status = $3, updated_at = now()
		WHERE id = $1 AND (order_type <> $2 OR order_status <> $3)
	`, cartID, orderType, orderStatus)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}
	if err := s.requireHeader(ctx, cartID); err != nil {
		return false, err
	}
	return false, nil
}

// UpsertHeaderFromERP inserts or refreshes the header keyed by sales order
// number. The refresh is skipped for closed or canceled headers and when the
// incoming import stamp is not newer; the bool reports whether a row was written.
func (s *Store) UpsertHeaderFromERP(ctx context.Context, header domain.CartHeader) (int64, bool, error) {
	if header.SalesOrderNo == "" {
		return 0, false, store.ErrInvalidInput
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cart_headers (
			sales_order_no, order_type, order_status, ar_division_no, customer_no, ship_to_code,
			customer_name, salesperson_division_no, salesperson_no, customer_po_no, comment,
			ship_expire_date, tax_schedule, discount_amt, sales_tax_amt,
			created_by_user_id, created_at, updated_by_user_id, date_imported
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, COALESCE($17, now()), $18, $19)
		ON CONFLICT (sales_order_no) DO UPDATE SET
			order_type = EXCLUDED.order_type,
			order_status = EXCLUDED.order_status,
			ar_division_no = EXCLUDED.ar_division_no,
			customer_no = EXCLUDED.customer_no,
			ship_to_code = EXCLUDED.ship_to_code,
			customer_name = EXCLUDED.customer_name,
			salesperson_division_no = EXCLUDED.salesperson_division_no,
			salesperson_no = EXCLUDED.salesperson_no,
			customer_po_no = EXCLUDED.customer_po_no,
			comment = EXCLUDED.comment,
			ship_expire_date = EXCLUDED.ship_expire_date,
			tax_schedule = EXCLUDED.tax_schedule,
			discount_amt = EXCLUDED.discount_amt,
			sales_tax_amt = EXCLUDED.sales_tax_amt,
			updated_by_user_id = EXCLUDED.updated_by_user_id,
			date_imported = EXCLUDED.date_imported,
			updated_at = now()
		WHERE cart_headers.order_status NOT IN ('X', 'Z', 'C')
			AND (cart_headers.date_imported IS NULL
				OR (EXCLUDED.date_imported IS NOT NULL AND EXCLUDED.date_imported > cart_headers.date_imported))
		RETURNING id
	`,
		header.SalesOrderNo, header.OrderType, header.OrderStatus, header.ARDivisionNo, header.CustomerNo, header.ShipToCode,
		header.CustomerName, header.SalespersonDivisionNo, header.SalespersonNo, header.CustomerPONo, header.Comment,
		nullDate(header.ShipExpireDate), header.TaxSchedule, header.DiscountAmt, header.SalesTaxAmt,
		nullID(header.CreatedByUserID), nullTime(&header.CreatedAt), nullID(header.UpdatedByUserID), nullTime(header.DateImported),
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}

	// The conflict guard rejected the refresh; report the existing row.
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM cart_headers WHERE sales_order_no = $1`, header.SalesOrderNo).Scan(&id); err != nil {
		return 0, false, err
	}
	return id, false, nil
}

// ListLinesForSync returns every ERP-linked line of a cart, retired ones included.
func (s *Store) ListLinesForSync(ctx context.Context, cartID int64) ([]domain.CartLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+lineColumns+`
		FROM cart_lines l
		WHERE l.cart_header_id = $1 AND l.line_key IS NOT NULL
		ORDER BY l.line_seq_no, l.id
	`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.CartLine, 0, 16)
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) MarkLinesPending(ctx context.Context, cartID int64) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE cart_lines SET line_status = '_'
		WHERE cart_header_id = $1 AND line_status = 'I'
	`, cartID)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

// ApplyERPLine overwrites a mirrored line unless the user has edited it. A
// non-nil entry is appended to the line history.
func (s *Store) ApplyERPLine(ctx context.Context, line domain.CartLine, entry *domain.HistoryEntry) (bool, error) {
	var appended any
	if entry != nil {
		raw, err := json.Marshal([]domain.HistoryEntry{*entry})
		if err != nil {
			return false, err
		}
		appended = string(raw)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE cart_lines
		SET sales_order_no = $2, line_seq_no = $3, item_code = $4, item_type = $5, item_code_desc = $6,
			price_level = $7, unit_of_measure = $8, unit_of_measure_conv_factor = $9,
			quantity_ordered = $10, unit_price = $11, line_discount_percent = $12, extension_amt = $13,
			tax_class = $14, comment_text = $15, line_status = 'I',
			history = CASE WHEN $16::jsonb IS NULL THEN history ELSE history || $16::jsonb END,
			updated_by_user_id = CASE WHEN $16::jsonb IS NULL THEN updated_by_user_id ELSE $17::bigint END,
			updated_at = CASE WHEN $16::jsonb IS NULL THEN updated_at ELSE now() END
		WHERE id = $1 AND line_status <> 'U'
	`, line.ID, line.SalesOrderNo, line.LineSeqNo, line.ItemCode, line.ItemType, line.ItemCodeDesc,
		line.PriceLevel, line.UnitOfMeasure, line.UnitOfMeasureConvFactor,
		line.QuantityOrdered, line.UnitPrice, line.LineDiscountPercent, line.ExtensionAmt,
		line.TaxClass, line.CommentText, appended, nullID(line.UpdatedByUserID))
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT line_status FROM cart_lines WHERE id = $1`, line.ID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, store.ErrNotFound
	}
	return false, err
}

// InsertERPLine adds a mirrored line. An existing line with the same key is
// left untouched and reported as not inserted.
func (s *Store) InsertERPLine(ctx context.Context, line domain.CartLine) (bool, error) {
	line.LineStatus = domain.LineStatusImported
	inserted, err := s.insertLine(ctx, line, `ON CONFLICT (cart_header_id, line_key) WHERE line_key IS NOT NULL DO NOTHING`)
	if err != nil {
		return false, err
	}
	return inserted != nil, nil
}

func (s *Store) RetirePendingLines(ctx context.Context, cartID int64, entry domain.HistoryEntry) (int, error) {
	raw, err := json.Marshal([]domain.HistoryEntry{entry})
	if err != nil {
		return 0, err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE cart_lines
		SET line_status = 'X', history = history || $2::jsonb, updated_at = now()
		WHERE cart_header_id = $1 AND line_status = '_'
	`, cartID, string(raw))
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

func (s *Store) requireHeader(ctx context.Context, cartID int64) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM cart_headers WHERE id = $1)`, cartID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/store"
)

func (s *Store) GetCustomer(ctx context.Context, key domain.CustomerKey) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT ar_division_no, customer_no, customer_name, customer_status, price_level,
			tax_schedule, salesperson_division_no, salesperson_no
		FROM erp_customers
		WHERE ar_division_no = $1 AND customer_no = $2
	`, key.ARDivisionNo, key.CustomerNo).Scan(
		&c.ARDivisionNo, &c.CustomerNo, &c.CustomerName, &c.CustomerStatus, &c.PriceLevel,
		&c.TaxSchedule, &c.SalespersonDivisionNo, &c.SalespersonNo,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetShipToAddress(ctx context.Context, key domain.CustomerKey) (*domain.ShipToAddress, error) {
	var a domain.ShipToAddress
	err := s.db.QueryRowContext(ctx, `
		SELECT ar_division_no, customer_no, ship_to_code, ship_to_name, salesperson_no
		FROM erp_ship_to_addresses
		WHERE ar_division_no = $1 AND customer_no = $2 AND ship_to_code = $3
	`, key.ARDivisionNo, key.CustomerNo, key.ShipToCode).Scan(
		&a.ARDivisionNo, &a.CustomerNo, &a.ShipToCode, &a.ShipToName, &a.SalespersonNo,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetItem(ctx context.Context, itemCode string) (*domain.Item, error) {
	itemCode = strings.ToUpper(strings.TrimSpace(itemCode))

	var item domain.Item
	err := s.db.QueryRowContext(ctx, `
		SELECT item_code, item_code_desc, item_type, product_type, inactive_item,
			standard_unit_price, standard_unit_cost, suggested_retail_price,
			standard_unit_of_measure, sales_unit_of_measure, sales_um_conv_factor,
			tax_class, quantity_available
		FROM erp_items
		WHERE item_code = $1
	`, itemCode).Scan(
		&item.ItemCode, &item.ItemCodeDesc, &item.ItemType, &item.ProductType, &item.InactiveItem,
		&item.StandardUnitPrice, &item.StandardUnitCost, &item.SuggestedRetailPrice,
		&item.StandardUnitOfMeasure, &item.SalesUnitOfMeasure, &item.SalesUMConvFactor,
		&item.TaxClass, &item.QuantityAvailable,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT unit_of_measure, conv_factor
		FROM erp_item_units
		WHERE item_code = $1
		ORDER BY unit_of_measure
	`, itemCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var unit domain.ItemUnit
		if err := rows.Scan(&unit.UnitOfMeasure, &unit.ConvFactor); err != nil {
			return nil, err
		}
		item.Units = append(item.Units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListPriceRules returns the candidate price codes for one item. Level-keyed
// kinds only match when a price level is given.
func (s *Store) ListPriceRules(ctx context.Context, itemCode string, customer domain.CustomerKey, priceLevel string) ([]domain.PriceRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, item_code, price_level, ar_division_no, customer_no, pricing_method, markup
		FROM erp_price_codes
		WHERE item_code = $1 AND (
			(kind = 'L' AND $4::text <> '' AND price_level = $4 AND ar_division_no = $2 AND customer_no = $3)
			OR (kind = '1' AND $4::text <> '' AND price_level = $4)
			OR (kind = '2' AND ar_division_no = $2 AND customer_no = $3)
		)
		ORDER BY id
	`, itemCode, customer.ARDivisionNo, customer.CustomerNo, priceLevel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]domain.PriceRule, 0, 4)
	for rows.Next() {
		var r domain.PriceRule
		if err := rows.Scan(&r.Kind, &r.ItemCode, &r.PriceLevel, &r.ARDivisionNo, &r.CustomerNo, &r.PricingMethod, &r.Markup); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *Store) LookupProductRef(ctx context.Context, itemCode string) (*domain.ProductRef, error) {
	var ref domain.ProductRef
	err := s.db.QueryRowContext(ctx, `
		SELECT item_code, product_id, product_item_id, name, image
		FROM product_refs
		WHERE item_code = $1
	`, itemCode).Scan(&ref.ItemCode, &ref.ProductID, &ref.ProductItemID, &ref.Name, &ref.Image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &ref, nil
}

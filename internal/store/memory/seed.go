package memory

import (
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storefront/backend/internal/domain"
)

// NewSeeded builds a demo store for local development.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_SALES_PASSWORD; when
// unset, dev defaults are used and a warning is logged. The seeded data is
// never used in production (the server uses PostgreSQL when DATABASE_URL is set).
func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()

	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	salesPwd := envOr("SEED_SALES_PASSWORD", "sales123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SALES_PASSWORD") == "" {
		logger.Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_SALES_PASSWORD to override")
	}

	admin, err := s.AddUser(domain.UserAccount{Email: "admin@example.com", Name: "Admin", Role: "admin", Active: true}, adminPwd)
	if err != nil {
		logger.Fatal("failed to seed admin user", zap.Error(err))
	}
	sales, err := s.AddUser(domain.UserAccount{Email: "sales@example.com", Name: "Sales Rep", Role: "sales", Active: true, SageKey: "0000000002"}, salesPwd)
	if err != nil {
		logger.Fatal("failed to seed sales user", zap.Error(err))
	}

	s.AddGrant(domain.AccessGrant{UserID: admin.ID, Kind: domain.AccessKindCustomer, Pattern: "%"})
	s.AddGrant(domain.AccessGrant{UserID: sales.ID, Kind: domain.AccessKindCustomer, Pattern: "01-%"})
	s.AddGrant(domain.AccessGrant{UserID: sales.ID, Kind: domain.AccessKindSalesperson, Pattern: "01-0100"})

	s.AddCustomer(domain.Customer{
		ARDivisionNo: "01", CustomerNo: "12345", CustomerName: "Acme Hardware",
		PriceLevel: "A", TaxSchedule: "CA", SalespersonDivisionNo: "01", SalespersonNo: "0100",
	})
	s.AddCustomer(domain.Customer{
		ARDivisionNo: "02", CustomerNo: "EXPORT1", CustomerName: "Harbor Export",
		TaxSchedule: domain.TaxScheduleNonTaxable, SalespersonDivisionNo: "01", SalespersonNo: "0100",
	})
	s.AddShipTo(domain.ShipToAddress{ARDivisionNo: "01", CustomerNo: "12345", ShipToCode: "MAIN", ShipToName: "Acme Main Warehouse"})

	s.AddItem(domain.Item{
		ItemCode: "ABC123", ItemCodeDesc: "Hex Bolt 1/4in", ItemType: domain.ItemTypeStock, ProductType: "F",
		StandardUnitPrice: decimal.RequireFromString("25.00"), StandardUnitCost: decimal.RequireFromString("14.00"),
		SuggestedRetailPrice:  decimal.RequireFromString("32.00"),
		StandardUnitOfMeasure: "EA", SalesUnitOfMeasure: "EA", TaxClass: "TX",
		QuantityAvailable: decimal.NewFromInt(480),
		Units:             []domain.ItemUnit{{UnitOfMeasure: "CS", ConvFactor: decimal.NewFromInt(12)}},
	})
	s.AddItem(domain.Item{
		ItemCode: "WIDGET-10", ItemCodeDesc: "Widget Assembly", ItemType: domain.ItemTypeStock, ProductType: "F",
		StandardUnitPrice: decimal.RequireFromString("100.00"), StandardUnitCost: decimal.RequireFromString("50.00"),
		StandardUnitOfMeasure: "EA", SalesUnitOfMeasure: "EA", TaxClass: "TX",
		QuantityAvailable: decimal.NewFromInt(35),
	})
	s.AddItem(domain.Item{
		ItemCode: "FREIGHT", ItemCodeDesc: "Freight Charge", ItemType: domain.ItemTypeMisc,
		StandardUnitOfMeasure: "EA", TaxClass: domain.TaxClassNonTaxable,
	})

	s.AddPriceRule(domain.PriceRule{
		Kind: domain.PriceRuleCustomerLevel, ItemCode: "WIDGET-10", PriceLevel: "A", ARDivisionNo: "01", CustomerNo: "12345",
		PricingMethod: domain.PricingMethodDiscountPct, Markup: decimal.NewFromInt(20),
	})
	s.AddPriceRule(domain.PriceRule{
		Kind: domain.PriceRuleItemLevel, ItemCode: "WIDGET-10", PriceLevel: "A",
		PricingMethod: domain.PricingMethodDiscountPct, Markup: decimal.NewFromInt(5),
	})

	s.AddProductRef(domain.ProductRef{ItemCode: "ABC123", ProductID: 101, ProductItemID: 1001, Name: "Hex Bolt", Image: "hex-bolt.jpg"})
	s.AddProductRef(domain.ProductRef{ItemCode: "WIDGET-10", ProductID: 102, Name: "Widget Assembly"})

	imported := time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)
	s.PutERPOrder(domain.ERPOrder{
		SalesOrderNo: "0001234", OrderType: domain.OrderTypeStandard, OrderStatus: domain.OrderStatusOpen,
		ARDivisionNo: "01", CustomerNo: "12345", BillToName: "Acme Hardware",
		SalespersonDivisionNo: "01", SalespersonNo: "0100", CustomerPONo: "PO-7781", TaxSchedule: "CA",
		UserCreatedKey: "0000000002", DateCreated: &imported,
		Detail: []domain.ERPLine{
			{
				LineKey: "000001", LineSeqNo: 1, ItemCode: "ABC123", ItemType: domain.ItemTypeStock, ItemCodeDesc: "Hex Bolt 1/4in",
				PriceLevel: "A", UnitOfMeasure: "EA", UnitOfMeasureConvFactor: decimal.NewFromInt(1),
				QuantityOrdered: decimal.NewFromInt(10), UnitPrice: decimal.RequireFromString("25.00"), TaxClass: "TX",
			},
			{
				LineKey: "000002", LineSeqNo: 2, ItemCode: "FREIGHT", ItemType: domain.ItemTypeMisc, ItemCodeDesc: "Freight Charge",
				UnitOfMeasure: "EA", QuantityOrdered: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("18.50"),
				TaxClass: domain.TaxClassNonTaxable,
			},
		},
	})
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// AddUser stores a user with a bcrypt hash of password and assigns its id.
func (s *Store) AddUser(user domain.UserAccount, password string) (domain.UserAccount, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserAccount{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user.ID = int64(len(s.users) + 1)
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.Password = string(hash)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *Store) AddGrant(grant domain.AccessGrant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = append(s.grants, grant)
}

func (s *Store) AddCustomer(customer domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[customer.Key().AccountKey()] = customer
}

func (s *Store) AddShipTo(addr domain.ShipToAddress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.CustomerKey{ARDivisionNo: addr.ARDivisionNo, CustomerNo: addr.CustomerNo, ShipToCode: addr.ShipToCode}
	s.shipTos[key.String()] = addr
}

// AddItem stores an item master record. A zero sales conversion factor is stored as 1.
func (s *Store) AddItem(item domain.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ItemCode = strings.ToUpper(strings.TrimSpace(item.ItemCode))
	item.SalesUMConvFactor = decimalOrOne(item.SalesUMConvFactor)
	s.items[item.ItemCode] = item
}

func (s *Store) AddPriceRule(rule domain.PriceRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priceRules = append(s.priceRules, rule)
}

func (s *Store) AddProductRef(ref domain.ProductRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.productRefs[ref.ItemCode] = ref
}

// PutERPOrder replaces the replicated copy of an ERP order, as the
// replication job would.
func (s *Store) PutERPOrder(order domain.ERPOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.erpOrders[order.SalesOrderNo] = cloneOrder(order)
}

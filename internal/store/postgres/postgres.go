package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// visibleHeaderSQL is the access join applied to every user-facing header
// read. Arguments: header alias, user id placeholder.
const visibleHeaderSQL = `%[1]s.order_status NOT IN ('X', 'Z') AND EXISTS (
	SELECT 1 FROM user_access_grants g
	WHERE g.user_id = %[2]s AND (
		(g.kind = 'customer' AND (%[1]s.ar_division_no || '-' || %[1]s.customer_no) ILIKE g.pattern)
		OR (g.kind = 'customer' AND %[1]s.ship_to_code <> ''
			AND (%[1]s.ar_division_no || '-' || %[1]s.customer_no || '-' || %[1]s.ship_to_code) ILIKE g.pattern)
		OR (g.kind = 'salesperson' AND %[1]s.salesperson_no <> ''
			AND (%[1]s.salesperson_division_no || '-' || %[1]s.salesperson_no) ILIKE g.pattern)
	))`

func visibleHeader(alias string, userParam string) string {
	return fmt.Sprintf(visibleHeaderSQL, alias, userParam)
}

func (s *Store) HasAccess(ctx context.Context, userID int64, customer domain.CustomerKey, salespersonKey string) (bool, error) {
	shipTo := ""
	if customer.ShipToCode != "" {
		shipTo = customer.String()
	}

	var ok bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_access_grants g
			WHERE g.user_id = $1 AND (
				(g.kind = 'customer' AND $2::text ILIKE g.pattern)
				OR (g.kind = 'customer' AND $3::text <> '' AND $3::text ILIKE g.pattern)
				OR (g.kind = 'salesperson' AND $4::text <> '' AND $4::text ILIKE g.pattern)
			)
		)
	`, userID, customer.AccountKey(), shipTo, salespersonKey).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}

const userColumns = `id, email, name, password, role, active, COALESCE(sage_key, ''), created_at`

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM app_users WHERE lower(email) = $1`, email)
	return scanUser(row)
}

func (s *Store) FindUserBySageKey(ctx context.Context, sageKey string) (*domain.UserAccount, error) {
	if sageKey == "" {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM app_users WHERE sage_key = $1`, sageKey)
	return scanUser(row)
}

func scanUser(row rowScanner) (*domain.UserAccount, error) {
	var u domain.UserAccount
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Password, &u.Role, &u.Active, &u.SageKey, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// whereClause composes optional predicates with numbered placeholders.
type whereClause struct {
	conds []string
	args  []any
}

func (w *whereClause) arg(val any) string {
	w.args = append(w.args, val)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *whereClause) add(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conds, " AND ")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullID(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func nullIDPtr(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC().Format(time.DateOnly)
}

func nullTime(val *time.Time) any {
	if val == nil || val.IsZero() {
		return nil
	}
	return *val
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.UTC()
	return &t
}

func idPtr(val sql.NullInt64) *int64 {
	if !val.Valid {
		return nil
	}
	id := val.Int64
	return &id
}

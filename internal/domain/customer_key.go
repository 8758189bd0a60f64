package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrValidation = errors.New("validation failed")

// ErrUnauthenticated is returned when an operation is called without a user id.
var ErrUnauthenticated = errors.New("user id is required")

var ErrInvalidCustomerKey = &ValidationError{Field: "customerKey", Message: "invalid customer key"}

// ValidationError is a rejected caller input. It matches ErrValidation via errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(field string, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// CustomerKey identifies an ERP customer and optional ship-to address.
type CustomerKey struct {
	ARDivisionNo string `json:"arDivisionNo"`
	CustomerNo   string `json:"customerNo"`
	ShipToCode   string `json:"shipToCode,omitempty"`
}

var customerKeyPattern = regexp.MustCompile(`^([0-9]{2})-([A-Z0-9]+)(?:[:-]([A-Z0-9][A-Z0-9-]*))?$`)

// ParseCustomerKey accepts "01-ABC123", "01-ABC123-SHIP1" and "01-ABC123:SHIP1".
func ParseCustomerKey(raw string) (CustomerKey, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	match := customerKeyPattern.FindStringSubmatch(value)
	if match == nil {
		return CustomerKey{}, ErrInvalidCustomerKey
	}
	return CustomerKey{ARDivisionNo: match[1], CustomerNo: match[2], ShipToCode: match[3]}, nil
}

func (k CustomerKey) IsZero() bool {
	return k.ARDivisionNo == "" && k.CustomerNo == ""
}

// AccountKey is the division and customer number without the ship-to code.
func (k CustomerKey) AccountKey() string {
	return k.ARDivisionNo + "-" + k.CustomerNo
}

func (k CustomerKey) String() string {
	if k.ShipToCode == "" {
		return k.AccountKey()
	}
	return k.AccountKey() + "-" + k.ShipToCode
}

// SameAccount compares division and customer number, ignoring ship-to.
func (k CustomerKey) SameAccount(other CustomerKey) bool {
	return k.ARDivisionNo == other.ARDivisionNo && k.CustomerNo == other.CustomerNo
}

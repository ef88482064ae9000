package discount

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Item is a cart line as seen by the engine.
type Item struct {
	ProductID     string
	CategoryIDs   []string
	CollectionIDs []string
	Quantity      int
	UnitPrice     decimal.Decimal
}

// LineTotal returns UnitPrice * Quantity.
func (it Item) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Cart is the snapshot a discount is evaluated against.
type Cart struct {
	// Subtotal is required; an invalid NullDecimal is a caller error.
	Subtotal decimal.NullDecimal
	Items    []Item
}

// TotalQuantity returns the sum of quantities across all lines.
func (c *Cart) TotalQuantity() int {
	total := 0
	for _, it := range c.Items {
		total += it.Quantity
	}
	return total
}

func (c *Cart) anyLine(match func(Item) bool) bool {
	for _, it := range c.Items {
		if match(it) {
			return true
		}
	}
	return false
}

// Input carries everything an evaluation depends on besides stored rules.
type Input struct {
	CurrencyCode string
	ZoneID       string
	// Code is the discount code entered by the customer, if any.
	Code string
	// UserID is empty for guest checkouts.
	UserID         string
	CustomerGroups []string
	Channel        string
	// Now is the evaluation timestamp. Zero means the engine clock.
	Now  time.Time
	Cart Cart
}

// currencyUnit is a validated ISO 4217 currency with its minor-unit scale.
type currencyUnit struct {
	code  string
	scale int32
}

func (in *Input) validate() (currencyUnit, error) {
	code := strings.TrimSpace(in.CurrencyCode)
	if code == "" {
		return currencyUnit{}, errors.Wrap(ErrInvalidInput, "currency code required")
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return currencyUnit{}, errors.Wrapf(ErrInvalidInput, "malformed currency code %q", code)
	}
	if strings.TrimSpace(in.ZoneID) == "" {
		return currencyUnit{}, errors.Wrap(ErrInvalidInput, "zone id required")
	}
	if !in.Cart.Subtotal.Valid {
		return currencyUnit{}, errors.Wrap(ErrInvalidInput, "cart subtotal required")
	}
	if in.Cart.Subtotal.Decimal.IsNegative() {
		return currencyUnit{}, errors.Wrapf(ErrInvalidInput, "negative cart subtotal %s", in.Cart.Subtotal.Decimal)
	}
	for i, it := range in.Cart.Items {
		if it.Quantity < 0 {
			return currencyUnit{}, errors.Wrapf(ErrInvalidInput, "negative quantity on line %d", i)
		}
		if it.UnitPrice.IsNegative() {
			return currencyUnit{}, errors.Wrapf(ErrInvalidInput, "negative unit price on line %d", i)
		}
	}

	scale, _ := currency.Standard.Rounding(unit)
	return currencyUnit{code: unit.String(), scale: int32(scale)}, nil
}

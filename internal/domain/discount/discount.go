package discount

import (
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount calculation strategies.
type Type string

const (
	// TypePercentage takes a percentage of the scoped subtotal.
	TypePercentage Type = "percentage"
	// TypeFixed takes a fixed amount capped at the scoped subtotal.
	TypeFixed Type = "fixed"
)

// Status of a discount as configured by an administrator.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// StackingPolicy governs how a discount combines with others on one order.
type StackingPolicy string

const (
	// PolicyStack composes with every other applied discount.
	PolicyStack StackingPolicy = "stack"
	// PolicyExclusive applies only when nothing was applied before it and
	// suppresses everything evaluated after it.
	PolicyExclusive StackingPolicy = "exclusive"
	// PolicyHighestOnly competes with other highest-only discounts; only the
	// largest resulting amount survives.
	PolicyHighestOnly StackingPolicy = "highest_only"
)

// Scope restricts which cart lines a discount is calculated against.
type Scope string

const (
	ScopeCart       Scope = "cart"
	ScopeCategory   Scope = "category"
	ScopeCollection Scope = "collection"
	ScopeProduct    Scope = "product"
)

// Eligibility selects which customers may receive a discount.
type Eligibility string

const (
	EligibilityAll           Eligibility = "all"
	EligibilitySpecificGroup Eligibility = "specific_group"
)

var (
	// ErrDiscountNotFound is returned by repositories when no discount
	// matches the requested identifier.
	ErrDiscountNotFound = errors.New("discount not found")
	// ErrCodeNotFound is returned by repositories when no code matches.
	ErrCodeNotFound = errors.New("discount code not found")
	// ErrCodeLimitReached is returned when recording a redemption would push
	// a code past its usage cap.
	ErrCodeLimitReached = errors.New("discount code usage limit reached")
	// ErrInvalidInput marks caller contract violations such as a missing
	// currency or cart subtotal.
	ErrInvalidInput = errors.New("invalid evaluation input")
)

var hundred = decimal.NewFromInt(100)

// TimeWindow restricts a discount to a time-of-day range in the location of
// the evaluation timestamp. A window whose end precedes its start wraps past
// midnight.
type TimeWindow struct {
	// From and To are minutes since midnight, To exclusive.
	From int
	To   int
}

// Contains reports whether t falls into the window.
func (w TimeWindow) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	if w.From <= w.To {
		return m >= w.From && m < w.To
	}
	return m >= w.From || m < w.To
}

// Discount is a promotional rule. It is read-only to the engine.
type Discount struct {
	ID                string
	Name              string
	Type              Type
	Value             decimal.Decimal
	Status            Status
	StackingPolicy    StackingPolicy
	FirstOrderOnly    bool
	FreeShipping      bool
	AppliesToShipping bool
	Priority          int
	ApplyTo           Scope
	// Targets holds the product, category or collection ids ApplyTo refers
	// to. Ignored for ScopeCart.
	Targets     []string
	MinRequired decimal.Decimal
	Eligibility Eligibility
	// CustomerGroups lists the groups allowed when Eligibility is
	// EligibilitySpecificGroup.
	CustomerGroups []string
	StartsAt       *time.Time
	EndsAt         *time.Time
	// WeekdayMask has bit time.Weekday set for every allowed day. Zero means
	// every day.
	WeekdayMask          uint8
	TimeWindow           *TimeWindow
	ChannelRestrictions  []string
	CurrencyRestrictions []string
	ZoneRestrictions     []string
	Conditions           []Condition
}

// IsCurrentlyActive reports whether the discount is active and now falls in
// its validity window. Both boundaries are inclusive.
func (d *Discount) IsCurrentlyActive(now time.Time) bool {
	if d.Status != StatusActive {
		return false
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && now.After(*d.EndsAt) {
		return false
	}
	return true
}

// CalculateAmount returns the deduction for the given base amount,
// independent of stacking. The result is never negative and a fixed amount
// never exceeds base.
func (d *Discount) CalculateAmount(base decimal.Decimal) (decimal.Decimal, error) {
	if !base.IsPositive() {
		return decimal.Zero, nil
	}
	var amount decimal.Decimal
	switch d.Type {
	case TypePercentage:
		amount = base.Mul(d.Value).Div(hundred)
	case TypeFixed:
		amount = decimal.Min(d.Value, base)
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", d.Type)
	}
	if amount.IsNegative() {
		return decimal.Zero, nil
	}
	return amount, nil
}

// onWeekday reports whether the weekday mask allows t.
func (d *Discount) onWeekday(t time.Time) bool {
	return d.WeekdayMask == 0 || d.WeekdayMask&(1<<uint(t.Weekday())) != 0
}

// restricts reports whether a non-empty restriction list excludes value.
func restricts(list []string, value string) bool {
	return len(list) > 0 && !slices.Contains(list, value)
}

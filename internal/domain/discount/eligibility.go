package discount

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Exclusion reasons, reported in debug logs.
const (
	reasonNotCurrent    = "not current"
	reasonWeekday       = "outside weekdays"
	reasonTimeWindow    = "outside time window"
	reasonCurrency      = "currency restricted"
	reasonZone          = "zone restricted"
	reasonChannel       = "channel restricted"
	reasonMinRequired   = "below minimum subtotal"
	reasonScope         = "no matching cart line"
	reasonCustomerGroup = "customer group not eligible"
	reasonCondition     = "condition failed"
	reasonFirstOrder    = "not a first order"
)

// orderHistory memoizes the first-order lookup for a single evaluation.
type orderHistory struct {
	repo    RedemptionRepository
	userID  string
	checked bool
	has     bool
}

func (h *orderHistory) hasCompletedOrder(ctx context.Context) (bool, error) {
	if h.userID == "" {
		// Guests have no history to check.
		return false, nil
	}
	if !h.checked {
		has, err := h.repo.HasCompletedOrder(ctx, h.userID)
		if err != nil {
			return false, errors.Wrap(err, "check order history")
		}
		h.checked, h.has = true, has
	}
	return h.has, nil
}

// exclusionReason returns the first reason d is not eligible for in, or an
// empty string when every check passes. Cheap checks run first so the order
// history is only consulted for otherwise eligible discounts.
func exclusionReason(
	ctx context.Context,
	d *Discount,
	in *Input,
	cur currencyUnit,
	history *orderHistory,
) (string, error) {
	now := in.Now
	switch {
	case !d.IsCurrentlyActive(now):
		return reasonNotCurrent, nil
	case !d.onWeekday(now):
		return reasonWeekday, nil
	case d.TimeWindow != nil && !d.TimeWindow.Contains(now):
		return reasonTimeWindow, nil
	case restrictsFold(d.CurrencyRestrictions, cur.code):
		return reasonCurrency, nil
	case restricts(d.ZoneRestrictions, in.ZoneID):
		return reasonZone, nil
	case restricts(d.ChannelRestrictions, in.Channel):
		return reasonChannel, nil
	case in.Cart.Subtotal.Decimal.LessThan(d.MinRequired):
		return reasonMinRequired, nil
	}

	if d.ApplyTo != ScopeCart && d.ApplyTo != "" {
		if _, matched := scopedBase(d, &in.Cart); !matched {
			return reasonScope, nil
		}
	}
	if d.Eligibility == EligibilitySpecificGroup && !intersects(d.CustomerGroups, in.CustomerGroups) {
		return reasonCustomerGroup, nil
	}
	for _, c := range d.Conditions {
		if !c.Passes(in) {
			return reasonCondition + ": " + string(c.Type), nil
		}
	}

	if d.FirstOrderOnly {
		has, err := history.hasCompletedOrder(ctx)
		if err != nil {
			return "", err
		}
		if has {
			return reasonFirstOrder, nil
		}
	}
	return "", nil
}

// scopedBase returns the amount d is calculated against and whether at least
// one cart line matched the discount scope.
func scopedBase(d *Discount, cart *Cart) (decimal.Decimal, bool) {
	var match func(Item) bool
	switch d.ApplyTo {
	case ScopeProduct:
		match = func(it Item) bool { return slices.Contains(d.Targets, it.ProductID) }
	case ScopeCategory:
		match = func(it Item) bool { return intersects(d.Targets, it.CategoryIDs) }
	case ScopeCollection:
		match = func(it Item) bool { return intersects(d.Targets, it.CollectionIDs) }
	default:
		return cart.Subtotal.Decimal, true
	}

	sum := decimal.Zero
	matched := false
	for _, it := range cart.Items {
		if match(it) {
			sum = sum.Add(it.LineTotal())
			matched = true
		}
	}
	return sum, matched
}

func intersects(a, b []string) bool {
	for _, v := range a {
		if slices.Contains(b, v) {
			return true
		}
	}
	return false
}

func restrictsFold(list []string, value string) bool {
	if len(list) == 0 {
		return false
	}
	for _, v := range list {
		if strings.EqualFold(v, value) {
			return false
		}
	}
	return true
}

package discount

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

// candidate is an eligible discount with its unrounded amount.
type candidate struct {
	discount *Discount
	code     string
	amount   decimal.Decimal
}

// compareCandidates orders by ascending priority, then descending value,
// then ascending id so the order is total.
func compareCandidates(a, b candidate) int {
	if c := cmp.Compare(a.discount.Priority, b.discount.Priority); c != 0 {
		return c
	}
	if c := b.discount.Value.Cmp(a.discount.Value); c != 0 {
		return c
	}
	return cmp.Compare(a.discount.ID, b.discount.ID)
}

// keepHighestOnly drops every highest-only candidate except the one with the
// largest amount. Ties go to the candidate evaluated first. cands must be
// sorted.
func keepHighestOnly(cands []candidate) []candidate {
	best := -1
	for i, c := range cands {
		if c.discount.StackingPolicy != PolicyHighestOnly {
			continue
		}
		if best < 0 || c.amount.GreaterThan(cands[best].amount) {
			best = i
		}
	}
	if best < 0 {
		return cands
	}
	out := cands[:0:0]
	for i, c := range cands {
		if c.discount.StackingPolicy == PolicyHighestOnly && i != best {
			continue
		}
		out = append(out, c)
	}
	return out
}

// resolve applies stacking policies in evaluation order and returns the
// applied discounts. Every amount is rounded to scale and then clamped to what
// is left of subtotal, which must already be at scale.
//
// An exclusive candidate is skipped once anything has been applied; when it
// is reached first it applies alone and ends the evaluation.
func resolve(cands []candidate, subtotal decimal.Decimal, scale int32) []Applied {
	slices.SortFunc(cands, compareCandidates)
	cands = keepHighestOnly(cands)

	remaining := subtotal
	var applied []Applied
	for _, c := range cands {
		exclusive := c.discount.StackingPolicy == PolicyExclusive
		if exclusive && len(applied) > 0 {
			continue
		}

		amount := decimal.Min(c.amount.Round(scale), remaining)
		remaining = remaining.Sub(amount)
		applied = append(applied, Applied{
			DiscountID:        c.discount.ID,
			Code:              c.code,
			Type:              c.discount.Type,
			Amount:            amount,
			FreeShipping:      c.discount.FreeShipping,
			AppliesToShipping: c.discount.AppliesToShipping,
		})

		if exclusive {
			break
		}
	}
	return applied
}

package discount

import "time"

// Code is a redeemable token bound to exactly one Discount.
type Code struct {
	ID         string
	Code       string
	DiscountID string
	ExpiresAt  *time.Time
	// MaxUses is nil for codes without a usage cap.
	MaxUses    *int
	UsageCount int
}

// HasReachedLimit reports whether the code has exhausted its allowed uses.
func (c *Code) HasReachedLimit() bool {
	return c.MaxUses != nil && c.UsageCount >= *c.MaxUses
}

// IsExpired reports whether now is past the code's expiry.
func (c *Code) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// Redeemable reports whether the code may contribute a discount at now.
func (c *Code) Redeemable(now time.Time) bool {
	return !c.IsExpired(now) && !c.HasReachedLimit()
}

package discount

import (
	"time"

	"github.com/shopspring/decimal"
)

// Redemption records that a discount was applied to a completed order. It is
// written by the order workflow, never by the engine.
type Redemption struct {
	ID         string
	DiscountID string
	// CodeID is empty for codeless discounts.
	CodeID string
	// UserID is empty for guest checkouts.
	UserID    string
	OrderID   string
	Amount    decimal.Decimal
	Currency  string
	CreatedAt time.Time
}

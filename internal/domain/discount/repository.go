package discount

import "context"

// DiscountRepository provides read access to discount rules.
type DiscountRepository interface {
	// ListAutomatic returns active, codeless discounts open to every
	// customer, with their conditions loaded.
	ListAutomatic(ctx context.Context) ([]Discount, error)
	// GetByID returns ErrDiscountNotFound when no discount matches.
	GetByID(ctx context.Context, id string) (*Discount, error)
}

// CodeRepository provides lookup of redeemable codes.
type CodeRepository interface {
	// FindByCode matches code exactly and returns ErrCodeNotFound when no
	// code matches.
	FindByCode(ctx context.Context, code string) (*Code, error)
}

// RedemptionRepository answers redemption history questions.
type RedemptionRepository interface {
	// HasCompletedOrder reports whether the user has at least one completed
	// order, regardless of which discount it used.
	HasCompletedOrder(ctx context.Context, userID string) (bool, error)
}

// RedemptionRecorder persists redemptions once an order completes.
type RedemptionRecorder interface {
	Record(ctx context.Context, r *Redemption) error
}

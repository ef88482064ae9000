package discount

import (
	"slices"
	"strconv"

	"github.com/shopspring/decimal"
)

// ConditionType names the predicate a Condition applies.
type ConditionType string

const (
	// ConditionMinQuantity requires the total cart quantity to reach Value.
	ConditionMinQuantity ConditionType = "min_quantity"
	// ConditionMinSubtotal requires the cart subtotal to reach Value.
	ConditionMinSubtotal ConditionType = "min_subtotal"
	// ConditionCustomerGroup requires the customer to belong to group Value.
	ConditionCustomerGroup ConditionType = "customer_group"
	// ConditionProduct requires product Value to be in the cart.
	ConditionProduct ConditionType = "product"
	// ConditionCategory requires a line from category Value.
	ConditionCategory ConditionType = "category"
	// ConditionCollection requires a line from collection Value.
	ConditionCollection ConditionType = "collection"
)

// Condition is an extra eligibility predicate owned by a Discount.
type Condition struct {
	ID    string
	Type  ConditionType
	Value string
}

// Passes evaluates the condition against an evaluation input. Unknown types
// and unparsable values never pass.
func (c Condition) Passes(in *Input) bool {
	switch c.Type {
	case ConditionMinQuantity:
		n, err := strconv.Atoi(c.Value)
		if err != nil {
			return false
		}
		return in.Cart.TotalQuantity() >= n
	case ConditionMinSubtotal:
		v, err := decimal.NewFromString(c.Value)
		if err != nil {
			return false
		}
		return in.Cart.Subtotal.Decimal.GreaterThanOrEqual(v)
	case ConditionCustomerGroup:
		return slices.Contains(in.CustomerGroups, c.Value)
	case ConditionProduct:
		return in.Cart.anyLine(func(it Item) bool { return it.ProductID == c.Value })
	case ConditionCategory:
		return in.Cart.anyLine(func(it Item) bool { return slices.Contains(it.CategoryIDs, c.Value) })
	case ConditionCollection:
		return in.Cart.anyLine(func(it Item) bool { return slices.Contains(it.CollectionIDs, c.Value) })
	default:
		return false
	}
}

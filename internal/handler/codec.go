package handler

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

// decodeDecimal accepts both JSON strings and numbers.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, errors.Errorf("expected decimal, got %s", d.Next())
	}
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// decodeEvaluateRequest reads the evaluate request body. Unknown fields are
// skipped, including "now": evaluations always run on the server clock.
func decodeEvaluateRequest(d *jx.Decoder) (discount.Input, error) {
	var in discount.Input
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "currency":
			in.CurrencyCode, err = d.Str()
		case "zone_id":
			in.ZoneID, err = d.Str()
		case "code":
			in.Code, err = d.Str()
		case "user_id":
			in.UserID, err = d.Str()
		case "channel":
			in.Channel, err = d.Str()
		case "customer_groups":
			in.CustomerGroups, err = decodeStrings(d)
		case "cart":
			in.Cart, err = decodeCart(d)
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "field %q", key)
	})
	return in, err
}

func decodeCart(d *jx.Decoder) (discount.Cart, error) {
	var cart discount.Cart
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "subtotal":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "subtotal")
			}
			cart.Subtotal = decimal.NewNullDecimal(v)
			return nil
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				it, err := decodeItem(d)
				if err != nil {
					return errors.Wrapf(err, "item %d", len(cart.Items))
				}
				cart.Items = append(cart.Items, it)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	return cart, err
}

func decodeItem(d *jx.Decoder) (discount.Item, error) {
	var it discount.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			it.ProductID, err = d.Str()
		case "category_ids":
			it.CategoryIDs, err = decodeStrings(d)
		case "collection_ids":
			it.CollectionIDs, err = decodeStrings(d)
		case "quantity":
			it.Quantity, err = d.Int()
		case "unit_price":
			it.UnitPrice, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return it, err
}

// formatAmount renders an amount with the currency's minor unit scale.
func formatAmount(amount decimal.Decimal, code string) string {
	scale := 2
	if cur, err := currency.ParseISO(code); err == nil {
		scale, _ = currency.Standard.Rounding(cur)
	}
	return amount.StringFixed(int32(scale))
}

func encodeResult(e *jx.Encoder, res *discount.Result, code string) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("discount_total", func(e *jx.Encoder) { e.Str(formatAmount(res.DiscountTotal, code)) })
		e.Field("free_shipping", func(e *jx.Encoder) { e.Bool(res.FreeShipping) })
		e.Field("applied", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, a := range res.Applied {
					e.Obj(func(e *jx.Encoder) {
						e.Field("discount_id", func(e *jx.Encoder) { e.Str(a.DiscountID) })
						if a.Code != "" {
							e.Field("code", func(e *jx.Encoder) { e.Str(a.Code) })
						}
						e.Field("type", func(e *jx.Encoder) { e.Str(string(a.Type)) })
						e.Field("amount", func(e *jx.Encoder) { e.Str(formatAmount(a.Amount, code)) })
						e.Field("free_shipping", func(e *jx.Encoder) { e.Bool(a.FreeShipping) })
						e.Field("applies_to_shipping", func(e *jx.Encoder) { e.Bool(a.AppliesToShipping) })
					})
				}
			})
		})
	})
}

func decodeRedemption(d *jx.Decoder) (discount.Redemption, error) {
	var red discount.Redemption
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "discount_id":
			red.DiscountID, err = d.Str()
		case "code_id":
			red.CodeID, err = d.Str()
		case "user_id":
			red.UserID, err = d.Str()
		case "order_id":
			red.OrderID, err = d.Str()
		case "amount":
			red.Amount, err = decodeDecimal(d)
		case "currency":
			red.Currency, err = d.Str()
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "field %q", key)
	})
	return red, err
}

func validateRedemption(red *discount.Redemption) error {
	switch {
	case red.DiscountID == "":
		return errors.New("discount_id required")
	case red.OrderID == "":
		return errors.New("order_id required")
	case red.Currency == "":
		return errors.New("currency required")
	case red.Amount.IsNegative():
		return errors.New("amount must not be negative")
	}
	if _, err := currency.ParseISO(red.Currency); err != nil {
		return errors.Errorf("malformed currency %q", red.Currency)
	}
	return nil
}

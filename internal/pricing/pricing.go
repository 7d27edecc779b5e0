// Package pricing holds the pure money arithmetic shared by carts and checkout.
// All amounts are int64 in the smallest currency unit.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// Line is a quantity/unit-price pair.
type Line struct {
	Quantity  int64
	UnitPrice int64
}

// Discount describes a promotion's reduction rule.
type Discount struct {
	Type  enums.DiscountType
	Value decimal.Decimal
}

// LineTotal returns quantity × unit price.
func LineTotal(quantity, unitPrice int64) int64 {
	return quantity * unitPrice
}

// Subtotal sums the line totals.
func Subtotal(lines []Line) int64 {
	var total int64
	for _, l := range lines {
		total += LineTotal(l.Quantity, l.UnitPrice)
	}
	return total
}

// DiscountAmount computes the reduction for subtotal, clamped to [0, subtotal].
// Percentage discounts are floored to a whole unit.
func DiscountAmount(subtotal int64, discount Discount) int64 {
	if subtotal <= 0 {
		return 0
	}
	var amount int64
	switch discount.Type {
	case enums.DiscountTypePercentage:
		amount = decimal.NewFromInt(subtotal).
			Mul(discount.Value).
			Div(hundred).
			Floor().
			IntPart()
	case enums.DiscountTypeFixed:
		amount = discount.Value.Floor().IntPart()
	default:
		return 0
	}
	return clamp(amount, 0, subtotal)
}

// Total returns subtotal + shipping − discount, never negative.
func Total(subtotal, shippingFee, discountAmount int64) int64 {
	total := subtotal + shippingFee - discountAmount
	if total < 0 {
		return 0
	}
	return total
}

// CartTotal is the total shown on a cart, which never includes shipping.
func CartTotal(subtotal, discountAmount int64) int64 {
	return Total(subtotal, 0, discountAmount)
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

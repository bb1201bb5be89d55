package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Apply calculates the discount for the given rule and cart items.
// It returns ErrBelowMinimum when the cart subtotal does not reach the rule's
// minimum cart amount.
func Apply(rule *Rule, items []Item) (Discount, error) {
	subtotal := Subtotal(items)
	if rule.MinCartAmount.IsPositive() && subtotal.LessThan(rule.MinCartAmount) {
		return Discount{}, ErrBelowMinimum
	}

	amount, err := amountFor(rule.DiscountType, rule.Value, rule.MaxDiscount, subtotal, items)
	if err != nil {
		return Discount{}, err
	}
	return Discount{
		Code:        rule.Code,
		Amount:      amount,
		Description: rule.Description,
	}, nil
}

func amountFor(kind DiscountType, value, maxDiscount, subtotal decimal.Decimal, items []Item) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch kind {
	case DiscountPercentage:
		amount = subtotal.Mul(value).Div(hundred)
	case DiscountFixed:
		amount = decimal.Min(value, subtotal)
	case DiscountFreeLowest:
		amount = lowestUnitPrice(items)
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", kind)
	}
	if maxDiscount.IsPositive() {
		amount = decimal.Min(amount, maxDiscount)
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2), nil
}

// Subtotal returns the sum of line totals, each price * quantity rounded to
// 2 places, the same figure a cart snapshot shows.
func Subtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2))
	}
	return sum
}

// lowestUnitPrice returns the lowest unit price among items with a positive
// quantity, or zero when there are none.
func lowestUnitPrice(items []Item) decimal.Decimal {
	lowest := decimal.Zero
	found := false
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if !found || item.Price.LessThan(lowest) {
			lowest = item.Price
			found = true
		}
	}
	return lowest
}

package coupon

import (
	"github.com/shopspring/decimal"
)

// AutoRule is applied by the store without any code entry once the cart
// subtotal reaches Threshold. A rule may grant a discount, a free gift, or both.
type AutoRule struct {
	Code         string
	Threshold    decimal.Decimal
	DiscountType DiscountType
	Value        decimal.Decimal
	MaxDiscount  decimal.Decimal
	Description  string
	Gift         *Gift
}

// Gift describes a zero-price line granted by an auto rule.
type Gift struct {
	ProductID    string
	Grams        int
	VariantLabel string
	Quantity     int
}

// GrantedGift is a gift whose rule qualified.
type GrantedGift struct {
	RuleCode string
	Gift
}

// AutoResult is the outcome of evaluating auto rules against a cart.
type AutoResult struct {
	Discount Discount
	Gifts    []GrantedGift
}

// EvaluateAuto applies every rule whose threshold the cart subtotal reaches.
// At most one discount applies: the largest one, ties resolved by rule order.
// Every qualifying gift is granted.
func EvaluateAuto(rules []AutoRule, items []Item) AutoResult {
	subtotal := Subtotal(items)

	var res AutoResult
	for _, r := range rules {
		if subtotal.LessThan(r.Threshold) {
			continue
		}
		if r.Gift != nil && r.Gift.ProductID != "" {
			res.Gifts = append(res.Gifts, GrantedGift{RuleCode: r.Code, Gift: *r.Gift})
		}
		if r.DiscountType == "" || !r.Value.IsPositive() && r.DiscountType != DiscountFreeLowest {
			continue
		}
		amount, err := amountFor(r.DiscountType, r.Value, r.MaxDiscount, subtotal, items)
		if err != nil || !amount.IsPositive() {
			continue
		}
		if amount.GreaterThan(res.Discount.Amount) {
			res.Discount = Discount{Code: r.Code, Amount: amount, Description: r.Description}
		}
	}
	return res
}

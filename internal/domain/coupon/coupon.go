package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
	// DiscountFreeLowest removes the cost of the cheapest unit in the cart.
	DiscountFreeLowest DiscountType = "free_lowest"
)

var (
	// ErrInvalidCoupon is returned when a coupon code is not found or inactive.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned when a coupon is outside its valid time window.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrBelowMinimum is returned when the cart subtotal is below the coupon's
	// minimum cart amount.
	ErrBelowMinimum = errors.New("cart total is below the coupon minimum")
	// ErrCouponUsageLimitReached is returned when a coupon has exhausted its
	// allowed uses, globally or for the current user.
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
)

// Rule defines a manual coupon's discount behaviour and eligibility constraints.
type Rule struct {
	Code          string
	DiscountType  DiscountType
	Value         decimal.Decimal
	MinCartAmount decimal.Decimal
	// MaxDiscount caps the computed discount; zero means uncapped.
	MaxDiscount    decimal.Decimal
	Description    string
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	MaxUses        int
	Uses           int
	MaxUsesPerUser int
}

// Discount holds the computed discount amount and a human-readable description.
type Discount struct {
	Code        string
	Amount      decimal.Decimal
	Description string
}

// Item represents a line item in the cart for discount calculation purposes.
type Item struct {
	ProductID string
	Price     decimal.Decimal
	Quantity  int
}

// Repository provides lookup of coupon rules and per-user usage.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
	CountUserUses(ctx context.Context, code, userID string) (int, error)
}

// AutoRuleSource lists the active auto-apply rules.
type AutoRuleSource interface {
	ListAutoRules(ctx context.Context) ([]AutoRule, error)
}

// Reason maps a coupon error to the rejection reason reported to clients.
// It returns "" for errors that are not coupon rejections.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCoupon):
		return "invalid_code"
	case errors.Is(err, ErrCouponExpired):
		return "expired"
	case errors.Is(err, ErrBelowMinimum):
		return "below_minimum"
	case errors.Is(err, ErrCouponUsageLimitReached):
		return "usage_limit_reached"
	default:
		return ""
	}
}

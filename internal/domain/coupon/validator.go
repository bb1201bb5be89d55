package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// Validator validates a coupon code for a user's cart and returns the
// computed discount.
type Validator interface {
	Validate(ctx context.Context, userID, code string, items []Item) (*Discount, error)
}

// RepoValidator implements Validator by looking up coupon rules from a
// Repository and applying them via the Apply function.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// NormalizeCode trims and upper-cases a shopper-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate looks up the coupon rule for the given code, checks temporal
// validity and usage limits, and applies it to the cart items. Validation
// never consumes a use.
func (v *RepoValidator) Validate(ctx context.Context, userID, code string, items []Item) (*Discount, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidCoupon
	}

	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	now := v.now()

	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return nil, ErrCouponExpired
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return nil, ErrCouponExpired
	}

	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return nil, ErrCouponUsageLimitReached
	}
	if rule.MaxUsesPerUser > 0 && userID != "" {
		used, err := v.repo.CountUserUses(ctx, rule.Code, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count coupon uses")
		}
		if used >= rule.MaxUsesPerUser {
			return nil, ErrCouponUsageLimitReached
		}
	}

	d, err := Apply(rule, items)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

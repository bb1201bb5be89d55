package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/xenking/bakery-cart/internal/domain/coupon"
)

var (
	_ coupon.Repository     = (*CouponRepository)(nil)
	_ coupon.AutoRuleSource = (*CouponRepository)(nil)
)

// CouponRepository keeps manual coupon rules, their per-user redemptions and
// the auto-apply rules.
type CouponRepository struct {
	mu          sync.RWMutex
	rules       map[string]coupon.Rule
	redemptions map[string]map[string]int
	auto        []coupon.AutoRule
}

// NewCouponRepository returns an empty CouponRepository.
func NewCouponRepository() *CouponRepository {
	return &CouponRepository{
		rules:       make(map[string]coupon.Rule),
		redemptions: make(map[string]map[string]int),
	}
}

// UpsertRule inserts or replaces a manual coupon rule.
func (r *CouponRepository) UpsertRule(rule coupon.Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule.Code = strings.ToUpper(rule.Code)
	r.rules[rule.Code] = rule
}

// UpsertAutoRule inserts or replaces an auto-apply rule, keeping rules
// ordered by code.
func (r *CouponRepository) UpsertAutoRule(rule coupon.AutoRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auto = slices.DeleteFunc(r.auto, func(a coupon.AutoRule) bool { return a.Code == rule.Code })
	r.auto = append(r.auto, rule)
	slices.SortStableFunc(r.auto, func(a, b coupon.AutoRule) int { return cmp.Compare(a.Code, b.Code) })
}

// RecordRedemption registers one use of code by userID.
func (r *CouponRepository) RecordRedemption(code, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code = strings.ToUpper(code)
	byUser, ok := r.redemptions[code]
	if !ok {
		byUser = make(map[string]int)
		r.redemptions[code] = byUser
	}
	byUser[userID]++
	if rule, ok := r.rules[code]; ok {
		rule.Uses++
		r.rules[code] = rule
	}
}

// FindByCode looks up a coupon case-insensitively. It returns
// coupon.ErrInvalidCoupon when the code is unknown.
func (r *CouponRepository) FindByCode(_ context.Context, code string) (*coupon.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[strings.ToUpper(code)]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	return &rule, nil
}

// CountUserUses returns how many times userID redeemed code.
func (r *CouponRepository) CountUserUses(_ context.Context, code, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.redemptions[strings.ToUpper(code)][userID], nil
}

// ListAutoRules returns the auto-apply rules ordered by code.
func (r *CouponRepository) ListAutoRules(_ context.Context) ([]coupon.AutoRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.auto), nil
}

package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bakery-cart/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, discount_type, value, min_cart_amount, max_discount, description,
		valid_from, valid_until, max_uses, uses, max_uses_per_user
		FROM coupons WHERE code = UPPER($1) AND active = TRUE`

	countUserUsesSQL = `SELECT COUNT(*) FROM coupon_redemptions WHERE code = UPPER($1) AND user_id = $2`

	recordRedemptionSQL = `INSERT INTO coupon_redemptions (code, user_id) VALUES (UPPER($1), $2)`

	incrementCouponUsesSQL = `UPDATE coupons SET uses = uses + 1 WHERE code = UPPER($1)`

	upsertCouponSQL = `INSERT INTO coupons (code, discount_type, value, min_cart_amount, max_discount,
			description, valid_from, valid_until, max_uses, max_uses_per_user, active)
		VALUES (UPPER($1), $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type, value = EXCLUDED.value,
			min_cart_amount = EXCLUDED.min_cart_amount, max_discount = EXCLUDED.max_discount,
			description = EXCLUDED.description, valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until, max_uses = EXCLUDED.max_uses,
			max_uses_per_user = EXCLUDED.max_uses_per_user, active = TRUE`

	listAutoRulesSQL = `SELECT code, threshold, discount_type, value, max_discount, description,
		gift_product_id, gift_grams, gift_variant_label, gift_quantity
		FROM auto_rules WHERE active = TRUE ORDER BY code`

	upsertAutoRuleSQL = `INSERT INTO auto_rules (code, threshold, discount_type, value, max_discount,
			description, gift_product_id, gift_grams, gift_variant_label, gift_quantity, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE)
		ON CONFLICT (code) DO UPDATE SET
			threshold = EXCLUDED.threshold, discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value, max_discount = EXCLUDED.max_discount,
			description = EXCLUDED.description, gift_product_id = EXCLUDED.gift_product_id,
			gift_grams = EXCLUDED.gift_grams, gift_variant_label = EXCLUDED.gift_variant_label,
			gift_quantity = EXCLUDED.gift_quantity, active = TRUE`
)

// upsertBatchSize bounds the number of statements queued per pgx batch.
const upsertBatchSize = 1000

var (
	_ coupon.Repository     = (*CouponRepository)(nil)
	_ coupon.AutoRuleSource = (*CouponRepository)(nil)
)

// CouponRepository implements coupon.Repository and coupon.AutoRuleSource
// backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active coupon by its code (case-insensitive).
// Returns coupon.ErrInvalidCoupon when no matching active coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	return &rule, nil
}

// CountUserUses returns how many times userID redeemed code.
func (r *CouponRepository) CountUserUses(ctx context.Context, code, userID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countUserUsesSQL, code, userID).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count uses of coupon %q", code)
	}
	return n, nil
}

// RecordRedemption registers one use of code by userID and bumps the global
// counter in the same transaction.
func (r *CouponRepository) RecordRedemption(ctx context.Context, code, userID string) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, recordRedemptionSQL, code, userID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, incrementCouponUsesSQL, code)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "record redemption of coupon %q", code)
	}
	return nil
}

// UpsertCoupon inserts or replaces a manual coupon rule.
func (r *CouponRepository) UpsertCoupon(ctx context.Context, rule coupon.Rule) error {
	if _, err := r.pool.Exec(ctx, upsertCouponSQL, couponArgs(rule)...); err != nil {
		return errors.Wrapf(err, "upsert coupon %q", rule.Code)
	}
	return nil
}

// UpsertCoupons upserts rules in batches and returns how many were written.
func (r *CouponRepository) UpsertCoupons(ctx context.Context, rules []coupon.Rule) (int, error) {
	written := 0
	for start := 0; start < len(rules); start += upsertBatchSize {
		chunk := rules[start:min(start+upsertBatchSize, len(rules))]

		batch := &pgx.Batch{}
		for _, rule := range chunk {
			batch.Queue(upsertCouponSQL, couponArgs(rule)...)
		}
		if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
			return written, errors.Wrapf(err, "upsert coupon batch at %d", start)
		}
		written += len(chunk)
	}
	return written, nil
}

// ListAutoRules returns the active auto-apply rules ordered by code.
func (r *CouponRepository) ListAutoRules(ctx context.Context) ([]coupon.AutoRule, error) {
	rows, err := r.pool.Query(ctx, listAutoRulesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list auto rules")
	}
	return pgx.CollectRows(rows, scanAutoRule)
}

// UpsertAutoRule inserts or replaces an auto-apply rule.
func (r *CouponRepository) UpsertAutoRule(ctx context.Context, rule coupon.AutoRule) error {
	var (
		giftProduct *string
		gift        coupon.Gift
	)
	if rule.Gift != nil {
		gift = *rule.Gift
		giftProduct = &gift.ProductID
	}
	_, err := r.pool.Exec(ctx, upsertAutoRuleSQL,
		rule.Code, rule.Threshold, string(rule.DiscountType), rule.Value, rule.MaxDiscount,
		rule.Description, giftProduct, gift.Grams, gift.VariantLabel, gift.Quantity,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert auto rule %q", rule.Code)
	}
	return nil
}

func couponArgs(rule coupon.Rule) []any {
	return []any{
		rule.Code, string(rule.DiscountType), rule.Value, rule.MinCartAmount, rule.MaxDiscount,
		rule.Description, rule.ValidFrom, rule.ValidUntil, rule.MaxUses, rule.MaxUsesPerUser,
	}
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule         coupon.Rule
		discountType string
	)
	err := row.Scan(
		&rule.Code, &discountType, &rule.Value, &rule.MinCartAmount, &rule.MaxDiscount, &rule.Description,
		&rule.ValidFrom, &rule.ValidUntil, &rule.MaxUses, &rule.Uses, &rule.MaxUsesPerUser,
	)
	rule.DiscountType = coupon.DiscountType(discountType)
	return rule, err
}

func scanAutoRule(row pgx.CollectableRow) (coupon.AutoRule, error) {
	var (
		rule         coupon.AutoRule
		discountType string
		giftProduct  *string
		gift         coupon.Gift
	)
	err := row.Scan(
		&rule.Code, &rule.Threshold, &discountType, &rule.Value, &rule.MaxDiscount, &rule.Description,
		&giftProduct, &gift.Grams, &gift.VariantLabel, &gift.Quantity,
	)
	rule.DiscountType = coupon.DiscountType(discountType)
	if giftProduct != nil {
		gift.ProductID = *giftProduct
		rule.Gift = &gift
	}
	return rule, err
}

// Package seed decodes catalog seed files and loads them into repositories.
package seed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bakery-cart/db"
	"github.com/xenking/bakery-cart/internal/domain/coupon"
	"github.com/xenking/bakery-cart/internal/domain/product"
)

// Data is a decoded seed file.
type Data struct {
	Products  []product.Product
	Coupons   []coupon.Rule
	AutoRules []coupon.AutoRule
}

type fileJSON struct {
	Products  []productJSON  `json:"products"`
	Coupons   []couponJSON   `json:"coupons"`
	AutoRules []autoRuleJSON `json:"autoRules"`
}

type productJSON struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Category      string            `json:"category"`
	Unit          string            `json:"unit"`
	Price         decimal.Decimal   `json:"price"`
	Variants      []product.Variant `json:"variants"`
	WeightOptions []int             `json:"weightOptions"`
	MinQuantity   int               `json:"minQuantity"`
	Step          int               `json:"step"`
}

type couponJSON struct {
	Code           string          `json:"code"`
	DiscountType   string          `json:"discountType"`
	Value          decimal.Decimal `json:"value"`
	MinCartAmount  decimal.Decimal `json:"minCartAmount"`
	MaxDiscount    decimal.Decimal `json:"maxDiscount"`
	Description    string          `json:"description"`
	ValidFrom      *time.Time      `json:"validFrom"`
	ValidUntil     *time.Time      `json:"validUntil"`
	MaxUses        int             `json:"maxUses"`
	MaxUsesPerUser int             `json:"maxUsesPerUser"`
}

type autoRuleJSON struct {
	Code         string          `json:"code"`
	Threshold    decimal.Decimal `json:"threshold"`
	DiscountType string          `json:"discountType"`
	Value        decimal.Decimal `json:"value"`
	MaxDiscount  decimal.Decimal `json:"maxDiscount"`
	Description  string          `json:"description"`
	Gift         *struct {
		ProductID    string `json:"productId"`
		Grams        int    `json:"grams"`
		VariantLabel string `json:"variantLabel"`
		Quantity     int    `json:"quantity"`
	} `json:"gift"`
}

// Default decodes the embedded bakery seed.
func Default() (*Data, error) {
	return Parse(db.Seed)
}

// Parse decodes a seed file.
func Parse(data []byte) (*Data, error) {
	var f fileJSON
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse seed JSON")
	}

	out := &Data{}
	for _, p := range f.Products {
		unit := product.Unit(p.Unit)
		switch unit {
		case product.UnitWeight, product.UnitPiece, product.UnitVariant:
		default:
			return nil, errors.Errorf("product %s: unknown unit %q", p.ID, p.Unit)
		}
		out.Products = append(out.Products, product.Product{
			ID:            p.ID,
			Name:          p.Name,
			Category:      p.Category,
			Unit:          unit,
			Price:         p.Price,
			Variants:      p.Variants,
			WeightOptions: p.WeightOptions,
			MinQuantity:   max(p.MinQuantity, 1),
			Step:          max(p.Step, 1),
		})
	}
	for _, c := range f.Coupons {
		out.Coupons = append(out.Coupons, coupon.Rule{
			Code:           coupon.NormalizeCode(c.Code),
			DiscountType:   coupon.DiscountType(c.DiscountType),
			Value:          c.Value,
			MinCartAmount:  c.MinCartAmount,
			MaxDiscount:    c.MaxDiscount,
			Description:    c.Description,
			ValidFrom:      c.ValidFrom,
			ValidUntil:     c.ValidUntil,
			MaxUses:        c.MaxUses,
			MaxUsesPerUser: c.MaxUsesPerUser,
		})
	}
	for _, r := range f.AutoRules {
		rule := coupon.AutoRule{
			Code:         coupon.NormalizeCode(r.Code),
			Threshold:    r.Threshold,
			DiscountType: coupon.DiscountType(r.DiscountType),
			Value:        r.Value,
			MaxDiscount:  r.MaxDiscount,
			Description:  r.Description,
		}
		if r.Gift != nil {
			rule.Gift = &coupon.Gift{
				ProductID:    r.Gift.ProductID,
				Grams:        r.Gift.Grams,
				VariantLabel: r.Gift.VariantLabel,
				Quantity:     r.Gift.Quantity,
			}
		}
		out.AutoRules = append(out.AutoRules, rule)
	}
	return out, nil
}

// Writer persists seed data. Both storage backends implement it.
type Writer interface {
	UpsertProduct(ctx context.Context, p product.Product) error
	UpsertCoupon(ctx context.Context, rule coupon.Rule) error
	UpsertAutoRule(ctx context.Context, rule coupon.AutoRule) error
}

// Load writes every entry of data through w. Products go first so gift
// rules can reference them.
func Load(ctx context.Context, w Writer, data *Data) error {
	for _, p := range data.Products {
		if err := w.UpsertProduct(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}
	for _, c := range data.Coupons {
		if err := w.UpsertCoupon(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
	}
	for _, r := range data.AutoRules {
		if err := w.UpsertAutoRule(ctx, r); err != nil {
			return errors.Wrapf(err, "upsert auto rule %s", r.Code)
		}
	}
	return nil
}

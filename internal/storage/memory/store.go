package memory

import (
	"context"

	"github.com/xenking/bakery-cart/internal/domain/coupon"
	"github.com/xenking/bakery-cart/internal/domain/product"
)

// Store bundles the in-memory repositories of one process.
type Store struct {
	Products *ProductRepository
	Coupons  *CouponRepository
	Carts    *CartRepository
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		Products: NewProductRepository(),
		Coupons:  NewCouponRepository(),
		Carts:    NewCartRepository(),
	}
}

// UpsertProduct implements seed.Writer.
func (s *Store) UpsertProduct(_ context.Context, p product.Product) error {
	s.Products.Upsert(p)
	return nil
}

// UpsertCoupon implements seed.Writer.
func (s *Store) UpsertCoupon(_ context.Context, rule coupon.Rule) error {
	s.Coupons.UpsertRule(rule)
	return nil
}

// UpsertAutoRule implements seed.Writer.
func (s *Store) UpsertAutoRule(_ context.Context, rule coupon.AutoRule) error {
	s.Coupons.UpsertAutoRule(rule)
	return nil
}

package cart

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/bakery-cart/internal/domain/coupon"
	"github.com/xenking/bakery-cart/internal/domain/product"
)

// Service owns cart mutation and pricing. Every operation returns the
// recomputed snapshot, so callers never price a cart themselves.
type Service struct {
	carts    Repository
	products product.Repository
	coupons  coupon.Validator
	autos    coupon.AutoRuleSource

	locks userLocks
	newID func() string
	now   func() time.Time
}

// NewService creates a cart Service with the required domain dependencies.
func NewService(
	carts Repository,
	products product.Repository,
	coupons coupon.Validator,
	autos coupon.AutoRuleSource,
) *Service {
	return &Service{
		carts:    carts,
		products: products,
		coupons:  coupons,
		autos:    autos,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Snapshot prices the user's cart.
func (s *Service) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return s.price(ctx, c)
}

// AddItem adds quantity units of a product selection, incrementing the
// matching line when one exists.
func (s *Service) AddItem(ctx context.Context, userID string, req AddItemRequest) (*Snapshot, error) {
	if req.ProductID == "" {
		return nil, ErrEmptyProductID
	}
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, &ProductNotFoundError{ProductID: req.ProductID}
		}
		return nil, errors.Wrap(err, "get product")
	}
	sel := p.NormalizeSelection(req.Selection)
	if _, err := p.UnitPrice(sel); err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, func(c *Cart) error {
		if i := c.matchingLine(p.ID, sel); i >= 0 {
			qty := c.Lines[i].Quantity + req.Quantity
			if err := p.CheckQuantity(qty); err != nil {
				return err
			}
			c.Lines[i].Quantity = qty
			return nil
		}
		if err := p.CheckQuantity(req.Quantity); err != nil {
			return err
		}
		c.Lines = append(c.Lines, Line{
			ID:        s.newID(),
			ProductID: p.ID,
			Selection: sel,
			Quantity:  req.Quantity,
		})
		return nil
	})
}

// UpdateQuantity sets the quantity of a line. A quantity of zero or less
// removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, userID, lineID string, quantity int) (*Snapshot, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, userID, lineID)
	}
	return s.mutate(ctx, userID, func(c *Cart) error {
		i := c.lineIndex(lineID)
		if i < 0 {
			return &LineNotFoundError{LineID: lineID}
		}
		p, err := s.products.GetByID(ctx, c.Lines[i].ProductID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return &ProductNotFoundError{ProductID: c.Lines[i].ProductID}
			}
			return errors.Wrap(err, "get product")
		}
		if err := p.CheckQuantity(quantity); err != nil {
			return err
		}
		c.Lines[i].Quantity = quantity
		return nil
	})
}

// RemoveItem deletes a line.
func (s *Service) RemoveItem(ctx context.Context, userID, lineID string) (*Snapshot, error) {
	return s.mutate(ctx, userID, func(c *Cart) error {
		i := c.lineIndex(lineID)
		if i < 0 {
			return &LineNotFoundError{LineID: lineID}
		}
		c.Lines = slices.Delete(c.Lines, i, i+1)
		return nil
	})
}

// ApplyCoupon validates code against the current cart and records it. A
// rejected code leaves the cart unchanged.
func (s *Service) ApplyCoupon(ctx context.Context, userID, code string) (*Snapshot, error) {
	code = coupon.NormalizeCode(code)
	return s.mutate(ctx, userID, func(c *Cart) error {
		items, err := s.couponItems(ctx, c)
		if err != nil {
			return err
		}
		if _, err := s.coupons.Validate(ctx, userID, code, items); err != nil {
			return errors.Wrap(err, "validate coupon")
		}
		c.CouponCode = code
		return nil
	})
}

// RemoveCoupon clears the manually applied coupon. Auto rules are unaffected.
func (s *Service) RemoveCoupon(ctx context.Context, userID string) (*Snapshot, error) {
	return s.mutate(ctx, userID, func(c *Cart) error {
		c.CouponCode = ""
		return nil
	})
}

// mutate loads the cart under the user's lock, applies fn, persists and
// prices the result. Nothing is saved when fn fails.
func (s *Service) mutate(ctx context.Context, userID string, fn func(c *Cart) error) (*Snapshot, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	c.UserID = userID
	c.UpdatedAt = s.now()
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return s.price(ctx, c)
}

// resolved pairs a stored line with its catalog entry.
type resolved struct {
	line    Line
	product product.Product
}

// resolve looks up the products of all lines in one batch. Lines whose
// product left the catalog are skipped.
func (s *Service) resolve(ctx context.Context, c *Cart) ([]resolved, error) {
	if len(c.Lines) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(c.Lines))
	for _, l := range c.Lines {
		ids = append(ids, l.ProductID)
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	out := make([]resolved, 0, len(c.Lines))
	for _, l := range c.Lines {
		p, ok := byID[l.ProductID]
		if !ok {
			continue
		}
		out = append(out, resolved{line: l, product: p})
	}
	return out, nil
}

func (s *Service) couponItems(ctx context.Context, c *Cart) ([]coupon.Item, error) {
	lines, err := s.resolve(ctx, c)
	if err != nil {
		return nil, err
	}
	items := make([]coupon.Item, 0, len(lines))
	for _, r := range lines {
		price, err := r.product.UnitPrice(r.line.Selection)
		if err != nil {
			continue
		}
		items = append(items, coupon.Item{ProductID: r.line.ProductID, Price: price, Quantity: r.line.Quantity})
	}
	return items, nil
}

// price builds the snapshot: line totals from current catalog prices, the
// manual coupon re-validated, auto rules evaluated, gifts injected.
func (s *Service) price(ctx context.Context, c *Cart) (*Snapshot, error) {
	lines, err := s.resolve(ctx, c)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Lines:          make([]SnapshotLine, 0, len(lines)),
		Gifts:          []SnapshotLine{},
		CouponCode:     c.CouponCode,
		CouponDiscount: decimal.Zero,
		AutoDiscount:   decimal.Zero,
		Subtotal:       decimal.Zero,
	}
	items := make([]coupon.Item, 0, len(lines))
	for _, r := range lines {
		unitPrice, err := r.product.UnitPrice(r.line.Selection)
		if err != nil {
			// The pack or variant was withdrawn from the catalog.
			continue
		}
		total := unitPrice.Mul(decimal.NewFromInt(int64(r.line.Quantity))).Round(2)
		snap.Lines = append(snap.Lines, SnapshotLine{
			ID:        r.line.ID,
			ProductID: r.product.ID,
			Name:      r.product.Name,
			Unit:      r.product.Unit,
			Selection: r.line.Selection,
			Quantity:  r.line.Quantity,
			UnitPrice: unitPrice,
			LineTotal: total,
		})
		items = append(items, coupon.Item{ProductID: r.product.ID, Price: unitPrice, Quantity: r.line.Quantity})
		snap.Subtotal = snap.Subtotal.Add(total)
		snap.ItemCount += r.line.Quantity
	}

	if c.CouponCode != "" {
		d, err := s.coupons.Validate(ctx, c.UserID, c.CouponCode, items)
		switch {
		case err == nil:
			snap.CouponDiscount = d.Amount
		case coupon.Reason(err) != "":
			snap.CouponRejection = coupon.Reason(err)
		default:
			return nil, errors.Wrap(err, "validate coupon")
		}
	}

	rules, err := s.autos.ListAutoRules(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list auto rules")
	}
	auto := coupon.EvaluateAuto(rules, items)
	snap.AutoCode = auto.Discount.Code
	snap.AutoDiscount = auto.Discount.Amount

	if err := s.addGifts(ctx, snap, auto.Gifts); err != nil {
		return nil, err
	}

	snap.Subtotal = snap.Subtotal.Round(2)
	snap.DiscountTotal = snap.CouponDiscount.Add(snap.AutoDiscount).Round(2)
	snap.GrandTotal = snap.Subtotal.Sub(snap.DiscountTotal)
	if snap.GrandTotal.IsNegative() {
		snap.GrandTotal = decimal.Zero
	}
	return snap, nil
}

func (s *Service) addGifts(ctx context.Context, snap *Snapshot, gifts []coupon.GrantedGift) error {
	if len(gifts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(gifts))
	for _, g := range gifts {
		ids = append(ids, g.ProductID)
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "get gift products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	for _, g := range gifts {
		p, ok := byID[g.ProductID]
		if !ok {
			continue
		}
		qty := max(g.Quantity, 1)
		snap.Gifts = append(snap.Gifts, SnapshotLine{
			ID:        "gift-" + g.RuleCode,
			ProductID: p.ID,
			Name:      p.Name,
			Unit:      p.Unit,
			Selection: p.NormalizeSelection(product.Selection{Grams: g.Grams, VariantLabel: g.VariantLabel}),
			Quantity:  qty,
			UnitPrice: decimal.Zero,
			LineTotal: decimal.Zero,
			Gift:      true,
		})
	}
	return nil
}

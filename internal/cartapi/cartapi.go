// Package cartapi defines the contract between the storefront cart engine and
// the remote cart store: wire types, rejection reasons, the error taxonomy and
// the JSON codec shared by both sides.
package cartapi

import (
	"net/url"

	"github.com/shopspring/decimal"
)

// Route paths of the remote cart store.
const (
	PathCart        = "/api/cart"
	PathCartItems   = "/api/cart/items"
	PathCartCoupon  = "/api/cart/coupon"
	PathProducts    = "/api/products"
	HeaderRequestID = "X-Request-ID"
)

// ItemPath returns the path addressing a single cart line.
func ItemPath(id string) string {
	return PathCartItems + "/" + url.PathEscape(id)
}

// Unit determines how a line's quantity and descriptors are interpreted.
type Unit string

const (
	// UnitWeight lines are sold by weight; Grams carries the pack size.
	UnitWeight Unit = "weight"
	// UnitPiece lines are sold per piece.
	UnitPiece Unit = "piece"
	// UnitVariant lines reference a named product variant.
	UnitVariant Unit = "variant"
)

// Valid reports whether u is a known unit kind.
func (u Unit) Valid() bool {
	switch u {
	case UnitWeight, UnitPiece, UnitVariant:
		return true
	default:
		return false
	}
}

// Selection holds the unit-specific descriptors of a line.
type Selection struct {
	Grams        int
	VariantLabel string
}

// Item is a single cart line as reported by the store.
type Item struct {
	ID           string
	ProductID    string
	Name         string
	Unit         Unit
	Quantity     int
	Grams        int
	VariantLabel string
	UnitPrice    decimal.Decimal
	// LineTotal is computed by the store and never recomputed locally.
	LineTotal decimal.Decimal
	// Gift marks a zero-price line injected by an auto rule.
	Gift bool
}

// CouponState describes both the manual and the auto-applied discount.
type CouponState struct {
	Code         string
	Discount     decimal.Decimal
	AutoCode     string
	AutoDiscount decimal.Decimal
	// Rejection is set when the applied Code no longer qualifies.
	Rejection Reason
}

// Snapshot is the complete, store-authoritative view of a cart.
type Snapshot struct {
	Items         []Item
	GiftItems     []Item
	Coupon        CouponState
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	GrandTotal    decimal.Decimal
	ItemCount     int
}

// Item returns the purchasable line with the given id.
func (s Snapshot) Item(id string) (Item, bool) {
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// IsGift reports whether id refers to an injected gift line.
func (s Snapshot) IsGift(id string) bool {
	for _, it := range s.GiftItems {
		if it.ID == id {
			return true
		}
	}
	return false
}

// Empty reports whether the snapshot holds no purchasable lines.
func (s Snapshot) Empty() bool {
	return len(s.Items) == 0
}

// Equal reports whether two snapshots describe the same cart.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.ItemCount != o.ItemCount ||
		!s.Subtotal.Equal(o.Subtotal) ||
		!s.DiscountTotal.Equal(o.DiscountTotal) ||
		!s.GrandTotal.Equal(o.GrandTotal) ||
		!s.Coupon.equal(o.Coupon) {
		return false
	}
	return itemsEqual(s.Items, o.Items) && itemsEqual(s.GiftItems, o.GiftItems)
}

func (c CouponState) equal(o CouponState) bool {
	return c.Code == o.Code &&
		c.AutoCode == o.AutoCode &&
		c.Rejection == o.Rejection &&
		c.Discount.Equal(o.Discount) &&
		c.AutoDiscount.Equal(o.AutoDiscount)
}

func itemsEqual(a, b []Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.ProductID != y.ProductID || x.Name != y.Name ||
			x.Unit != y.Unit || x.Quantity != y.Quantity || x.Grams != y.Grams ||
			x.VariantLabel != y.VariantLabel || x.Gift != y.Gift ||
			!x.UnitPrice.Equal(y.UnitPrice) || !x.LineTotal.Equal(y.LineTotal) {
			return false
		}
	}
	return true
}

// AddItemRequest asks the store to add or increment a line.
type AddItemRequest struct {
	ProductID string
	Quantity  int
	Selection Selection
}

// UpdateQuantityRequest sets the quantity of an existing line.
type UpdateQuantityRequest struct {
	Quantity int
}

// ApplyCouponRequest carries a manually entered coupon code.
type ApplyCouponRequest struct {
	Code string
}

// ErrorBody is the JSON payload of every non-2xx store response.
type ErrorBody struct {
	Code    int
	Message string
	Reason  Reason
}

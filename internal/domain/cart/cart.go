package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bakery-cart/internal/domain/product"
)

// Sentinel errors for cart mutations.
var (
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	ErrEmptyProductID  = errors.New("product id required")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// LineNotFoundError indicates a cart line id that is not in the cart.
type LineNotFoundError struct {
	LineID string
}

func (e *LineNotFoundError) Error() string {
	return fmt.Sprintf("cart item %s not found", e.LineID)
}

// Line is a stored cart line. Prices are not stored; they are resolved from
// the catalog every time a snapshot is built.
type Line struct {
	ID        string
	ProductID string
	Selection product.Selection
	Quantity  int
}

// Cart is the persisted cart of one user.
type Cart struct {
	UserID     string
	Lines      []Line
	CouponCode string
	UpdatedAt  time.Time
}

func (c *Cart) lineIndex(id string) int {
	for i, l := range c.Lines {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (c *Cart) matchingLine(productID string, sel product.Selection) int {
	for i, l := range c.Lines {
		if l.ProductID == productID && l.Selection == sel {
			return i
		}
	}
	return -1
}

// Repository defines persistence operations for carts.
type Repository interface {
	// Get returns the user's cart, or an empty cart when none is stored.
	Get(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
}

// SnapshotLine is a priced cart line.
type SnapshotLine struct {
	ID        string
	ProductID string
	Name      string
	Unit      product.Unit
	Selection product.Selection
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	Gift      bool
}

// Snapshot is the authoritative priced view of a cart.
type Snapshot struct {
	Lines           []SnapshotLine
	Gifts           []SnapshotLine
	CouponCode      string
	CouponDiscount  decimal.Decimal
	CouponRejection string
	AutoCode        string
	AutoDiscount    decimal.Decimal
	Subtotal        decimal.Decimal
	DiscountTotal   decimal.Decimal
	GrandTotal      decimal.Decimal
	ItemCount       int
}

// AddItemRequest holds the input for adding a product to the cart.
type AddItemRequest struct {
	ProductID string
	Quantity  int
	Selection product.Selection
}

package product

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Quantity rule violations.
var (
	ErrQuantityBelowMinimum = errors.New("quantity below minimum")
	ErrQuantityStep         = errors.New("quantity is not a multiple of the step")
	ErrInvalidSelection     = errors.New("invalid unit selection")
)

// Unit is the way a product is sold.
type Unit string

const (
	// UnitWeight products are priced per kilogram and sold in fixed packs.
	UnitWeight Unit = "weight"
	// UnitPiece products are priced per piece.
	UnitPiece Unit = "piece"
	// UnitVariant products are sold as one of several named variants.
	UnitVariant Unit = "variant"
)

var thousand = decimal.NewFromInt(1000)

// Product is a catalog item.
type Product struct {
	ID       string
	Name     string
	Category string
	Unit     Unit
	// Price is per piece for UnitPiece, per kilogram for UnitWeight and
	// unused for UnitVariant.
	Price         decimal.Decimal
	Variants      []Variant
	WeightOptions []int
	MinQuantity   int
	Step          int
}

// Variant is a named, separately priced option of a product.
type Variant struct {
	Label string          `json:"label"`
	Price decimal.Decimal `json:"price"`
}

// Selection identifies the pack or variant chosen for a line.
type Selection struct {
	Grams        int
	VariantLabel string
}

// UnitPrice returns the price of one unit of the given selection.
func (p *Product) UnitPrice(sel Selection) (decimal.Decimal, error) {
	switch p.Unit {
	case UnitPiece:
		return p.Price, nil
	case UnitWeight:
		if !slices.Contains(p.WeightOptions, sel.Grams) {
			return decimal.Zero, errors.Wrapf(ErrInvalidSelection, "%d g is not offered for %s", sel.Grams, p.ID)
		}
		return p.Price.Mul(decimal.NewFromInt(int64(sel.Grams))).Div(thousand).Round(2), nil
	case UnitVariant:
		for _, v := range p.Variants {
			if v.Label == sel.VariantLabel {
				return v.Price, nil
			}
		}
		return decimal.Zero, errors.Wrapf(ErrInvalidSelection, "variant %q is not offered for %s", sel.VariantLabel, p.ID)
	default:
		return decimal.Zero, errors.Errorf("unsupported unit %q", p.Unit)
	}
}

// LineTotal returns the price of quantity units of the given selection.
func (p *Product) LineTotal(sel Selection, quantity int) (decimal.Decimal, error) {
	unit, err := p.UnitPrice(sel)
	if err != nil {
		return decimal.Zero, err
	}
	return unit.Mul(decimal.NewFromInt(int64(quantity))).Round(2), nil
}

// CheckQuantity validates quantity against the product's minimum and step.
func (p *Product) CheckQuantity(quantity int) error {
	minQty := max(p.MinQuantity, 1)
	if quantity < minQty {
		return &QuantityError{ProductID: p.ID, Quantity: quantity, Err: ErrQuantityBelowMinimum, Min: minQty}
	}
	if p.Step > 1 && (quantity-minQty)%p.Step != 0 {
		return &QuantityError{ProductID: p.ID, Quantity: quantity, Err: ErrQuantityStep, Step: p.Step}
	}
	return nil
}

// NormalizeSelection drops descriptors that do not apply to the product's unit.
func (p *Product) NormalizeSelection(sel Selection) Selection {
	switch p.Unit {
	case UnitWeight:
		return Selection{Grams: sel.Grams}
	case UnitVariant:
		return Selection{VariantLabel: sel.VariantLabel}
	default:
		return Selection{}
	}
}

// QuantityError reports a quantity that violates the product's rules.
type QuantityError struct {
	ProductID string
	Quantity  int
	Min       int
	Step      int
	Err       error
}

func (e *QuantityError) Error() string {
	if errors.Is(e.Err, ErrQuantityStep) {
		return fmt.Sprintf("quantity %d for product %s must change in steps of %d", e.Quantity, e.ProductID, e.Step)
	}
	return fmt.Sprintf("quantity %d for product %s is below the minimum of %d", e.Quantity, e.ProductID, e.Min)
}

func (e *QuantityError) Unwrap() error {
	return e.Err
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

package cartapi

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Variant is a named, separately priced option of a product.
type Variant struct {
	Label string
	Price decimal.Decimal
}

// Product is a catalog entry as listed by the store.
type Product struct {
	ID            string
	Name          string
	Category      string
	Unit          Unit
	Price         decimal.Decimal
	Variants      []Variant
	WeightOptions []int
	MinQuantity   int
	Step          int
}

// Products is the catalog listing payload.
type Products []Product

// Encode writes the product as JSON.
func (p Product) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("unit")
	e.Str(string(p.Unit))
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	if len(p.Variants) > 0 {
		e.FieldStart("variants")
		e.ArrStart()
		for _, v := range p.Variants {
			e.ObjStart()
			e.FieldStart("label")
			e.Str(v.Label)
			e.FieldStart("price")
			encodeMoney(e, v.Price)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	if len(p.WeightOptions) > 0 {
		e.FieldStart("weightOptions")
		e.ArrStart()
		for _, g := range p.WeightOptions {
			e.Int(g)
		}
		e.ArrEnd()
	}
	e.FieldStart("minQuantity")
	e.Int(p.MinQuantity)
	e.FieldStart("step")
	e.Int(p.Step)
	e.ObjEnd()
}

// Decode reads the product from JSON, ignoring unknown fields.
func (p *Product) Decode(d *jx.Decoder) error {
	*p = Product{}
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "category":
			p.Category, err = decodeOptString(d)
		case "unit":
			var u string
			u, err = d.Str()
			p.Unit = Unit(u)
		case "price":
			p.Price, err = decodeMoney(d)
		case "variants":
			err = d.Arr(func(d *jx.Decoder) error {
				var v Variant
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "label":
						v.Label, err = d.Str()
					case "price":
						v.Price, err = decodeMoney(d)
					default:
						return d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				p.Variants = append(p.Variants, v)
				return nil
			})
		case "weightOptions":
			err = d.Arr(func(d *jx.Decoder) error {
				g, err := d.Int()
				if err != nil {
					return err
				}
				p.WeightOptions = append(p.WeightOptions, g)
				return nil
			})
		case "minQuantity":
			p.MinQuantity, err = d.Int()
		case "step":
			p.Step, err = d.Int()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode product field %q", key)
		}
		return nil
	})
}

// Encode writes the listing as a JSON array.
func (ps Products) Encode(e *jx.Encoder) {
	e.ArrStart()
	for _, p := range ps {
		p.Encode(e)
	}
	e.ArrEnd()
}

// Decode reads a JSON array of products.
func (ps *Products) Decode(d *jx.Decoder) error {
	*ps = Products{}
	err := d.Arr(func(d *jx.Decoder) error {
		var p Product
		if err := p.Decode(d); err != nil {
			return err
		}
		*ps = append(*ps, p)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "decode products")
	}
	return nil
}

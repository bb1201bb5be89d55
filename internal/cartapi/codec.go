package cartapi

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Money is encoded as a decimal string with two fraction digits. Decoding also
// accepts JSON numbers and null (zero).

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}

func decodeMoney(d *jx.Decoder) (decimal.Decimal, error) {
	switch tt := d.Next(); tt {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		return decimal.Zero, errors.Errorf("unexpected money type %s", tt)
	}
}

func decodeOptString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// Encode writes the snapshot as JSON.
func (s Snapshot) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("items")
	encodeItems(e, s.Items)
	e.FieldStart("giftItems")
	encodeItems(e, s.GiftItems)
	e.FieldStart("coupon")
	s.Coupon.Encode(e)
	e.FieldStart("subtotal")
	encodeMoney(e, s.Subtotal)
	e.FieldStart("discountTotal")
	encodeMoney(e, s.DiscountTotal)
	e.FieldStart("grandTotal")
	encodeMoney(e, s.GrandTotal)
	e.FieldStart("itemCount")
	e.Int(s.ItemCount)
	e.ObjEnd()
}

// Decode reads the snapshot from JSON, ignoring unknown fields.
func (s *Snapshot) Decode(d *jx.Decoder) error {
	*s = Snapshot{}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items":
			s.Items, err = decodeItems(d)
		case "giftItems":
			s.GiftItems, err = decodeItems(d)
		case "coupon":
			err = s.Coupon.Decode(d)
		case "subtotal":
			s.Subtotal, err = decodeMoney(d)
		case "discountTotal":
			s.DiscountTotal, err = decodeMoney(d)
		case "grandTotal":
			s.GrandTotal, err = decodeMoney(d)
		case "itemCount":
			s.ItemCount, err = d.Int()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode field %q", key)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "decode snapshot")
	}
	for i := range s.GiftItems {
		s.GiftItems[i].Gift = true
	}
	return nil
}

func encodeItems(e *jx.Encoder, items []Item) {
	e.ArrStart()
	for _, it := range items {
		it.Encode(e)
	}
	e.ArrEnd()
}

func decodeItems(d *jx.Decoder) ([]Item, error) {
	items := []Item{}
	if d.Next() == jx.Null {
		return items, d.Null()
	}
	err := d.Arr(func(d *jx.Decoder) error {
		var it Item
		if err := it.Decode(d); err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	return items, err
}

// Encode writes the line as JSON. Unit-specific descriptors are omitted when
// they do not apply.
func (it Item) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(it.ID)
	e.FieldStart("productId")
	e.Str(it.ProductID)
	e.FieldStart("name")
	e.Str(it.Name)
	e.FieldStart("unit")
	e.Str(string(it.Unit))
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	if it.Unit == UnitWeight {
		e.FieldStart("grams")
		e.Int(it.Grams)
	}
	if it.Unit == UnitVariant {
		e.FieldStart("variantLabel")
		e.Str(it.VariantLabel)
	}
	e.FieldStart("unitPrice")
	encodeMoney(e, it.UnitPrice)
	e.FieldStart("lineTotal")
	encodeMoney(e, it.LineTotal)
	if it.Gift {
		e.FieldStart("gift")
		e.Bool(true)
	}
	e.ObjEnd()
}

// Decode reads a line from JSON.
func (it *Item) Decode(d *jx.Decoder) error {
	*it = Item{}
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			it.ID, err = d.Str()
		case "productId":
			it.ProductID, err = d.Str()
		case "name":
			it.Name, err = decodeOptString(d)
		case "unit":
			var u string
			u, err = d.Str()
			it.Unit = Unit(u)
		case "quantity":
			it.Quantity, err = d.Int()
		case "grams":
			it.Grams, err = d.Int()
		case "variantLabel":
			it.VariantLabel, err = decodeOptString(d)
		case "unitPrice":
			it.UnitPrice, err = decodeMoney(d)
		case "lineTotal":
			it.LineTotal, err = decodeMoney(d)
		case "gift":
			it.Gift, err = d.Bool()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode item field %q", key)
		}
		return nil
	})
}

// Encode writes the coupon state as JSON. Empty codes are encoded as null.
func (c CouponState) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("code")
	if c.Code == "" {
		e.Null()
	} else {
		e.Str(c.Code)
	}
	e.FieldStart("discount")
	encodeMoney(e, c.Discount)
	e.FieldStart("autoCode")
	if c.AutoCode == "" {
		e.Null()
	} else {
		e.Str(c.AutoCode)
	}
	e.FieldStart("autoDiscount")
	encodeMoney(e, c.AutoDiscount)
	if c.Rejection != "" {
		e.FieldStart("rejection")
		e.Str(string(c.Rejection))
	}
	e.ObjEnd()
}

// Decode reads the coupon state from JSON.
func (c *CouponState) Decode(d *jx.Decoder) error {
	*c = CouponState{}
	if d.Next() == jx.Null {
		return d.Null()
	}
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			c.Code, err = decodeOptString(d)
		case "discount":
			c.Discount, err = decodeMoney(d)
		case "autoCode":
			c.AutoCode, err = decodeOptString(d)
		case "autoDiscount":
			c.AutoDiscount, err = decodeMoney(d)
		case "rejection":
			var r string
			r, err = decodeOptString(d)
			c.Rejection = Reason(r)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode coupon field %q", key)
		}
		return nil
	})
}

// Encode writes the request as JSON.
func (r AddItemRequest) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(r.ProductID)
	e.FieldStart("quantity")
	e.Int(r.Quantity)
	if r.Selection.Grams != 0 {
		e.FieldStart("grams")
		e.Int(r.Selection.Grams)
	}
	if r.Selection.VariantLabel != "" {
		e.FieldStart("variantLabel")
		e.Str(r.Selection.VariantLabel)
	}
	e.ObjEnd()
}

// Decode reads the request from JSON.
func (r *AddItemRequest) Decode(d *jx.Decoder) error {
	*r = AddItemRequest{}
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			r.ProductID, err = d.Str()
		case "quantity":
			r.Quantity, err = d.Int()
		case "grams":
			r.Selection.Grams, err = d.Int()
		case "variantLabel":
			r.Selection.VariantLabel, err = decodeOptString(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode field %q", key)
		}
		return nil
	})
}

// Encode writes the request as JSON.
func (r UpdateQuantityRequest) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("quantity")
	e.Int(r.Quantity)
	e.ObjEnd()
}

// Decode reads the request from JSON.
func (r *UpdateQuantityRequest) Decode(d *jx.Decoder) error {
	*r = UpdateQuantityRequest{}
	return d.Obj(func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		q, err := d.Int()
		r.Quantity = q
		if err != nil {
			return errors.Wrap(err, "decode quantity")
		}
		return nil
	})
}

// Encode writes the request as JSON.
func (r ApplyCouponRequest) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(r.Code)
	e.ObjEnd()
}

// Decode reads the request from JSON.
func (r *ApplyCouponRequest) Decode(d *jx.Decoder) error {
	*r = ApplyCouponRequest{}
	return d.Obj(func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		code, err := decodeOptString(d)
		r.Code = code
		if err != nil {
			return errors.Wrap(err, "decode code")
		}
		return nil
	})
}

// Encode writes the error payload as JSON.
func (b ErrorBody) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("code")
	e.Int(b.Code)
	e.FieldStart("message")
	e.Str(b.Message)
	if b.Reason != "" {
		e.FieldStart("reason")
		e.Str(string(b.Reason))
	}
	e.ObjEnd()
}

// Decode reads the error payload from JSON.
func (b *ErrorBody) Decode(d *jx.Decoder) error {
	*b = ErrorBody{}
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			b.Code, err = d.Int()
		case "message", "error":
			b.Message, err = decodeOptString(d)
		case "reason":
			var r string
			r, err = decodeOptString(d)
			b.Reason = Reason(r)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode error field %q", key)
		}
		return nil
	})
}

// Encoder is implemented by every wire type.
type Encoder interface {
	Encode(e *jx.Encoder)
}

// Decoder is implemented by pointers to every wire type.
type Decoder interface {
	Decode(d *jx.Decoder) error
}

// Marshal encodes v into a fresh byte slice.
func Marshal(v Encoder) []byte {
	var e jx.Encoder
	v.Encode(&e)
	return e.Bytes()
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v Decoder) error {
	return v.Decode(jx.DecodeBytes(data))
}

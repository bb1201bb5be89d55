package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/bakery-cart/internal/auth"
	"github.com/xenking/bakery-cart/internal/cartapi"
	"github.com/xenking/bakery-cart/internal/domain/cart"
	"github.com/xenking/bakery-cart/internal/domain/product"
)

// GetCart returns the priced cart of the authenticated user.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFromContext(r.Context())
	snap, err := h.carts.Snapshot(r.Context(), userID)
	h.respond(w, r, snap, err)
}

// AddItem adds a product selection to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req cartapi.AddItemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	userID, _ := auth.UserFromContext(r.Context())
	snap, err := h.carts.AddItem(r.Context(), userID, cart.AddItemRequest{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Selection: product.Selection{
			Grams:        req.Selection.Grams,
			VariantLabel: req.Selection.VariantLabel,
		},
	})
	h.respond(w, r, snap, err)
}

// UpdateItem sets the quantity of a line. Zero removes it.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req cartapi.UpdateQuantityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	userID, _ := auth.UserFromContext(r.Context())
	snap, err := h.carts.UpdateQuantity(r.Context(), userID, r.PathValue("id"), req.Quantity)
	h.respond(w, r, snap, err)
}

// RemoveItem deletes a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFromContext(r.Context())
	snap, err := h.carts.RemoveItem(r.Context(), userID, r.PathValue("id"))
	h.respond(w, r, snap, err)
}

// ApplyCoupon validates and records a manual coupon code.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req cartapi.ApplyCouponRequest
	if !decodeBody(w, r, &req) {
		return
	}

	userID, _ := auth.UserFromContext(r.Context())
	snap, err := h.carts.ApplyCoupon(r.Context(), userID, req.Code)
	h.respond(w, r, snap, err)
}

// RemoveCoupon clears the manual coupon.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFromContext(r.Context())
	snap, err := h.carts.RemoveCoupon(r.Context(), userID)
	h.respond(w, r, snap, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, snap *cart.Snapshot, err error) {
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPISnapshot(snap))
}

// decodeBody reads a JSON payload into v, writing 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v cartapi.Decoder) bool {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err == nil && len(data) == 0 {
		err = errors.New("empty body")
	}
	if err == nil {
		err = cartapi.Unmarshal(data, v)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, cartapi.ErrorBody{
			Message: "malformed request body",
			Reason:  cartapi.ReasonBadRequest,
		})
		return false
	}
	return true
}

func toAPISnapshot(s *cart.Snapshot) cartapi.Snapshot {
	out := cartapi.Snapshot{
		Items:     make([]cartapi.Item, 0, len(s.Lines)),
		GiftItems: make([]cartapi.Item, 0, len(s.Gifts)),
		Coupon: cartapi.CouponState{
			Code:         s.CouponCode,
			Discount:     s.CouponDiscount,
			AutoCode:     s.AutoCode,
			AutoDiscount: s.AutoDiscount,
			Rejection:    cartapi.Reason(s.CouponRejection),
		},
		Subtotal:      s.Subtotal,
		DiscountTotal: s.DiscountTotal,
		GrandTotal:    s.GrandTotal,
		ItemCount:     s.ItemCount,
	}
	for _, l := range s.Lines {
		out.Items = append(out.Items, toAPIItem(l))
	}
	for _, l := range s.Gifts {
		out.GiftItems = append(out.GiftItems, toAPIItem(l))
	}
	return out
}

func toAPIItem(l cart.SnapshotLine) cartapi.Item {
	return cartapi.Item{
		ID:           l.ID,
		ProductID:    l.ProductID,
		Name:         l.Name,
		Unit:         cartapi.Unit(l.Unit),
		Quantity:     l.Quantity,
		Grams:        l.Selection.Grams,
		VariantLabel: l.Selection.VariantLabel,
		UnitPrice:    l.UnitPrice,
		LineTotal:    l.LineTotal,
		Gift:         l.Gift,
	}
}

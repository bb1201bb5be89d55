package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/bakery-cart/internal/cartapi"
	"github.com/xenking/bakery-cart/internal/domain/product"
)

// ListProducts returns the full catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		fail(w, r, errors.Wrap(err, "list products"))
		return
	}

	out := make(cartapi.Products, len(products))
	for i, p := range products {
		out[i] = toAPIProduct(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetProduct returns a single product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusNotFound, cartapi.ErrorBody{
				Message: "product " + id + " not found",
				Reason:  cartapi.ReasonNotFound,
			})
			return
		}
		fail(w, r, errors.Wrap(err, "get product"))
		return
	}
	writeJSON(w, http.StatusOK, toAPIProduct(*p))
}

func toAPIProduct(p product.Product) cartapi.Product {
	variants := make([]cartapi.Variant, len(p.Variants))
	for i, v := range p.Variants {
		variants[i] = cartapi.Variant{Label: v.Label, Price: v.Price}
	}
	return cartapi.Product{
		ID:            p.ID,
		Name:          p.Name,
		Category:      p.Category,
		Unit:          cartapi.Unit(p.Unit),
		Price:         p.Price,
		Variants:      variants,
		WeightOptions: p.WeightOptions,
		MinQuantity:   p.MinQuantity,
		Step:          p.Step,
	}
}

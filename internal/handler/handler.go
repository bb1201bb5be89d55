// Package handler implements the cart store HTTP API.
package handler

import (
	"net/http"

	"github.com/xenking/bakery-cart/internal/auth"
	"github.com/xenking/bakery-cart/internal/cartapi"
	"github.com/xenking/bakery-cart/internal/domain/cart"
	"github.com/xenking/bakery-cart/internal/domain/product"
)

// maxBodyBytes bounds request payloads.
const maxBodyBytes = 64 << 10

// Handler serves the catalog and cart routes, delegating business logic to
// the cart service and product repository.
type Handler struct {
	products product.Repository
	carts    *cart.Service
	verifier *auth.Verifier
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	carts *cart.Service,
	verifier *auth.Verifier,
) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
		verifier: verifier,
	}
}

// Register mounts all API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+cartapi.PathProducts, h.ListProducts)
	mux.HandleFunc("GET "+cartapi.PathProducts+"/{id}", h.GetProduct)

	mux.Handle("GET "+cartapi.PathCart, h.Authenticated(h.GetCart))
	mux.Handle("POST "+cartapi.PathCartItems, h.Authenticated(h.AddItem))
	mux.Handle("PUT "+cartapi.PathCartItems+"/{id}", h.Authenticated(h.UpdateItem))
	mux.Handle("DELETE "+cartapi.PathCartItems+"/{id}", h.Authenticated(h.RemoveItem))
	mux.Handle("POST "+cartapi.PathCartCoupon, h.Authenticated(h.ApplyCoupon))
	mux.Handle("DELETE "+cartapi.PathCartCoupon, h.Authenticated(h.RemoveCoupon))
}

// Routes returns the route patterns served by Register, used to label
// request logs and metrics.
func Routes() []string {
	return []string{
		cartapi.PathProducts,
		cartapi.PathProducts + "/{id}",
		cartapi.PathCart,
		cartapi.PathCartItems,
		cartapi.PathCartItems + "/{id}",
		cartapi.PathCartCoupon,
	}
}

package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/bakery-cart/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository stores carts keyed by user id.
type CartRepository struct {
	mu    sync.RWMutex
	carts map[string]cart.Cart
}

// NewCartRepository returns an empty CartRepository.
func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[string]cart.Cart)}
}

// Get returns a copy of the user's cart, or an empty cart.
func (r *CartRepository) Get(_ context.Context, userID string) (*cart.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.carts[userID]
	if !ok {
		return &cart.Cart{UserID: userID}, nil
	}
	c.Lines = slices.Clone(c.Lines)
	return &c, nil
}

// Save replaces the stored cart.
func (r *CartRepository) Save(_ context.Context, c *cart.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *c
	stored.Lines = slices.Clone(c.Lines)
	r.carts[c.UserID] = stored
	return nil
}

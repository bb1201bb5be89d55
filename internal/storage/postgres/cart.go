package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bakery-cart/internal/domain/cart"
)

const (
	getCartSQL = `SELECT coupon_code, updated_at FROM carts WHERE user_id = $1`

	getCartLinesSQL = `SELECT id, product_id, grams, variant_label, quantity
		FROM cart_lines WHERE user_id = $1 ORDER BY position`

	upsertCartSQL = `INSERT INTO carts (user_id, coupon_code, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET coupon_code = EXCLUDED.coupon_code, updated_at = EXCLUDED.updated_at`

	deleteCartLinesSQL = `DELETE FROM cart_lines WHERE user_id = $1`

	insertCartLineSQL = `INSERT INTO cart_lines (id, user_id, position, product_id, grams, variant_label, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the user's cart, or an empty cart when none is stored.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	c := &cart.Cart{UserID: userID}

	err := r.pool.QueryRow(ctx, getCartSQL, userID).Scan(&c.CouponCode, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, nil
		}
		return nil, errors.Wrapf(err, "get cart of %q", userID)
	}

	rows, err := r.pool.Query(ctx, getCartLinesSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "get cart lines of %q", userID)
	}
	lines, err := pgx.CollectRows(rows, scanCartLine)
	if err != nil {
		return nil, errors.Wrapf(err, "scan cart lines of %q", userID)
	}
	c.Lines = lines
	return c, nil
}

// Save replaces the stored cart and its lines in one transaction.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(upsertCartSQL, c.UserID, c.CouponCode, c.UpdatedAt)
		batch.Queue(deleteCartLinesSQL, c.UserID)
		for i, l := range c.Lines {
			batch.Queue(insertCartLineSQL,
				l.ID, c.UserID, i, l.ProductID, l.Selection.Grams, l.Selection.VariantLabel, l.Quantity,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return errors.Wrapf(err, "save cart of %q", c.UserID)
	}
	return nil
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var l cart.Line
	err := row.Scan(&l.ID, &l.ProductID, &l.Selection.Grams, &l.Selection.VariantLabel, &l.Quantity)
	return l, err
}

package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/bakery-cart/internal/domain/cart"
	"github.com/xenking/bakery-cart/internal/domain/coupon"
	"github.com/xenking/bakery-cart/internal/domain/product"
	"github.com/xenking/bakery-cart/internal/storage/memory"
	"github.com/xenking/bakery-cart/internal/storage/postgres"
	"github.com/xenking/bakery-cart/internal/storage/seed"
	"github.com/xenking/bakery-cart/pkg/health"
)

// couponStore serves both manual coupon lookups and auto rules.
type couponStore interface {
	coupon.Repository
	coupon.AutoRuleSource
}

// stores are the repositories backing the cart service.
type stores struct {
	products product.Repository
	coupons  couponStore
	carts    cart.Repository
	// ping checks the database, nil for the in-memory store.
	ping  health.CheckFunc
	close func()
}

// openStores connects to PostgreSQL when a database URL is configured and
// falls back to a seeded in-memory store otherwise.
func openStores(ctx context.Context, lg *zap.Logger, cfg *Config) (*stores, error) {
	if cfg.DatabaseURL == "" {
		lg.Warn("No database configured, using in-memory store")
		mem := memory.NewStore()
		if err := loadSeed(ctx, lg, mem); err != nil {
			return nil, err
		}
		return &stores{
			products: mem.Products,
			coupons:  mem.Coupons,
			carts:    mem.Carts,
			close:    func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	pg := postgres.NewStore(pool)
	if cfg.Seed {
		if err := loadSeed(ctx, lg, pg); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return &stores{
		products: pg.ProductRepository,
		coupons:  pg.CouponRepository,
		carts:    pg.Carts,
		ping:     health.PingCheck(pool),
		close:    pool.Close,
	}, nil
}

func loadSeed(ctx context.Context, lg *zap.Logger, w seed.Writer) error {
	data, err := seed.Default()
	if err != nil {
		return errors.Wrap(err, "decode seed")
	}
	if err := seed.Load(ctx, w, data); err != nil {
		return errors.Wrap(err, "load seed")
	}
	lg.Info("Catalog seeded",
		zap.Int("products", len(data.Products)),
		zap.Int("coupons", len(data.Coupons)),
		zap.Int("auto_rules", len(data.AutoRules)),
	)
	return nil
}

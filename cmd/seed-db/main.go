// Command seed-db loads a catalog seed file into PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/bakery-cart/internal/storage/postgres"
	"github.com/xenking/bakery-cart/internal/storage/seed"
)

type config struct {
	DatabaseURL string `env:"DATABASE_URL" usage:"PostgreSQL connection URL" flag:"database-url"`
	File        string `usage:"Seed JSON file; the embedded bakery catalog when empty" flag:"file"`
}

func main() {
	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	var cfg config
	if err := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BAKERY",
		SkipFiles: true,
	}).Load(); err != nil {
		lg.Fatal("Load config", zap.Error(err))
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, cfg); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, cfg config) error {
	data, err := readSeed(cfg.File)
	if err != nil {
		return err
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seed.Load(ctx, postgres.NewStore(pool), data); err != nil {
		return errors.Wrap(err, "load seed")
	}
	lg.Info("Upserted seed",
		zap.Int("products", len(data.Products)),
		zap.Int("coupons", len(data.Coupons)),
		zap.Int("auto_rules", len(data.AutoRules)),
	)
	return nil
}

func readSeed(path string) (*seed.Data, error) {
	if path == "" {
		return seed.Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}
	return seed.Parse(raw)
}

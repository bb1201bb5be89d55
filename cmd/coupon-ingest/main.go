// Command coupon-ingest imports partner promo codes. Each partner ships a
// gzipped file of candidate codes; a code is genuine when it appears in at
// least two files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/bakery-cart/internal/storage/postgres"
)

type config struct {
	DataDir       string  `default:"data" usage:"Directory containing promoN.gz files" flag:"data-dir"`
	Files         int     `default:"3" usage:"Number of partner files" flag:"files"`
	DatabaseURL   string  `env:"DATABASE_URL" usage:"PostgreSQL connection URL" flag:"database-url"`
	BloomCapacity uint    `default:"120000000" usage:"Expected codes per file" flag:"bloom-capacity"`
	BloomFPR      float64 `default:"0.001" usage:"Bloom filter false positive rate" flag:"bloom-fpr"`
}

func main() {
	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	var cfg config
	if err := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BAKERY_INGEST",
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
		lg.Fatal("Coupon ingest failed", zap.Error(err))
	}
	lg.Info("Coupon ingest completed")
}

func run(ctx context.Context, lg *zap.Logger, cfg config) error {
	files := make([]string, cfg.Files)
	for i := range cfg.Files {
		files[i] = filepath.Join(cfg.DataDir, fmt.Sprintf("promo%d.gz", i+1))
		if _, err := os.Stat(files[i]); err != nil {
			return errors.Wrapf(err, "check file %s", files[i])
		}
	}

	ing := &ingester{
		lg:       lg,
		capacity: cfg.BloomCapacity,
		fpr:      cfg.BloomFPR,
	}
	codes, err := ing.validCodes(ctx, files)
	if err != nil {
		return err
	}
	lg.Info("Valid codes found", zap.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return writeCoupons(ctx, lg, postgres.NewCouponRepository(pool), codes)
}

// Command cart-cli drives a cart session against a running cart store.
//
//	cart-cli [flags] show|products|add|set|remove|coupon|uncoupon|shell
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/bakery-cart/internal/auth"
	"github.com/xenking/bakery-cart/internal/cartclient"
	"github.com/xenking/bakery-cart/internal/engine"
)

type config struct {
	BaseURL   string        `default:"http://localhost:8080" usage:"Cart store base URL" flag:"url" env:"URL"`
	JWTSecret string        `usage:"Secret used to sign session tokens" flag:"jwt-secret" env:"JWT_SECRET"`
	UserID    string        `default:"guest" usage:"Cart owner" flag:"user" env:"USER_ID"`
	TokenTTL  time.Duration `default:"1h" usage:"Session token lifetime" flag:"token-ttl" env:"TOKEN_TTL"`
	Timeout   time.Duration `default:"10s" usage:"Per-request timeout" flag:"timeout" env:"TIMEOUT"`
	Verbose   bool          `usage:"Log store calls to stderr" flag:"verbose" env:"VERBOSE"`
}

// loadConfig parses flags from args and returns the remaining positional
// arguments.
func loadConfig(args []string) (config, []string, error) {
	var cfg config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BAKERY_CLI",
		SkipFiles: true,
		Args:      args,
	})
	if err := loader.Load(); err != nil {
		return cfg, nil, errors.Wrap(err, "load config")
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if cfg.JWTSecret == "" {
		return cfg, nil, errors.New("jwt secret is required: set --jwt-secret or JWT_SECRET")
	}
	if cfg.UserID == "" {
		return cfg, nil, errors.New("user id is required")
	}
	return cfg, loader.Flags().Args(), nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	return cfg.Build()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, args, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}
	lg, err := newLogger(cfg.Verbose)
	if err != nil {
		return errors.Wrap(err, "create logger")
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	issuer := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL)
	tokens := cartclient.NewRefreshingTokenSource("", time.Minute, func(context.Context) (string, error) {
		return issuer.Issue(cfg.UserID)
	})
	client := cartclient.New(cfg.BaseURL, tokens,
		cartclient.WithTimeout(cfg.Timeout),
		cartclient.WithLogger(lg.Named("client")),
	)
	eng, err := engine.New(client, engine.WithLogger(lg.Named("engine")))
	if err != nil {
		return errors.Wrap(err, "create engine")
	}

	c := &cli{eng: eng, catalog: client, out: os.Stdout}
	if len(args) > 0 && args[0] == "shell" {
		return c.shell(ctx, os.Stdin)
	}
	return c.run(ctx, args)
}

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/bakery-cart/internal/cartapi"
	"github.com/xenking/bakery-cart/internal/engine"
)

const usage = `commands:
  show                              print the cart
  products                          list the catalog
  add <product> [qty] [grams=N] [variant=LABEL]
  set <item> <qty>                  set a line quantity (0 removes)
  remove <item>                     remove a line
  coupon <code>                     apply a coupon
  uncoupon                          remove the coupon
  shell                             interactive session`

// errUsage marks malformed command lines.
var errUsage = errors.New("invalid usage")

type catalog interface {
	ListProducts(ctx context.Context) (cartapi.Products, error)
}

type cli struct {
	eng     *engine.Engine
	catalog catalog
	out     io.Writer
}

// run executes one command and prints the resulting cart.
func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"show"}
	}
	cmd, rest := args[0], args[1:]

	var (
		snap cartapi.Snapshot
		err  error
	)
	switch cmd {
	case "show":
		snap, err = c.eng.Load(ctx)
	case "products":
		products, err := c.catalog.ListProducts(ctx)
		if err != nil {
			return err
		}
		return renderProducts(c.out, products)
	case "add":
		var (
			productID string
			qty       int
			sel       cartapi.Selection
		)
		productID, qty, sel, err = parseAdd(rest)
		if err != nil {
			return err
		}
		snap, err = c.eng.AddItem(ctx, productID, qty, sel)
	case "set":
		if len(rest) != 2 {
			return errors.Wrap(errUsage, "set <item> <qty>")
		}
		qty, perr := strconv.Atoi(rest[1])
		if perr != nil {
			return errors.Wrapf(errUsage, "quantity %q", rest[1])
		}
		snap, err = c.eng.UpdateQuantity(ctx, rest[0], qty)
	case "remove", "rm":
		if len(rest) != 1 {
			return errors.Wrap(errUsage, "remove <item>")
		}
		snap, err = c.eng.RemoveItem(ctx, rest[0])
	case "coupon":
		snap, err = c.eng.ApplyCoupon(ctx, strings.Join(rest, " "))
	case "uncoupon":
		snap, err = c.eng.RemoveCoupon(ctx)
	case "help":
		_, err := fmt.Fprintln(c.out, usage)
		return err
	default:
		return errors.Wrapf(errUsage, "unknown command %q", cmd)
	}
	if err != nil {
		return err
	}
	return renderCart(c.out, snap)
}

// parseAdd reads "<product> [qty] [grams=N] [variant=LABEL]".
func parseAdd(args []string) (productID string, qty int, sel cartapi.Selection, err error) {
	if len(args) == 0 {
		return "", 0, sel, errors.Wrap(errUsage, "add <product> [qty] [grams=N] [variant=LABEL]")
	}
	productID, qty = args[0], 1
	for _, arg := range args[1:] {
		key, value, ok := strings.Cut(arg, "=")
		switch {
		case !ok:
			if qty, err = strconv.Atoi(arg); err != nil {
				return "", 0, sel, errors.Wrapf(errUsage, "quantity %q", arg)
			}
		case key == "grams" || key == "g":
			if sel.Grams, err = strconv.Atoi(value); err != nil {
				return "", 0, sel, errors.Wrapf(errUsage, "grams %q", value)
			}
		case key == "variant" || key == "v":
			sel.VariantLabel = value
		default:
			return "", 0, sel, errors.Wrapf(errUsage, "unknown option %q", key)
		}
	}
	return productID, qty, sel, nil
}

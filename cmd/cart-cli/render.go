package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/xenking/bakery-cart/internal/cartapi"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func selection(it cartapi.Item) string {
	switch {
	case it.Grams > 0:
		return strconv.Itoa(it.Grams) + " g"
	case it.VariantLabel != "":
		return it.VariantLabel
	default:
		return "-"
	}
}

func renderCart(out io.Writer, s cartapi.Snapshot) error {
	if s.Empty() {
		_, err := fmt.Fprintln(out, "Your cart is empty.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRODUCT\tOPTION\tQTY\tPRICE\tTOTAL")
	for _, it := range s.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			it.ID, it.Name, selection(it), it.Quantity, money(it.UnitPrice), money(it.LineTotal))
	}
	for _, it := range s.GiftItems {
		fmt.Fprintf(tw, "%s\t%s (gift)\t%s\t%d\t%s\t%s\n",
			it.ID, it.Name, selection(it), it.Quantity, money(it.UnitPrice), money(it.LineTotal))
	}
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "Subtotal (%d items)\t\t\t\t\t%s\n", s.ItemCount, money(s.Subtotal))
	if s.Coupon.Code != "" {
		if s.Coupon.Rejection != "" {
			fmt.Fprintf(tw, "Coupon %s\t(%s)\t\t\t\t%s\n", s.Coupon.Code, s.Coupon.Rejection, money(decimal.Zero))
		} else {
			fmt.Fprintf(tw, "Coupon %s\t\t\t\t\t-%s\n", s.Coupon.Code, money(s.Coupon.Discount))
		}
	}
	if s.Coupon.AutoCode != "" && s.Coupon.AutoDiscount.IsPositive() {
		fmt.Fprintf(tw, "Promotion %s\t\t\t\t\t-%s\n", s.Coupon.AutoCode, money(s.Coupon.AutoDiscount))
	}
	fmt.Fprintf(tw, "Total\t\t\t\t\t%s\n", money(s.GrandTotal))
	return tw.Flush()
}

func renderProducts(out io.Writer, products cartapi.Products) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tUNIT\tPRICE\tOPTIONS")
	for _, p := range products {
		var opts string
		switch p.Unit {
		case cartapi.UnitWeight:
			for i, g := range p.WeightOptions {
				if i > 0 {
					opts += ", "
				}
				opts += strconv.Itoa(g) + " g"
			}
		case cartapi.UnitVariant:
			for i, v := range p.Variants {
				if i > 0 {
					opts += ", "
				}
				opts += v.Label + " " + money(v.Price)
			}
		}
		price := money(p.Price)
		if p.Unit == cartapi.UnitWeight {
			price += "/kg"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Unit, price, opts)
	}
	return tw.Flush()
}

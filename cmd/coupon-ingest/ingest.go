package main

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bakery-cart/internal/domain/coupon"
)

const (
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10
)

// knownCodes carry a campaign-specific rule; every other code gets
// defaultRule.
var knownCodes = map[string]coupon.Rule{
	"BIRTHDAY": {DiscountType: coupon.DiscountFreeLowest, Description: "Birthday treat: cheapest item free"},
	"CAKEDAY1": {DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromInt(20), MinCartAmount: decimal.NewFromInt(800), Description: "Cake day: 20% off orders over 800"},
	"FRESHBUN": {DiscountType: coupon.DiscountFixed, Value: decimal.NewFromInt(40), Description: "A fresh bun on us"},
	"DOZENOFF": {DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromInt(12), MaxDiscount: decimal.NewFromInt(300), Description: "12% off, up to 300"},
	"HALFBAKE": {DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromInt(50), MaxDiscount: decimal.NewFromInt(500), MaxUsesPerUser: 1, Description: "Half price, once per customer"},
}

var defaultRule = coupon.Rule{
	DiscountType:   coupon.DiscountPercentage,
	Value:          decimal.NewFromInt(10),
	MaxUsesPerUser: 1,
	Description:    "Partner promo: 10% off",
}

// ruleFor returns the coupon rule imported for code.
func ruleFor(code string) coupon.Rule {
	rule, ok := knownCodes[code]
	if !ok {
		rule = defaultRule
	}
	rule.Code = code
	return rule
}

type ingester struct {
	lg       *zap.Logger
	capacity uint
	fpr      float64
}

// validCodes returns, sorted, the codes present in at least two files. The
// first pass builds one bloom filter per file; the second re-reads every
// file and keeps codes another file's filter may contain.
func (i *ingester) validCodes(ctx context.Context, files []string) ([]string, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for idx, path := range files {
		g.Go(func() error {
			f, err := i.buildFilter(gctx, idx, path)
			filters[idx] = f
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	found := make([]map[string]uint, len(files))
	g, gctx = errgroup.WithContext(ctx)
	for idx, path := range files {
		g.Go(func() error {
			c, err := i.findCandidates(gctx, idx, path, filters)
			found[idx] = c
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "find candidates")
	}

	merged := make(map[string]uint)
	for _, candidates := range found {
		for code, mask := range candidates {
			merged[code] |= mask
		}
	}
	var valid []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			valid = append(valid, code)
		}
	}
	slices.Sort(valid)
	return valid, nil
}

func validLength(code string) bool {
	return len(code) >= minCodeLen && len(code) <= maxCodeLen
}

func (i *ingester) buildFilter(ctx context.Context, idx int, path string) (*bloom.BloomFilter, error) {
	filter := bloom.NewWithEstimates(i.capacity, i.fpr)
	var count uint64
	err := streamGzFile(ctx, path, func(code string) {
		if !validLength(code) {
			return
		}
		filter.AddString(code)
		count++
		if count%progressEvery == 0 {
			i.lg.Info("Pass 1 progress", zap.Int("file", idx+1), zap.Uint64("codes", count))
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "file %d", idx+1)
	}
	i.lg.Info("Pass 1 complete", zap.Int("file", idx+1), zap.Uint64("codes", count))
	return filter, nil
}

// findCandidates marks each code of file idx whose presence elsewhere the
// filters cannot rule out. The mask records the file the code was read from.
func (i *ingester) findCandidates(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) (map[string]uint, error) {
	candidates := make(map[string]uint)
	fileBit := uint(1) << uint(idx)
	var count uint64
	err := streamGzFile(ctx, path, func(code string) {
		if !validLength(code) {
			return
		}
		count++
		if count%progressEvery == 0 {
			i.lg.Info("Pass 2 progress", zap.Int("file", idx+1), zap.Uint64("codes", count))
		}
		for j, f := range filters {
			if j != idx && f.TestString(code) {
				candidates[code] |= fileBit
				return
			}
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "file %d", idx+1)
	}
	i.lg.Info("Pass 2 complete",
		zap.Int("file", idx+1),
		zap.Uint64("codes", count),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// streamGzFile calls fn for every line of a gzipped file.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	return nil
}

type couponWriter interface {
	UpsertCoupons(ctx context.Context, rules []coupon.Rule) (int, error)
}

func writeCoupons(ctx context.Context, lg *zap.Logger, w couponWriter, codes []string) error {
	rules := make([]coupon.Rule, 0, len(codes))
	for _, code := range codes {
		rules = append(rules, ruleFor(code))
	}
	lg.Info("Writing coupons", zap.Int("count", len(rules)))
	n, err := w.UpsertCoupons(ctx, rules)
	if err != nil {
		return errors.Wrapf(err, "write coupons (%d written)", n)
	}
	lg.Info("Coupons written", zap.Int("count", n))
	return nil
}

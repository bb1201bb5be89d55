package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/bakery-cart/internal/domain/coupon"
)

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func newTestIngester(t *testing.T) *ingester {
	return &ingester{lg: zaptest.NewLogger(t), capacity: 1000, fpr: 0.0001}
}

func TestValidCodes(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "promo1.gz", "BIRTHDAY", "ONLYONE1", "SHORT", "SHAREDAB", "WAYTOOLONGCODE"),
		writeGz(t, dir, "promo2.gz", "BIRTHDAY", "ONLYTWO2", "SHORT", "TRIPLE99"),
		writeGz(t, dir, "promo3.gz", "SHAREDAB", "TRIPLE99", "ONLYTHRE"),
	}

	codes, err := newTestIngester(t).validCodes(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, []string{"BIRTHDAY", "SHAREDAB", "TRIPLE99"}, codes)
}

func TestValidCodes_DuplicatesInOneFile(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "promo1.gz", "REPEATED", "REPEATED"),
		writeGz(t, dir, "promo2.gz", "SOMEOTHR"),
	}

	codes, err := newTestIngester(t).validCodes(context.Background(), files)
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestValidCodes_MissingFile(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "promo1.gz", "BIRTHDAY"),
		filepath.Join(dir, "promo2.gz"),
	}

	_, err := newTestIngester(t).validCodes(context.Background(), files)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file 2")
}

func TestValidCodes_Canceled(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "promo1.gz", "BIRTHDAY"),
		writeGz(t, dir, "promo2.gz", "BIRTHDAY"),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestIngester(t).validCodes(ctx, files)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRuleFor(t *testing.T) {
	tests := []struct {
		code     string
		wantType coupon.DiscountType
		wantVal  decimal.Decimal
	}{
		{code: "BIRTHDAY", wantType: coupon.DiscountFreeLowest, wantVal: decimal.Zero},
		{code: "FRESHBUN", wantType: coupon.DiscountFixed, wantVal: decimal.NewFromInt(40)},
		{code: "HALFBAKE", wantType: coupon.DiscountPercentage, wantVal: decimal.NewFromInt(50)},
		{code: "UNKNOWN1", wantType: coupon.DiscountPercentage, wantVal: decimal.NewFromInt(10)},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rule := ruleFor(tt.code)
			assert.Equal(t, tt.code, rule.Code)
			assert.Equal(t, tt.wantType, rule.DiscountType)
			assert.True(t, tt.wantVal.Equal(rule.Value), "value %s", rule.Value)
			assert.NotEmpty(t, rule.Description)
		})
	}

	// Lookups must not leak the code into the shared templates.
	_ = ruleFor("ANOTHER1")
	assert.Empty(t, defaultRule.Code)
	assert.Empty(t, knownCodes["BIRTHDAY"].Code)
}

type fakeWriter struct {
	got []coupon.Rule
	err error
}

func (w *fakeWriter) UpsertCoupons(_ context.Context, rules []coupon.Rule) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.got = append(w.got, rules...)
	return len(rules), nil
}

func TestWriteCoupons(t *testing.T) {
	w := &fakeWriter{}
	err := writeCoupons(context.Background(), zaptest.NewLogger(t), w, []string{"BIRTHDAY", "PARTNER1"})
	require.NoError(t, err)
	require.Len(t, w.got, 2)
	assert.Equal(t, "BIRTHDAY", w.got[0].Code)
	assert.Equal(t, coupon.DiscountFreeLowest, w.got[0].DiscountType)
	assert.Equal(t, "PARTNER1", w.got[1].Code)
	assert.Equal(t, 1, w.got[1].MaxUsesPerUser)
}

func TestWriteCoupons_Error(t *testing.T) {
	w := &fakeWriter{err: errors.New("db down")}
	err := writeCoupons(context.Background(), zaptest.NewLogger(t), w, []string{"PARTNER1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("(%d written)", 0))
}

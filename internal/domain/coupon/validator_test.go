package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	rule      *Rule
	err       error
	userUses  int
	countErr  error
	lookedUp  string
	countedBy string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Rule, error) {
	m.lookedUp = code
	return m.rule, m.err
}

func (m *mockCouponRepo) CountUserUses(_ context.Context, _, userID string) (int, error) {
	m.countedBy = userID
	return m.userUses, m.countErr
}

func TestRepoValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	cart := []Item{{ProductID: "cake", Price: decimal.NewFromInt(450), Quantity: 2}}

	tests := []struct {
		name       string
		repo       *mockCouponRepo
		code       string
		items      []Item
		wantAmount decimal.Decimal
		wantErr    error
	}{
		{
			name: "valid code returns discount",
			repo: &mockCouponRepo{
				rule: &Rule{Code: "SAVE10", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10)},
			},
			code:       "SAVE10",
			items:      cart,
			wantAmount: decimal.NewFromInt(90),
		},
		{
			name:    "unknown code returns ErrInvalidCoupon",
			repo:    &mockCouponRepo{err: ErrInvalidCoupon},
			code:    "BOGUS",
			items:   cart,
			wantErr: ErrInvalidCoupon,
		},
		{
			name:    "blank code is invalid without lookup",
			repo:    &mockCouponRepo{},
			code:    "   ",
			items:   cart,
			wantErr: ErrInvalidCoupon,
		},
		{
			name: "below minimum cart amount",
			repo: &mockCouponRepo{
				rule: &Rule{Code: "BIG1000", DiscountType: DiscountFixed, Value: decimal.NewFromInt(100), MinCartAmount: decimal.NewFromInt(1000)},
			},
			code:    "BIG1000",
			items:   cart,
			wantErr: ErrBelowMinimum,
		},
		{
			name: "expired coupon (valid_until in past)",
			repo: &mockCouponRepo{
				rule: &Rule{Code: "OLD", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10), ValidUntil: &pastTime},
			},
			code:    "OLD",
			items:   cart,
			wantErr: ErrCouponExpired,
		},
		{
			name: "coupon not yet valid (valid_from in future)",
			repo: &mockCouponRepo{
				rule: &Rule{Code: "FUTURE", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10), ValidFrom: &futureTime},
			},
			code:    "FUTURE",
			items:   cart,
			wantErr: ErrCouponExpired,
		},
		{
			name: "coupon within valid window succeeds",
			repo: &mockCouponRepo{
				rule: &Rule{
					Code: "WINDOW", DiscountType: DiscountFixed, Value: decimal.NewFromInt(25),
					ValidFrom: &pastTime, ValidUntil: &futureTime,
				},
			},
			code:       "WINDOW",
			items:      cart,
			wantAmount: decimal.NewFromInt(25),
		},
		{
			name: "global usage limit reached",
			repo: &mockCouponRepo{
				rule: &Rule{Code: "LIMITED", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10), MaxUses: 100, Uses: 100},
			},
			code:    "LIMITED",
			items:   cart,
			wantErr: ErrCouponUsageLimitReached,
		},
		{
			name: "per-user usage limit reached",
			repo: &mockCouponRepo{
				rule:     &Rule{Code: "WELCOME", DiscountType: DiscountFixed, Value: decimal.NewFromInt(50), MaxUsesPerUser: 1},
				userUses: 1,
			},
			code:    "WELCOME",
			items:   cart,
			wantErr: ErrCouponUsageLimitReached,
		},
		{
			name: "per-user usage under limit succeeds",
			repo: &mockCouponRepo{
				rule:     &Rule{Code: "WELCOME", DiscountType: DiscountFixed, Value: decimal.NewFromInt(50), MaxUsesPerUser: 2},
				userUses: 1,
			},
			code:       "WELCOME",
			items:      cart,
			wantAmount: decimal.NewFromInt(50),
		},
		{
			name: "unlimited uses (max_uses=0) always succeeds",
			repo: &mockCouponRepo{
				rule: &Rule{Code: "UNLIMITED", DiscountType: DiscountFixed, Value: decimal.NewFromInt(5), Uses: 9999},
			},
			code:       "UNLIMITED",
			items:      cart,
			wantAmount: decimal.NewFromInt(5),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo)
			v.now = func() time.Time { return fixedNow }

			got, err := v.Validate(context.Background(), "user-1", tt.code, tt.items)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, tt.wantAmount.Equal(got.Amount),
				"expected amount %s, got %s", tt.wantAmount, got.Amount)
		})
	}
}

func TestRepoValidator_NormalizesCode(t *testing.T) {
	repo := &mockCouponRepo{
		rule: &Rule{Code: "SAVE10", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10)},
	}

	_, err := NewRepoValidator(repo).Validate(context.Background(), "user-1", "  save10 ", []Item{
		{ProductID: "bun", Price: decimal.NewFromInt(40), Quantity: 1},
	})

	require.NoError(t, err)
	assert.Equal(t, "SAVE10", repo.lookedUp)
	assert.Empty(t, repo.countedBy, "per-user count is skipped when the rule has no per-user limit")
}

func TestRepoValidator_CountUsesError(t *testing.T) {
	repo := &mockCouponRepo{
		rule:     &Rule{Code: "ONCE", DiscountType: DiscountFixed, Value: decimal.NewFromInt(5), MaxUsesPerUser: 1},
		countErr: errors.New("db error"),
	}

	_, err := NewRepoValidator(repo).Validate(context.Background(), "user-1", "ONCE", []Item{
		{ProductID: "bun", Price: decimal.NewFromInt(40), Quantity: 1},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "count coupon uses")
	assert.Equal(t, "user-1", repo.countedBy)
}

func TestRepoValidator_LookupError(t *testing.T) {
	repo := &mockCouponRepo{err: errors.New("connection reset")}

	_, err := NewRepoValidator(repo).Validate(context.Background(), "user-1", "SAVE10", nil)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCoupon)
	assert.Contains(t, err.Error(), "lookup coupon")
}

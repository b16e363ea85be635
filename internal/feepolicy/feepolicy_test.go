package feepolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierForBands(t *testing.T) {
	cases := []struct {
		name     string
		earnings int64
		want     Tier
	}{
		{"zero", 0, TierLaunch},
		{"just under growth", 9_999_99, TierLaunch},
		{"growth lower bound", 10_000_00, TierGrowth},
		{"mid growth", 25_000_00, TierGrowth},
		{"scale lower bound", 50_000_00, TierScale},
		{"just under partner", 99_999_99, TierScale},
		{"partner lower bound", 100_000_00, TierPartner},
		{"far above partner", 5_000_000_00, TierPartner},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tier, err := TierFor(tc.earnings)
			require.NoError(t, err)
			assert.Equal(t, tc.want, tier)
		})
	}
}

func TestTierForNegativeEarnings(t *testing.T) {
	_, err := TierFor(-1)
	assert.ErrorIs(t, err, ErrNegativeEarnings)

	_, err = ProgressWithinTier(-1)
	assert.ErrorIs(t, err, ErrNegativeEarnings)
}

func TestFeePercentMonotoneNonIncreasing(t *testing.T) {
	var prev int64 = 100
	seen := map[int64]bool{}
	for earnings := int64(0); earnings <= 120_000_00; earnings += 500_00 {
		_, percent, err := FeePercentForEarnings(earnings)
		require.NoError(t, err)
		assert.LessOrEqual(t, percent, prev, "fee percent must not increase with earnings")
		prev = percent
		seen[percent] = true
	}
	assert.Equal(t, map[int64]bool{18: true, 15: true, 12: true, 10: true}, seen)
}

func TestFeePercentFor(t *testing.T) {
	cases := map[Tier]int64{
		TierLaunch:  18,
		TierGrowth:  15,
		TierScale:   12,
		TierPartner: 10,
	}
	for tier, want := range cases {
		got, err := FeePercentFor(tier)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := FeePercentFor(Tier("platinum"))
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestProgressWithinTier(t *testing.T) {
	cases := []struct {
		name     string
		earnings int64
		want     int64
	}{
		{"launch start", 0, 0},
		{"launch halfway", 5_000_00, 50},
		{"growth start", 10_000_00, 0},
		{"growth halfway", 30_000_00, 50},
		{"scale start", 50_000_00, 0},
		{"scale quarter", 62_500_00, 25},
		{"partner always full", 100_000_00, 100},
		{"partner far above", 900_000_00, 100},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ProgressWithinTier(tc.earnings)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFeeAmountCentsRoundHalfUp(t *testing.T) {
	// 5000.00 at 18% -> 900.00
	assert.Equal(t, int64(900_00), FeeAmountCents(5_000_00, 18))
	// 33.33 at 15% -> 4.9995 -> 5.00
	assert.Equal(t, int64(500), FeeAmountCents(33_33, 15))
	// 0.03 at 18% -> 0.0054 -> 0.01
	assert.Equal(t, int64(1), FeeAmountCents(3, 18))
	// fee never exceeds the amount
	for amount := int64(1); amount < 1000; amount += 7 {
		assert.LessOrEqual(t, FeeAmountCents(amount, 18), amount)
	}
	assert.Zero(t, FeeAmountCents(0, 18))
	assert.Zero(t, FeeAmountCents(-100, 18))
}

func TestCompare(t *testing.T) {
	assert.Negative(t, Compare(TierLaunch, TierGrowth))
	assert.Positive(t, Compare(TierPartner, TierScale))
	assert.Zero(t, Compare(TierGrowth, TierGrowth))
	assert.Negative(t, Compare(Tier("bogus"), TierLaunch))
	assert.True(t, IsValid(TierScale))
	assert.False(t, IsValid(Tier("bogus")))
}

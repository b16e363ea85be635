// Package feepolicy is the single source of truth for creator fee tiers.
// Every component that needs a rate consults this table; nothing else may
// duplicate it.
package feepolicy

import "errors"

// Tier is a named band of a creator's cumulative lifetime earnings.
type Tier string

const (
	TierLaunch  Tier = "launch"
	TierGrowth  Tier = "growth"
	TierScale   Tier = "scale"
	TierPartner Tier = "partner"
)

var (
	ErrNegativeEarnings = errors.New("negative_earnings")
	ErrUnknownTier      = errors.New("unknown_tier")
)

// band bounds are cumulative earnings in cents, inclusive lower bound.
type band struct {
	tier       Tier
	lowerCents int64
	feePercent int64
}

// Ordered ascending. The upper bound of each band is the next band's lower
// bound; the last band is unbounded.
var bands = []band{
	{tier: TierLaunch, lowerCents: 0, feePercent: 18},
	{tier: TierGrowth, lowerCents: 10_000_00, feePercent: 15},
	{tier: TierScale, lowerCents: 50_000_00, feePercent: 12},
	{tier: TierPartner, lowerCents: 100_000_00, feePercent: 10},
}

// TierFor maps cumulative earnings (cents) to the tier in effect.
func TierFor(cumulativeEarningsCents int64) (Tier, error) {
	if cumulativeEarningsCents < 0 {
		return "", ErrNegativeEarnings
	}

	current := bands[0]
	for _, b := range bands {
		if cumulativeEarningsCents >= b.lowerCents {
			current = b
		}
	}
	return current.tier, nil
}

// FeePercentFor is the inverse lookup, used when an administrator pins a
// tier directly.
func FeePercentFor(tier Tier) (int64, error) {
	for _, b := range bands {
		if b.tier == tier {
			return b.feePercent, nil
		}
	}
	return 0, ErrUnknownTier
}

// FeePercentForEarnings returns both the tier and its rate.
func FeePercentForEarnings(cumulativeEarningsCents int64) (Tier, int64, error) {
	tier, err := TierFor(cumulativeEarningsCents)
	if err != nil {
		return "", 0, err
	}
	percent, err := FeePercentFor(tier)
	if err != nil {
		return "", 0, err
	}
	return tier, percent, nil
}

// ProgressWithinTier reports 0-100 progress from the current tier's lower
// bound toward the next tier's lower bound. The top tier always reports 100.
func ProgressWithinTier(cumulativeEarningsCents int64) (int64, error) {
	if cumulativeEarningsCents < 0 {
		return 0, ErrNegativeEarnings
	}

	for i, b := range bands {
		if i == len(bands)-1 {
			return 100, nil
		}
		next := bands[i+1]
		if cumulativeEarningsCents >= next.lowerCents {
			continue
		}
		span := next.lowerCents - b.lowerCents
		progress := (cumulativeEarningsCents - b.lowerCents) * 100 / span
		return progress, nil
	}
	return 100, nil
}

// Compare reports whether a ranks below, equal to, or above b in the band
// order. Unknown tiers rank lowest.
func Compare(a, b Tier) int {
	return rank(a) - rank(b)
}

func rank(t Tier) int {
	for i, b := range bands {
		if b.tier == t {
			return i + 1
		}
	}
	return 0
}

// IsValid reports whether t names a known tier.
func IsValid(t Tier) bool {
	return rank(t) > 0
}

// FeeAmountCents computes the platform fee on amountCents at percent,
// rounded half-up to a whole cent.
func FeeAmountCents(amountCents, percent int64) int64 {
	if amountCents <= 0 || percent <= 0 {
		return 0
	}
	return (amountCents*percent + 50) / 100
}

package booking

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type surgeTier struct {
	threshold  decimal.Decimal
	multiplier decimal.Decimal
}

var (
	surgeTiersAbove = []surgeTier{
		{threshold: decimal.RequireFromString("0.9"), multiplier: decimal.RequireFromString("2.5")},
		{threshold: decimal.RequireFromString("0.7"), multiplier: decimal.RequireFromString("1.8")},
		{threshold: decimal.RequireFromString("0.4"), multiplier: decimal.RequireFromString("1.3")},
	}
	lowDemandThreshold  = decimal.RequireFromString("0.1")
	lowDemandMultiplier = decimal.RequireFromString("0.1")
	baselineMultiplier  = decimal.RequireFromString("1.0")
	percentScale        = decimal.NewFromInt(100)
)

// Occupancy returns the sold fraction (total-available)/total.
func Occupancy(totalAllocation int, availableStock int) (decimal.Decimal, error) {
	if totalAllocation <= 0 {
		return decimal.Zero, WrapError(errorOperationService, errorSubjectPricing, errorCodeAllocation, ErrInvalidAllocation)
	}
	sold := decimal.NewFromInt(int64(totalAllocation - availableStock))
	return sold.Div(decimal.NewFromInt(int64(totalAllocation))), nil
}

// SurgeMultiplier maps an occupancy ratio onto the demand multiplier.
// Thresholds compare exactly: 0.9 itself falls into the 1.8 tier.
func SurgeMultiplier(occupancy decimal.Decimal) decimal.Decimal {
	for _, tier := range surgeTiersAbove {
		if occupancy.GreaterThan(tier.threshold) {
			return tier.multiplier
		}
	}
	if occupancy.LessThan(lowDemandThreshold) {
		return lowDemandMultiplier
	}
	return baselineMultiplier
}

// Quote is a priced snapshot of one category.
type Quote struct {
	Occupancy  decimal.Decimal
	Multiplier decimal.Decimal
	Price      decimal.Decimal
}

// SurgePrice computes basePrice * (1 + multiplier) for the current stock level.
func SurgePrice(basePrice decimal.Decimal, totalAllocation int, availableStock int) (Quote, error) {
	occupancy, err := Occupancy(totalAllocation, availableStock)
	if err != nil {
		return Quote{}, err
	}
	if basePrice.IsNegative() {
		return Quote{}, fmt.Errorf("%w: base price is negative", ErrInvalidAmount)
	}
	multiplier := SurgeMultiplier(occupancy)
	return Quote{
		Occupancy:  occupancy,
		Multiplier: multiplier,
		Price:      basePrice.Mul(decimal.NewFromInt(1).Add(multiplier)),
	}, nil
}

// OccupancyPercent formats occupancy as a two-decimal percentage string such as "37.50%".
func OccupancyPercent(totalAllocation int, availableStock int) string {
	occupancy, err := Occupancy(totalAllocation, availableStock)
	if err != nil {
		return "0.00%"
	}
	return occupancy.Mul(percentScale).StringFixed(2) + "%"
}

// Package money converts decimal amounts and tax rates into the provider's
// fixed-point integer units.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	minorUnitScale = decimal.NewFromInt(100)
	rateScale      = decimal.NewFromInt(10000)
	one            = decimal.NewFromInt(1)
)

// ToMinorUnits multiplies amount by 100 and truncates toward zero.
// Negative amounts stay negative.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorUnitScale).Truncate(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits for whole minor units
func FromMinorUnits(units int64) decimal.Decimal {
	return decimal.New(units, -2)
}

// ToFixedPointRate scales a rate expressed as a fraction of 1 by 10000,
// truncating toward zero. 0.25 becomes 2500.
func ToFixedPointRate(fraction decimal.Decimal) int64 {
	return fraction.Mul(rateScale).Truncate(0).IntPart()
}

// ValidateRate checks that rate is a fraction of 1. Rates are never read
// as whole percentages: 1 means 100% and 0.01 means 1%.
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(one) {
		return fmt.Errorf("tax rate %s is not a fraction between 0 and 1", rate)
	}
	return nil
}

// Package money converts between integer minor units and decimal amounts.
// Arithmetic inside the engine is integer only; decimal values exist at the
// API boundary.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	minorExponent  = 2
	bpsDenominator = 10000
)

var hundred = decimal.NewFromInt(100)

// ApplyBps returns amount*bps/10000 rounded half-up to the nearest minor unit.
// Both inputs must be non-negative.
func ApplyBps(amount, bps int64) int64 {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return (amount*bps + bpsDenominator/2) / bpsDenominator
}

// Format renders minor units as a fixed two-place decimal string, e.g. 12105 -> "121.05".
func Format(minor int64) string {
	return decimal.New(minor, -minorExponent).StringFixed(minorExponent)
}

// ParseDecimal converts a decimal string into minor units. Values with more
// than two fractional digits are rejected rather than rounded.
func ParseDecimal(value string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return fromDecimal(d)
}

// FromFloat converts a boundary float amount into minor units with the same
// precision rule as ParseDecimal.
func FromFloat(value float64) (int64, error) {
	return fromDecimal(decimal.NewFromFloat(value))
}

func fromDecimal(d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %s must not be negative", d.String())
	}
	scaled := d.Mul(hundred)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", d.String(), minorExponent)
	}
	return scaled.IntPart(), nil
}

package domain

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// RatioToDisplay converts a canonical sampling fraction to a percentage.
// Scaling is performed on the shortest decimal form of the input so that
// 0.235 displays as exactly 23.5. No rounding is applied.
func RatioToDisplay(fraction float64) float64 {
	if math.IsNaN(fraction) || math.IsInf(fraction, 0) {
		return fraction * 100
	}
	f, _ := decimal.NewFromFloat(fraction).Shift(2).Float64()
	return f
}

// RatioToCanonical converts a display percentage back to a fraction.
// RatioToCanonical(RatioToDisplay(f)) == f holds for every fraction with at
// most 15 significant decimal digits. Beyond that precision scaling by 100 can
// map distinct float64 fractions to the same percentage, and the first
// (shortest) decimal form wins.
func RatioToCanonical(display float64) float64 {
	if math.IsNaN(display) || math.IsInf(display, 0) {
		return display / 100
	}
	f, _ := decimal.NewFromFloat(display).Shift(-2).Float64()
	return f
}

// ParseDisplayRatio parses a user-entered percentage (an optional trailing
// "%" is accepted) into a canonical fraction within [0,1].
func ParseDisplayRatio(text string) (float64, error) {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "%"))
	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return 0, ErrRatioOutOfRange
	}
	f, _ := d.Shift(-2).Float64()
	return f, nil
}

// ValidateRatio checks that a canonical fraction lies within [0,1].
func ValidateRatio(fraction float64) error {
	if math.IsNaN(fraction) || fraction < 0 || fraction > 1 {
		return ErrRatioOutOfRange
	}
	return nil
}

package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const DefaultMinorUnitExponent int32 = 2

// ParseAmount converts a human-entered decimal string ("250.00") into minor
// units. More fractional digits than exp allows is rejected rather than
// rounded.
func ParseAmount(s string, exp int32) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("ParseAmount: %w", ErrInvalidAmount)
	}
	minor := d.Shift(exp)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("ParseAmount: more than %d decimal places: %w", exp, ErrInvalidAmount)
	}
	if !minor.IsPositive() {
		return 0, fmt.Errorf("ParseAmount: %w", ErrInvalidAmount)
	}
	if minor.GreaterThan(decimal.NewFromInt(maxMinor)) {
		return 0, fmt.Errorf("ParseAmount: out of range: %w", ErrInvalidAmount)
	}
	return minor.IntPart(), nil
}

const maxMinor = int64(1<<53 - 1)

func FormatAmount(minor int64, exp int32) string {
	return decimal.New(minor, -exp).StringFixed(exp)
}

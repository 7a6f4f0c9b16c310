package bondingcurve

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal request amount into integer base units.
// Zero, negative, fractional and out-of-range values are rejected.
func ParseAmount(d decimal.Decimal) (uint64, error) {
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, d.String())
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("%w: %s is not a whole number of base units", ErrInvalidAmount, d.String())
	}
	b := d.BigInt()
	if !b.IsUint64() {
		return 0, fmt.Errorf("%w: %s overflows 64 bits", ErrInvalidAmount, d.String())
	}
	return b.Uint64(), nil
}

// ParseAmountString parses a base-unit amount from text. Non-numeric input,
// including NaN and Inf, is rejected.
func ParseAmountString(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return ParseAmount(d)
}

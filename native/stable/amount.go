package stable

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmountString is returned when a human amount cannot be parsed.
var ErrInvalidAmountString = errors.New("stable: invalid amount string")

// ParseAmount converts a human decimal such as "100.00" into base units.
// More than Decimals fractional digits, negatives and empty input fail.
func ParseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmountString)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmountString, raw)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmountString, raw)
	}
	scaled := d.Shift(Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmountString, raw, Decimals)
	}
	return scaled.BigInt(), nil
}

// FormatAmount renders base units as a decimal string with at least two
// fractional digits, e.g. 97500000 -> "97.50".
func FormatAmount(units *big.Int) string {
	if units == nil {
		units = new(big.Int)
	}
	d := decimal.NewFromBigInt(units, -Decimals)
	if d.Equal(d.Round(2)) {
		return d.StringFixed(2)
	}
	return d.String()
}

// Package money converts between decimal strings and minor-unit amounts.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(1 << 53)
)

// ParseAmount parses a major-unit decimal such as "1234.56" or "1234,56" into
// minor units. More than two fractional digits is an error rather than a rounding.
func ParseAmount(s string) (int64, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if clean == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	cents := d.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has more than two decimal places", ErrInvalidAmount, s)
	}

	if cents.Abs().GreaterThan(maxCents) {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}

	return cents.IntPart(), nil
}

// Format renders minor units as a two-decimal string.
func Format(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// Package money holds the cent-based arithmetic used to price selling plans.
// All amounts are integer minor units (cents) unless a name says otherwise.
package money

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Formatter renders minor units as a US-dollar string. The storefront shows
// whole dollars on option cards and cents in some button variants, so the
// fraction digit policy is configuration rather than a constant.
type Formatter struct {
	MinFractionDigits int
	MaxFractionDigits int
}

// DefaultFormatter matches the widget's option cards: "$65", "$55".
var DefaultFormatter = Formatter{MinFractionDigits: 0, MaxFractionDigits: 0}

// Format converts minor units to a currency string such as "$1,234.50".
func (f Formatter) Format(minor int64) string {
	maxDigits := f.MaxFractionDigits
	if maxDigits < 0 {
		maxDigits = 0
	}
	minDigits := f.MinFractionDigits
	if minDigits < 0 {
		minDigits = 0
	}
	if minDigits > maxDigits {
		maxDigits = minDigits
	}

	d := decimal.New(minor, -2).Round(int32(maxDigits))
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}

	_, frac, _ := strings.Cut(d.StringFixed(int32(maxDigits)), ".")
	for len(frac) > minDigits && strings.HasSuffix(frac, "0") {
		frac = frac[:len(frac)-1]
	}

	out := sign + "$" + humanize.Comma(d.Truncate(0).IntPart())
	if frac != "" {
		out += "." + frac
	}
	return out
}

// ApplyPercentageDiscount removes round(base*percent/100) from base and never
// returns less than zero.
func ApplyPercentageDiscount(base int64, percent decimal.Decimal) int64 {
	discount := decimal.NewFromInt(base).Mul(percent).Div(hundred).Round(0).IntPart()
	return clamp(base - discount)
}

// ApplyFixedDiscount removes a major-unit amount from base, clamped at zero.
func ApplyFixedDiscount(base int64, amountMajor decimal.Decimal) int64 {
	return clamp(base - MinorUnits(amountMajor))
}

// SavingsPercent reports how much cheaper discounted is than base as a whole
// percentage in [0,100]. A zero base yields zero.
func SavingsPercent(base, discounted int64) int {
	if base <= 0 {
		return 0
	}
	pct := decimal.NewFromInt(base - discounted).Mul(hundred).Div(decimal.NewFromInt(base)).Round(0).IntPart()
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return int(pct)
}

// MinorUnits converts a major-unit amount to cents, rounding half away from zero.
func MinorUnits(major decimal.Decimal) int64 {
	return major.Mul(hundred).Round(0).IntPart()
}

// FromMinor converts cents to a major-unit decimal.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// ParseMajor parses a decimal amount such as "65.00" or "10".
func ParseMajor(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

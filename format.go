package sift

import (
	"fmt"
	"math"
)

// RoundToLength renders v as a decimal-exponent string of at most width
// characters, e.g. "1.2345e+03". A width below 5 returns
// ErrWidthTooSmall; an input of exactly 0 renders as "0.0". A leading
// minus reserves one extra character of the width, so at the minimum
// width a negative value may overrun by one; a value whose exponent
// needs three digits can overrun the same way. Non-finite inputs render
// through the default float formatting.
func RoundToLength(v float64, width int) (string, error) {
	if width < 5 {
		return "", fmt.Errorf("%w: got %d", ErrWidthTooSmall, width)
	}
	if v == 0 {
		return "0.0", nil
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return fmt.Sprint(v), nil
	}

	budget := width
	if v < 0 {
		budget--
	}

	// Exponents of three or more digits need one extra reserved slot.
	exp := int(math.Floor(math.Log10(math.Abs(v))))
	expDigits := 2
	if exp <= -100 || exp >= 100 {
		expDigits = 3
	}

	// Layout d.fff…e±XX: leading digit, decimal point, exponent marker
	// and sign, then the exponent digits. Whatever remains goes to the
	// fraction.
	frac := budget - 4 - expDigits
	if frac < 0 {
		frac = 0
	}
	return fmt.Sprintf("%.*e", frac, v), nil
}

// Package x402 - Amount handling
// Token amounts travel as decimal strings ("0.10") and are converted to
// integer base units exactly. No floating point is involved anywhere in
// amount handling, so sub-unit values never lose precision.
package x402

import (
	"fmt"
	"math"
	"strings"
)

// ParseAmount converts a decimal token-unit string to integer base units
// for a mint with the given number of decimals. "0.10" with 6 decimals
// yields 100000. It rejects empty strings, signs, exponents, non-digit
// characters, more fractional digits than the mint supports, and values
// that overflow uint64.
func ParseAmount(amount string, decimals uint8) (uint64, error) {
	if amount == "" {
		return 0, NewInvalidPaymentRequestError("amount must not be empty")
	}

	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" && frac == "" {
		return 0, NewInvalidPaymentRequestError("amount must contain digits")
	}
	if strings.Contains(frac, ".") {
		return 0, NewInvalidPaymentRequestError("amount has more than one decimal point")
	}
	if len(frac) > int(decimals) {
		return 0, NewInvalidPaymentRequestError(fmt.Sprintf("amount %q has more than %d decimal places", amount, decimals))
	}

	// Right-pad the fraction to exactly `decimals` digits so the combined
	// digit string is the base-unit value.
	frac += strings.Repeat("0", int(decimals)-len(frac))

	var value uint64
	for _, r := range whole + frac {
		if r < '0' || r > '9' {
			return 0, NewInvalidPaymentRequestError(fmt.Sprintf("amount %q contains invalid character %q", amount, r))
		}
		d := uint64(r - '0')
		if value > (math.MaxUint64-d)/10 {
			return 0, NewInvalidPaymentRequestError(fmt.Sprintf("amount %q overflows", amount))
		}
		value = value*10 + d
	}
	return value, nil
}

// CheckAmountSyntax validates the shape of a decimal token-unit string
// without knowing the mint's decimals: digits with at most one decimal
// point, no signs or exponents. Structural validation uses this so a
// challenge for a fine-grained mint is not rejected by one party's
// decimal configuration.
func CheckAmountSyntax(amount string) error {
	if amount == "" {
		return NewInvalidPaymentRequestError("amount must not be empty")
	}
	whole, frac, dot := strings.Cut(amount, ".")
	if whole == "" && frac == "" {
		return NewInvalidPaymentRequestError("amount must contain digits")
	}
	if dot && frac == "" {
		return NewInvalidPaymentRequestError("amount must not end with a decimal point")
	}
	for _, r := range whole + frac {
		if r == '.' {
			return NewInvalidPaymentRequestError("amount has more than one decimal point")
		}
		if r < '0' || r > '9' {
			return NewInvalidPaymentRequestError(fmt.Sprintf("amount %q contains invalid character %q", amount, r))
		}
	}
	return nil
}

// FormatAmount converts integer base units back to a decimal token-unit
// string. Trailing fractional zeros are trimmed; whole values carry no
// decimal point. FormatAmount(100000, 6) yields "0.1".
func FormatAmount(baseUnits uint64, decimals uint8) string {
	if decimals == 0 {
		return fmt.Sprintf("%d", baseUnits)
	}

	s := fmt.Sprintf("%0*d", int(decimals)+1, baseUnits)
	whole, frac := s[:len(s)-int(decimals)], s[len(s)-int(decimals):]
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

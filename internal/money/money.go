// Package money provides helpers for the fixed-point decimal amounts used
// across the settlement engine. Amounts travel as decimal strings and are
// never represented as binary floats.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount indicates an amount that failed to parse or is not
	// strictly positive.
	ErrInvalidAmount = errors.New("invalid amount")
)

// ParsePositive parses a decimal string and requires it to be > 0.
func ParsePositive(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// RequirePositive validates an already-parsed amount.
func RequirePositive(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// NormalizeCurrency upper-cases an ISO currency code and rejects blanks.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < 3 || len(code) > 4 {
		return "", errors.New("invalid currency code")
	}
	return code, nil
}

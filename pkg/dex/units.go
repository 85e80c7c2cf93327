package dex

import (
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a human amount to the token's smallest integer unit.
// Digits beyond the token's precision are truncated.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (string, error) {
	if !amount.IsPositive() {
		return "", eris.Errorf("dex: amount must be positive, got %s", amount)
	}
	if decimals < 0 {
		return "", eris.Errorf("dex: invalid decimals %d", decimals)
	}
	base := amount.Shift(decimals).Truncate(0)
	if base.IsZero() {
		return "", eris.Errorf("dex: amount %s is below one base unit", amount)
	}
	return base.String(), nil
}

// FromBaseUnits converts an integer base-unit string back to a human amount.
func FromBaseUnits(raw string, decimals int32) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "dex: parse base units %q", raw)
	}
	return d.Shift(-decimals), nil
}

// Package money converts between integer base units of the swept token and
// fiat values using fixed-point decimal arithmetic.
package money

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// TokenDecimals is the number of decimal places of the swept token.
	// One display unit equals 10^18 base units.
	TokenDecimals = 18

	// FiatPlaces is the number of decimal places kept for fiat values
	FiatPlaces = 2
)

// FromBaseUnits returns the display-unit value of a base-unit amount without
// any rounding. A nil amount is treated as zero.
func FromBaseUnits(amount *big.Int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -TokenDecimals)
}

// ToBaseUnits converts a display-unit amount into base units. Digits below
// one base unit are truncated.
func ToBaseUnits(tokens decimal.Decimal) *big.Int {
	return tokens.Shift(TokenDecimals).BigInt()
}

// BaseUnitsToFiat computes amount / 10^18 * price rounded half-up to two
// decimal places. The computation is exact until the final rounding step.
//
// Example:
//
//	BaseUnitsToFiat(big.NewInt(5e17), decimal.RequireFromString("3.005")) // 1.50
func BaseUnitsToFiat(amount *big.Int, price decimal.Decimal) decimal.Decimal {
	return FromBaseUnits(amount).Mul(price).Round(FiatPlaces)
}

// BaseUnitsToWholeFiat is BaseUnitsToFiat rounded half-up to a whole number,
// used by the balance report.
func BaseUnitsToWholeFiat(amount *big.Int, price decimal.Decimal) decimal.Decimal {
	return FromBaseUnits(amount).Mul(price).Round(0)
}

// FormatFiat renders a fiat value with exactly two decimals, e.g. "$3480.00".
func FormatFiat(value decimal.Decimal) string {
	return "$" + value.StringFixed(FiatPlaces)
}

// FormatTokens renders a base-unit amount in display units, trimming
// trailing zeros.
func FormatTokens(amount *big.Int) string {
	return FromBaseUnits(amount).String()
}

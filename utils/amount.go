package utils

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseMinorUnits parses an integer minor-unit amount string. Amounts
// are integers end to end; fractional values are rejected rather than
// rounded.
func ParseMinorUnits(amount string) (uint64, error) {
	if amount == "" {
		return 0, fmt.Errorf("amount cannot be empty")
	}
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if dec.IsNegative() {
		return 0, fmt.Errorf("amount cannot be negative")
	}
	if !dec.IsInteger() {
		return 0, fmt.Errorf("amount %q is not in minor units", amount)
	}
	if !dec.BigInt().IsUint64() {
		return 0, fmt.Errorf("amount %q exceeds uint64 range", amount)
	}
	return dec.BigInt().Uint64(), nil
}

// FormatMinorUnits renders a minor-unit amount as a base-10 string.
func FormatMinorUnits(amount uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0).String()
}

// ToDisplayUnits converts a minor-unit amount to a human-readable
// decimal string given the asset's decimals, for log and error text.
func ToDisplayUnits(amount uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -decimals).String()
}

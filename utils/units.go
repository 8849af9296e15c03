// Package utils holds conversion and display helpers shared by clients of
// the core. Amounts inside the core are always integer base units; these
// helpers exist only at the edges.
package utils

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// baseUnitDecimals is the nano-scale of the native asset: 1e9 base units per
// whole unit.
const baseUnitDecimals = 9

// FormatBaseUnits renders an integer base-unit amount as a decimal string in
// whole units, e.g. 1_500_000_000 -> "1.5".
func FormatBaseUnits(amount uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -baseUnitDecimals).String()
}

// ParseUnits parses a decimal whole-unit string into base units. Negative
// amounts and amounts with more than nine fractional digits are rejected.
func ParseUnits(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("amount cannot be empty")
	}
	dec, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount format: %w", err)
	}
	if dec.IsNegative() {
		return 0, fmt.Errorf("amount cannot be negative")
	}
	shifted := dec.Shift(baseUnitDecimals)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than %d fractional digits", s, baseUnitDecimals)
	}
	bi := shifted.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("amount %s overflows base units", s)
	}
	return bi.Uint64(), nil
}

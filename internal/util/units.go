package util

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const packageName = "util"

const (
	GweiDecimals  = 9
	EtherDecimals = 18
)

// ParseUnits converts a decimal string such as "2.5" into base units with the given decimals.
// Values with more fractional digits than decimals are rejected rather than rounded.
func ParseUnits(value string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, WrapErrorForLog(packageName, FuncName(), fmt.Errorf("failed to parse %q: %w", value, err))
	}
	if d.IsNegative() {
		return nil, WrapErrorForLog(packageName, FuncName(), fmt.Errorf("negative amount %q", value))
	}

	shifted := d.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, WrapErrorForLog(packageName, FuncName(), fmt.Errorf("%q has more than %d decimal places", value, decimals))
	}
	return shifted.BigInt(), nil
}

// CeilUnits converts a decimal amount into base units, rounding up to the next whole unit.
func CeilUnits(d decimal.Decimal, decimals int32) *big.Int {
	return d.Shift(decimals).Ceil().BigInt()
}

// FormatUnits renders base units as a decimal string, e.g. 1500000000 with 9 decimals is "1.5".
func FormatUnits(value *big.Int, decimals int32) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -decimals).String()
}

// Package types provides common type aliases and utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// MoneyDecimals is the number of fractional digits kept in MinorUnits.
const MoneyDecimals = 2

// NewMoneyFromString creates a Money value from a string.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// MinorUnits represents a monetary value in minor currency units (cents).
// Storage: BIGINT column, so pgx COPY needs no NUMERIC codec.
// Example: 123.45 → 12345
type MinorUnits int64

// MinorUnitsFromMoney rounds m half away from zero to cents.
func MinorUnitsFromMoney(m Money) MinorUnits {
	return MinorUnits(m.Shift(MoneyDecimals).Round(0).IntPart())
}

// ToMoney converts minor units back to a decimal amount.
func (m MinorUnits) ToMoney() Money {
	return decimal.New(int64(m), -MoneyDecimals)
}

// Mul returns the value of qty items priced at m.
func (m MinorUnits) Mul(qty int64) Money {
	return m.ToMoney().Mul(decimal.NewFromInt(qty))
}

func (m MinorUnits) IsZero() bool { return m == 0 }
